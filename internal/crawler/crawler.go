// Package crawler runs the periodic ingest loop: provider price lists
// and the bazaar catalog are fetched in parallel, normalized into store
// records and upserted with deduplication and history.
package crawler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cylonmolting/agora-oracle/internal/domain"
	"github.com/cylonmolting/agora-oracle/internal/modules/marketplace"
	"github.com/cylonmolting/agora-oracle/internal/modules/providers"
	"github.com/cylonmolting/agora-oracle/internal/modules/rates"
)

// Crawler kinds.
const (
	KindProvider     = "provider"
	KindAgentService = "agent-service"
)

// Identical observations inside this window are discarded.
const dedupWindow = 5 * time.Minute

// Confidence assigned when a crawler supplies none.
const defaultConfidence = 0.9

// RateRecord is one normalized provider price observation.
type RateRecord struct {
	Provider     string
	ProviderURL  string
	ProviderType string
	Category     string
	Subcategory  string
	Description  string
	Price        float64
	Currency     string
	Unit         string
	PricingType  string
	Confidence   *float64
}

// Result is what one crawler produced.
type Result struct {
	Kind          string
	Rates         []RateRecord
	AgentServices []marketplace.AgentService
}

// Crawler fetches pricing data from one source.
type Crawler interface {
	Name() string
	Kind() string
	Crawl(ctx context.Context) (Result, error)
}

// CycleResult summarizes one crawl cycle.
type CycleResult struct {
	ProvidersChecked int      `json:"providersChecked"`
	NewRates         int      `json:"newRates"`
	Errors           []string `json:"errors"`
}

// Orchestrator registers a static set of crawlers and runs them as one
// settle-all cycle.
type Orchestrator struct {
	crawlers     []Crawler
	providerRepo *providers.Repository
	rateRepo     *rates.Repository
	marketRepo   *marketplace.Repository
	log          zerolog.Logger
}

// NewOrchestrator creates a crawl orchestrator
func NewOrchestrator(providerRepo *providers.Repository, rateRepo *rates.Repository,
	marketRepo *marketplace.Repository, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		providerRepo: providerRepo,
		rateRepo:     rateRepo,
		marketRepo:   marketRepo,
		log:          log.With().Str("component", "crawler").Logger(),
	}
}

// Register adds a crawler to the cycle.
func (o *Orchestrator) Register(c Crawler) {
	o.crawlers = append(o.crawlers, c)
	o.log.Info().Str("crawler", c.Name()).Str("kind", c.Kind()).Msg("Crawler registered")
}

// crawlOutcome pairs a crawler with its settled result.
type crawlOutcome struct {
	crawler Crawler
	result  Result
	err     error
}

// RunCrawlCycle launches every crawler concurrently and waits for all to
// settle. One crawler's failure never cancels its siblings; the cycle
// itself never fails.
func (o *Orchestrator) RunCrawlCycle(ctx context.Context) CycleResult {
	outcomes := make([]crawlOutcome, len(o.crawlers))

	var wg sync.WaitGroup
	for i, c := range o.crawlers {
		wg.Add(1)
		go func(i int, c Crawler) {
			defer wg.Done()
			result, err := c.Crawl(ctx)
			outcomes[i] = crawlOutcome{crawler: c, result: result, err: err}
		}(i, c)
	}
	wg.Wait()

	cycle := CycleResult{Errors: []string{}}
	for _, outcome := range outcomes {
		if outcome.err != nil {
			o.log.Error().Err(outcome.err).Str("crawler", outcome.crawler.Name()).Msg("Crawler failed")
			cycle.Errors = append(cycle.Errors, fmt.Sprintf("%s: %v", outcome.crawler.Name(), outcome.err))
			continue
		}

		switch outcome.crawler.Kind() {
		case KindProvider:
			cycle.ProvidersChecked++
			cycle.NewRates += o.ingestRates(outcome.crawler.Name(), outcome.result.Rates, &cycle)
		case KindAgentService:
			cycle.NewRates += o.ingestAgentServices(outcome.crawler.Name(), outcome.result.AgentServices, &cycle)
		}
	}

	o.log.Info().
		Int("providers_checked", cycle.ProvidersChecked).
		Int("new_rates", cycle.NewRates).
		Int("errors", len(cycle.Errors)).
		Msg("Crawl cycle completed")

	return cycle
}

// ingestRates upserts provider rate records. A single record's failure is
// logged and skipped.
func (o *Orchestrator) ingestRates(crawlerName string, records []RateRecord, cycle *CycleResult) int {
	accepted := 0
	for _, record := range records {
		ok, err := o.ingestRate(record)
		if err != nil {
			o.log.Error().Err(err).
				Str("crawler", crawlerName).
				Str("provider", record.Provider).
				Str("category", record.Category).
				Msg("Rate record skipped")
			cycle.Errors = append(cycle.Errors, fmt.Sprintf("%s/%s: %v", crawlerName, record.Category, err))
			continue
		}
		if ok {
			accepted++
		}
	}
	return accepted
}

// ingestRate resolves provider and service, applies the dedup window and
// writes the rate plus its history row. Returns false when deduplicated.
func (o *Orchestrator) ingestRate(record RateRecord) (bool, error) {
	providerID, err := o.providerRepo.ResolveOrCreate(record.Provider, record.ProviderURL, record.ProviderType)
	if err != nil {
		return false, err
	}

	serviceID, err := o.providerRepo.GetOrCreateService(providerID, record.Category, record.Subcategory, record.Description)
	if err != nil {
		return false, err
	}

	duplicate, err := o.rateRepo.HasRecentDuplicate(serviceID, record.Price, record.Unit, time.Now().Add(-dedupWindow))
	if err != nil {
		return false, err
	}
	if duplicate {
		return false, nil
	}

	confidence := defaultConfidence
	if record.Confidence != nil {
		confidence = *record.Confidence
	}

	err = o.rateRepo.InsertObservation(rates.Rate{
		ServiceID:   serviceID,
		Price:       record.Price,
		Currency:    record.Currency,
		Unit:        record.Unit,
		PricingType: record.PricingType,
		Confidence:  confidence,
		SourceCount: 1,
	})
	if err != nil {
		return false, err
	}

	return true, nil
}

// ingestAgentServices upserts bazaar observations.
func (o *Orchestrator) ingestAgentServices(crawlerName string, services []marketplace.AgentService, cycle *CycleResult) int {
	accepted := 0
	for _, svc := range services {
		if svc.AgentID == "" || svc.Price < 0 {
			o.log.Warn().Str("crawler", crawlerName).Str("agent", svc.AgentName).Msg("Malformed agent service skipped")
			continue
		}
		svc.Skill = domain.CanonicalSkill(svc.Skill)

		changed, err := o.marketRepo.Upsert(svc)
		if err != nil {
			o.log.Error().Err(err).
				Str("crawler", crawlerName).
				Str("agent_id", svc.AgentID).
				Msg("Agent service record skipped")
			cycle.Errors = append(cycle.Errors, fmt.Sprintf("%s/%s: %v", crawlerName, svc.AgentID, err))
			continue
		}
		if changed {
			accepted++
		}
	}
	return accepted
}
