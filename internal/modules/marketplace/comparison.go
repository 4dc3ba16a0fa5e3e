package marketplace

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/cylonmolting/agora-oracle/internal/domain"
	"github.com/cylonmolting/agora-oracle/internal/modules/rates"
	"github.com/cylonmolting/agora-oracle/pkg/formulas"
)

// Best-value weights. priceScore dominates; uptime and rating break the
// field apart when prices cluster.
const (
	priceWeight  = 0.5
	uptimeWeight = 0.3
	ratingWeight = 0.2

	// Score contribution assumed when an agent reports no uptime/rating.
	missingMetricDefault = 0.5
)

// Comparison ranks agent services for a skill and computes market stats.
type Comparison struct {
	repo *Repository
	log  zerolog.Logger
}

// NewComparison creates the comparison engine
func NewComparison(repo *Repository, log zerolog.Logger) *Comparison {
	return &Comparison{
		repo: repo,
		log:  log.With().Str("component", "comparison").Logger(),
	}
}

// MarketStats computes the market summary for one skill: median, spread,
// averages and the agents whose prices the IQR fence rejects.
func (c *Comparison) MarketStats(skill string) (*MarketStats, error) {
	services, err := c.repo.GetBySkill(skill)
	if err != nil {
		return nil, fmt.Errorf("failed to load skill market: %w", err)
	}
	if len(services) == 0 {
		return nil, nil
	}

	prices := make([]float64, len(services))
	for i, svc := range services {
		prices[i] = svc.Price
	}

	filtered := rates.DetectOutliers(prices)

	outliers := make([]string, 0, len(filtered.RemovedIdx))
	for _, idx := range filtered.RemovedIdx {
		outliers = append(outliers, services[idx].AgentID)
	}

	stats := &MarketStats{
		Skill:         domain.CanonicalSkill(skill),
		MarketMedian:  round6(formulas.Median(filtered.Filtered)),
		PriceRange:    PriceRange{Min: minOf(prices), Max: maxOf(prices)},
		AvgPrice:      round6(formulas.Mean(prices)),
		StdDeviation:  round6(formulas.StdDev(prices)),
		AvgUptime:     avgOptional(services, func(s AgentService) *float64 { return s.Uptime }),
		AvgLatency:    avgOptional(services, func(s AgentService) *float64 { return s.AvgLatencyMs }),
		AvgRating:     avgOptional(services, func(s AgentService) *float64 { return s.Rating }),
		TotalAgents:   len(services),
		OutlierAgents: outliers,
	}

	return stats, nil
}

// Compare ranks every agent offering a skill by price, annotates savings
// against the market median and picks a weighted best-value winner.
func (c *Comparison) Compare(skill string) (*ComparisonResult, error) {
	services, err := c.repo.GetBySkill(skill)
	if err != nil {
		return nil, fmt.Errorf("failed to load skill market: %w", err)
	}

	result := &ComparisonResult{
		Skill:  domain.CanonicalSkill(skill),
		Agents: []RankedAgent{},
	}
	if len(services) == 0 {
		return result, nil
	}

	stats, err := c.MarketStats(skill)
	if err != nil {
		return nil, err
	}
	result.Stats = stats

	sort.SliceStable(services, func(i, j int) bool {
		return services[i].Price < services[j].Price
	})

	maxPrice := services[len(services)-1].Price

	ranked := make([]RankedAgent, len(services))
	for i, svc := range services {
		savings := 0.0
		if stats.MarketMedian != 0 {
			savings = 100 * (stats.MarketMedian - svc.Price) / stats.MarketMedian
		}

		ranked[i] = RankedAgent{
			AgentService: svc,
			Ranking:      i + 1,
			SavingsPct:   round6(savings),
			ValueScore:   round3(valueScore(svc, maxPrice)),
			IsCheapest:   i == 0,
		}
	}

	best := 0
	for i := 1; i < len(ranked); i++ {
		if ranked[i].ValueScore > ranked[best].ValueScore {
			best = i
		}
		// Equal scores keep the earlier (cheaper) agent.
	}
	ranked[best].IsBestValue = true

	result.Agents = ranked
	return result, nil
}

// valueScore combines price position, uptime and rating into the
// best-value metric. The most expensive agent scores 0 on price.
func valueScore(svc AgentService, maxPrice float64) float64 {
	priceScore := 0.0
	if maxPrice > 0 {
		priceScore = 1 - svc.Price/maxPrice
	}

	uptimeScore := missingMetricDefault
	if svc.Uptime != nil {
		uptimeScore = *svc.Uptime
	}

	ratingScore := missingMetricDefault
	if svc.Rating != nil {
		ratingScore = *svc.Rating / 5
	}

	return priceWeight*priceScore + uptimeWeight*uptimeScore + ratingWeight*ratingScore
}

// Helper functions

func avgOptional(services []AgentService, pick func(AgentService) *float64) float64 {
	total := 0.0
	count := 0
	for _, svc := range services {
		if v := pick(svc); v != nil {
			total += *v
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return round6(total / float64(count))
}

func minOf(values []float64) float64 {
	min := values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
	}
	return min
}

func maxOf(values []float64) float64 {
	max := values[0]
	for _, v := range values[1:] {
		if v > max {
			max = v
		}
	}
	return max
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

func round3(v float64) float64 {
	return math.Round(v*1e3) / 1e3
}
