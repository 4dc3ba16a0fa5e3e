package crawler

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/cylonmolting/agora-oracle/internal/domain"
	"github.com/cylonmolting/agora-oracle/internal/modules/marketplace"
)

const (
	bazaarTimeout   = 10 * time.Second
	bazaarUserAgent = "agora-oracle-crawler/1.0"
)

//go:embed mock_catalog.json
var embeddedMockCatalog []byte

// bazaarEntry tolerates both the live catalog shape and the mock file
// shape. Price comes from x402.payment.amount when present, else the
// flat price field.
type bazaarEntry struct {
	AgentID      string         `json:"agent_id"`
	ID           string         `json:"id"`
	AgentName    string         `json:"agent_name"`
	Name         string         `json:"name"`
	Skill        string         `json:"skill"`
	Category     string         `json:"category"`
	Subcategory  string         `json:"subcategory"`
	Price        *float64       `json:"price"`
	Unit         string         `json:"unit"`
	Currency     string         `json:"currency"`
	Uptime       *float64       `json:"uptime"`
	AvgLatencyMs *float64       `json:"avg_latency_ms"`
	Rating       *float64       `json:"rating"`
	ReviewsCount *int           `json:"reviews_count"`
	BazaarURL    string         `json:"bazaar_url"`
	Metadata     map[string]any `json:"metadata"`
	X402         *struct {
		Endpoint string `json:"endpoint"`
		Payment  *struct {
			Amount   float64 `json:"amount"`
			Currency string  `json:"currency"`
			Unit     string  `json:"unit"`
		} `json:"payment"`
	} `json:"x402"`
}

// bazaarCatalog is the wrapper both shapes use.
type bazaarCatalog struct {
	Resources []bazaarEntry `json:"resources"`
	Items     []bazaarEntry `json:"items"`
}

// BazaarCrawler ingests the third-party agent marketplace. The live
// endpoint is tried first; any failure falls back to the local mock
// catalog.
type BazaarCrawler struct {
	url      string
	mockPath string
	client   *http.Client
	log      zerolog.Logger
}

// NewBazaarCrawler creates a bazaar crawler
func NewBazaarCrawler(url, mockPath string, log zerolog.Logger) *BazaarCrawler {
	return &BazaarCrawler{
		url:      url,
		mockPath: mockPath,
		client:   &http.Client{Timeout: bazaarTimeout},
		log:      log.With().Str("crawler", "bazaar").Logger(),
	}
}

// Name implements Crawler.
func (c *BazaarCrawler) Name() string { return "bazaar" }

// Kind implements Crawler.
func (c *BazaarCrawler) Kind() string { return KindAgentService }

// Crawl fetches and normalizes the catalog.
func (c *BazaarCrawler) Crawl(ctx context.Context) (Result, error) {
	raw, err := c.fetchLive(ctx)
	if err != nil {
		c.log.Warn().Err(err).Str("url", c.url).Msg("Live bazaar fetch failed, using mock catalog")
		raw, err = c.readMock()
		if err != nil {
			return Result{}, fmt.Errorf("bazaar unavailable and mock catalog unreadable: %w", err)
		}
	}

	services, err := normalizeCatalog(raw)
	if err != nil {
		return Result{}, err
	}

	return Result{Kind: KindAgentService, AgentServices: services}, nil
}

func (c *BazaarCrawler) fetchLive(ctx context.Context) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, bazaarTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build bazaar request: %w", err)
	}
	req.Header.Set("User-Agent", bazaarUserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bazaar request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bazaar returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read bazaar response: %w", err)
	}
	return body, nil
}

// readMock prefers the configured file and falls back to the catalog
// embedded in the binary.
func (c *BazaarCrawler) readMock() ([]byte, error) {
	if c.mockPath != "" {
		if raw, err := os.ReadFile(c.mockPath); err == nil {
			return raw, nil
		}
	}
	return embeddedMockCatalog, nil
}

// normalizeCatalog turns either catalog shape into canonical agent
// services. Entries without an id or a resolvable price are skipped.
func normalizeCatalog(raw []byte) ([]marketplace.AgentService, error) {
	var catalog bazaarCatalog
	if err := json.Unmarshal(raw, &catalog); err != nil {
		// Some mirrors serve a bare array.
		var entries []bazaarEntry
		if arrErr := json.Unmarshal(raw, &entries); arrErr != nil {
			return nil, fmt.Errorf("failed to parse bazaar catalog: %w", err)
		}
		catalog.Items = entries
	}

	entries := append(catalog.Resources, catalog.Items...)

	services := make([]marketplace.AgentService, 0, len(entries))
	for _, entry := range entries {
		svc, ok := normalizeEntry(entry)
		if ok {
			services = append(services, svc)
		}
	}

	return services, nil
}

func normalizeEntry(entry bazaarEntry) (marketplace.AgentService, bool) {
	agentID := entry.AgentID
	if agentID == "" {
		agentID = entry.ID
	}
	if agentID == "" {
		return marketplace.AgentService{}, false
	}

	name := entry.AgentName
	if name == "" {
		name = entry.Name
	}
	if name == "" {
		name = agentID
	}

	skill := entry.Skill
	if skill == "" {
		skill = entry.Category
		if entry.Subcategory != "" {
			skill = entry.Category + "/" + entry.Subcategory
		}
	}

	price := 0.0
	currency := entry.Currency
	unit := entry.Unit
	endpoint := ""
	switch {
	case entry.X402 != nil && entry.X402.Payment != nil:
		price = entry.X402.Payment.Amount
		if entry.X402.Payment.Currency != "" {
			currency = entry.X402.Payment.Currency
		}
		if entry.X402.Payment.Unit != "" {
			unit = entry.X402.Payment.Unit
		}
		endpoint = entry.X402.Endpoint
	case entry.Price != nil:
		price = *entry.Price
	default:
		return marketplace.AgentService{}, false
	}

	if entry.X402 != nil && endpoint == "" {
		endpoint = entry.X402.Endpoint
	}
	if currency == "" {
		currency = "USD"
	}
	if unit == "" {
		unit = "request"
	}

	return marketplace.AgentService{
		AgentID:      agentID,
		AgentName:    name,
		Skill:        domain.CanonicalSkill(skill),
		Price:        price,
		Unit:         unit,
		Currency:     currency,
		Uptime:       entry.Uptime,
		AvgLatencyMs: entry.AvgLatencyMs,
		Rating:       entry.Rating,
		ReviewsCount: entry.ReviewsCount,
		X402Endpoint: endpoint,
		BazaarURL:    entry.BazaarURL,
		Metadata:     entry.Metadata,
	}, true
}
