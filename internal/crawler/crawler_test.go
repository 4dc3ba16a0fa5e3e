package crawler

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cylonmolting/agora-oracle/internal/database"
	"github.com/cylonmolting/agora-oracle/internal/modules/marketplace"
	"github.com/cylonmolting/agora-oracle/internal/modules/providers"
	"github.com/cylonmolting/agora-oracle/internal/modules/rates"
)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Migrate())
	return db
}

func newOrchestratorFixture(t *testing.T) (*database.DB, *Orchestrator) {
	t.Helper()

	db := setupTestDB(t)
	o := NewOrchestrator(
		providers.NewRepository(db.Conn(), zerolog.Nop()),
		rates.NewRepository(db.Conn(), zerolog.Nop()),
		marketplace.NewRepository(db.Conn(), zerolog.Nop()),
		zerolog.Nop())
	return db, o
}

type fakeCrawler struct {
	name   string
	kind   string
	result Result
	err    error
	calls  int
}

func (f *fakeCrawler) Name() string { return f.name }
func (f *fakeCrawler) Kind() string { return f.kind }
func (f *fakeCrawler) Crawl(context.Context) (Result, error) {
	f.calls++
	return f.result, f.err
}

func TestRunCrawlCycle_IngestsProviderRates(t *testing.T) {
	db, o := newOrchestratorFixture(t)

	o.Register(&fakeCrawler{
		name: "acme",
		kind: KindProvider,
		result: Result{Rates: []RateRecord{
			{Provider: "acme", Category: "llm", Subcategory: "chat", Price: 0.002, Currency: "USD", Unit: "1k_tokens"},
			{Provider: "acme", Category: "embedding", Price: 0.00002, Currency: "USD", Unit: "1k_tokens"},
		}},
	})

	cycle := o.RunCrawlCycle(context.Background())

	assert.Equal(t, 1, cycle.ProvidersChecked)
	assert.Equal(t, 2, cycle.NewRates)
	assert.Empty(t, cycle.Errors)

	// Every accepted observation has a matching history row.
	var rateCount, historyCount int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM rates").Scan(&rateCount))
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM rate_history").Scan(&historyCount))
	assert.Equal(t, 2, rateCount)
	assert.Equal(t, 2, historyCount)

	// Crawler-default confidence applied.
	var confidence float64
	require.NoError(t, db.QueryRow("SELECT confidence FROM rates LIMIT 1").Scan(&confidence))
	assert.InDelta(t, 0.9, confidence, 1e-9)
}

func TestRunCrawlCycle_DedupWindow(t *testing.T) {
	db, o := newOrchestratorFixture(t)

	o.Register(&fakeCrawler{
		name: "acme",
		kind: KindProvider,
		result: Result{Rates: []RateRecord{
			{Provider: "acme", Category: "llm", Subcategory: "chat", Price: 0.002, Currency: "USD", Unit: "1k_tokens"},
		}},
	})

	first := o.RunCrawlCycle(context.Background())
	assert.Equal(t, 1, first.NewRates)

	// Identical observation inside the window is discarded.
	second := o.RunCrawlCycle(context.Background())
	assert.Equal(t, 0, second.NewRates)
	assert.Empty(t, second.Errors)

	var historyCount int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM rate_history").Scan(&historyCount))
	assert.Equal(t, 1, historyCount)
}

func TestRunCrawlCycle_FailureNeverCancelsSiblings(t *testing.T) {
	_, o := newOrchestratorFixture(t)

	failing := &fakeCrawler{name: "broken", kind: KindProvider, err: errors.New("connection refused")}
	healthy := &fakeCrawler{
		name: "acme",
		kind: KindProvider,
		result: Result{Rates: []RateRecord{
			{Provider: "acme", Category: "llm", Subcategory: "chat", Price: 0.002, Currency: "USD", Unit: "1k_tokens"},
		}},
	}
	o.Register(failing)
	o.Register(healthy)

	cycle := o.RunCrawlCycle(context.Background())

	assert.Equal(t, 1, healthy.calls)
	assert.Equal(t, 1, cycle.NewRates)
	require.Len(t, cycle.Errors, 1)
	assert.Contains(t, cycle.Errors[0], "broken")
}

func TestRunCrawlCycle_AgentServices(t *testing.T) {
	db, o := newOrchestratorFixture(t)

	o.Register(&fakeCrawler{
		name: "bazaar",
		kind: KindAgentService,
		result: Result{AgentServices: []marketplace.AgentService{
			{AgentID: "a1", AgentName: "one", Skill: "translation", Price: 0.01, Unit: "request", Currency: "USD"},
			{AgentID: "", AgentName: "malformed", Skill: "translation", Price: 0.01}, // skipped
		}},
	})

	cycle := o.RunCrawlCycle(context.Background())
	assert.Equal(t, 1, cycle.NewRates)

	repo := marketplace.NewRepository(db.Conn(), zerolog.Nop())
	svc, err := repo.GetByAgentID("a1")
	require.NoError(t, err)
	require.NotNil(t, svc)
	assert.Equal(t, "translation/default", svc.Skill)
}

func TestNormalizeCatalog_BothShapes(t *testing.T) {
	raw := []byte(`{
		"resources": [
			{
				"agent_id": "x1",
				"agent_name": "XOne",
				"skill": "translation/en-fr",
				"x402": {"endpoint": "https://x1.example/x402", "payment": {"amount": 0.012, "currency": "USD", "unit": "request"}}
			},
			{
				"id": "x2",
				"name": "XTwo",
				"category": "scraping",
				"price": 0.02,
				"unit": "page"
			},
			{"agent_id": "no-price", "agent_name": "Broken"}
		]
	}`)

	services, err := normalizeCatalog(raw)
	require.NoError(t, err)
	require.Len(t, services, 2)

	assert.Equal(t, "x1", services[0].AgentID)
	assert.InDelta(t, 0.012, services[0].Price, 1e-12)
	assert.Equal(t, "https://x1.example/x402", services[0].X402Endpoint)

	assert.Equal(t, "x2", services[1].AgentID)
	assert.Equal(t, "scraping/default", services[1].Skill)
	assert.Equal(t, "page", services[1].Unit)
	assert.Equal(t, "USD", services[1].Currency)
}

func TestNormalizeCatalog_BareArray(t *testing.T) {
	raw := []byte(`[{"agent_id": "solo", "agent_name": "Solo", "skill": "ocr", "price": 0.001}]`)

	services, err := normalizeCatalog(raw)
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.Equal(t, "ocr/default", services[0].Skill)
	assert.Equal(t, "request", services[0].Unit)
}

func TestEmbeddedMockCatalogParses(t *testing.T) {
	services, err := normalizeCatalog(embeddedMockCatalog)
	require.NoError(t, err)
	assert.NotEmpty(t, services)

	for _, svc := range services {
		assert.NotEmpty(t, svc.AgentID)
		assert.Greater(t, svc.Price, 0.0)
		assert.Contains(t, svc.Skill, "/")
	}
}

func TestSeeder_SeedsOnceThenNoop(t *testing.T) {
	db := setupTestDB(t)
	seeder := NewSeeder(db, zerolog.Nop())

	seeded, err := seeder.SeedIfEmpty()
	require.NoError(t, err)
	assert.True(t, seeded)

	var providerCount, rateCount int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM providers").Scan(&providerCount))
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM rates").Scan(&rateCount))
	assert.Equal(t, len(providerCatalog), providerCount)
	assert.Greater(t, rateCount, 0)

	seeded, err = seeder.SeedIfEmpty()
	require.NoError(t, err)
	assert.False(t, seeded)
}
