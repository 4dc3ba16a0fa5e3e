package alerts

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cylonmolting/agora-oracle/internal/database"
	"github.com/cylonmolting/agora-oracle/internal/modules/marketplace"
	"github.com/cylonmolting/agora-oracle/internal/modules/providers"
)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Migrate())
	return db
}

func seedAgentAccount(t *testing.T, db *database.DB) int64 {
	t.Helper()
	res, err := db.Exec("INSERT INTO agents (name, api_key) VALUES (?, ?)", "tester", "key-tester")
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

type stubRates struct {
	rate *providers.CurrentRate
}

func (s *stubRates) MostRecentRate(string) (*providers.CurrentRate, error) {
	return s.rate, nil
}

type stubMarket struct {
	cheapest *marketplace.AgentService
}

func (s *stubMarket) Cheapest(string) (*marketplace.AgentService, error) {
	return s.cheapest, nil
}

type recordingNotifier struct {
	dispatched []Trigger
}

func (n *recordingNotifier) Dispatch(_ Alert, trigger Trigger) {
	n.dispatched = append(n.dispatched, trigger)
}

func floatPtr(v float64) *float64 { return &v }

func newEvaluatorFixture(t *testing.T) (*database.DB, *Repository, *stubMarket, *recordingNotifier, *Evaluator, int64) {
	t.Helper()

	db := setupTestDB(t)
	repo := NewRepository(db.Conn(), zerolog.Nop())
	market := &stubMarket{}
	notifier := &recordingNotifier{}
	eval := NewEvaluator(repo, &stubRates{}, market, notifier, zerolog.Nop())
	agentID := seedAgentAccount(t, db)

	return db, repo, market, notifier, eval, agentID
}

func marketOffer(price float64) *marketplace.AgentService {
	return &marketplace.AgentService{
		AgentID:   "mkt-1",
		AgentName: "market agent",
		Skill:     "translation/en-fr",
		Price:     price,
		Unit:      "request",
		Currency:  "USD",
	}
}

func TestEvaluator_ThresholdFiresWithoutBaselineGate(t *testing.T) {
	_, repo, market, notifier, eval, agentID := newEvaluatorFixture(t)

	_, err := repo.Create(Alert{
		AgentID:      agentID,
		AlertType:    TypePriceThreshold,
		TargetSkill:  "translation/en-fr",
		MaxPrice:     floatPtr(0.01),
		NotifyMethod: NotifyWebsocket,
	})
	require.NoError(t, err)

	// First evaluation at 0.009 <= 0.01: fires despite no prior baseline.
	market.cheapest = marketOffer(0.009)
	result, err := eval.CheckPriceAlerts()
	require.NoError(t, err)
	assert.Equal(t, CheckResult{CheckedAlerts: 1, TriggeredAlerts: 1}, result)

	// Second evaluation at 0.008: fires again.
	market.cheapest = marketOffer(0.008)
	result, err = eval.CheckPriceAlerts()
	require.NoError(t, err)
	assert.Equal(t, 1, result.TriggeredAlerts)

	// Above the threshold: no fire.
	market.cheapest = marketOffer(0.02)
	result, err = eval.CheckPriceAlerts()
	require.NoError(t, err)
	assert.Equal(t, 0, result.TriggeredAlerts)

	assert.Len(t, notifier.dispatched, 2)
}

func TestEvaluator_PriceDropEstablishesBaselineFirst(t *testing.T) {
	_, repo, market, _, eval, agentID := newEvaluatorFixture(t)

	alert, err := repo.Create(Alert{
		AgentID:      agentID,
		AlertType:    TypePriceDrop,
		TargetSkill:  "translation/en-fr",
		NotifyMethod: NotifyWebsocket,
	})
	require.NoError(t, err)

	// First pass establishes the baseline; never fires.
	market.cheapest = marketOffer(0.02)
	result, err := eval.CheckPriceAlerts()
	require.NoError(t, err)
	assert.Equal(t, 0, result.TriggeredAlerts)

	// Price did not drop below the established 0.02 baseline either.
	result, err = eval.CheckPriceAlerts()
	require.NoError(t, err)
	assert.Equal(t, 0, result.TriggeredAlerts)

	triggers, err := repo.History(alert.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, triggers)
}

func TestEvaluator_TriggerChaining(t *testing.T) {
	_, repo, market, _, eval, agentID := newEvaluatorFixture(t)

	alert, err := repo.Create(Alert{
		AgentID:      agentID,
		AlertType:    TypePriceThreshold,
		TargetSkill:  "translation/en-fr",
		MaxPrice:     floatPtr(1.0),
		NotifyMethod: NotifyWebsocket,
	})
	require.NoError(t, err)

	prices := []float64{0.05, 0.04, 0.03}
	for _, p := range prices {
		market.cheapest = marketOffer(p)
		_, err := eval.CheckPriceAlerts()
		require.NoError(t, err)
	}

	triggers, err := repo.History(alert.ID, 10)
	require.NoError(t, err)
	require.Len(t, triggers, 3)

	// Newest first: each trigger's old_price is the previous new_price.
	assert.InDelta(t, 0.03, triggers[0].NewPrice, 1e-12)
	assert.InDelta(t, 0.04, triggers[0].OldPrice, 1e-12)
	assert.InDelta(t, 0.04, triggers[1].NewPrice, 1e-12)
	assert.InDelta(t, 0.05, triggers[1].OldPrice, 1e-12)
	// First trigger established its own baseline.
	assert.InDelta(t, 0.05, triggers[2].OldPrice, 1e-12)
}

func TestEvaluator_AnyChangeFiresOnlyOnChange(t *testing.T) {
	_, repo, market, _, eval, agentID := newEvaluatorFixture(t)

	alert, err := repo.Create(Alert{
		AgentID:      agentID,
		AlertType:    TypeAnyChange,
		TargetSkill:  "translation/en-fr",
		NotifyMethod: NotifyWebsocket,
	})
	require.NoError(t, err)

	market.cheapest = marketOffer(0.02)
	_, err = eval.CheckPriceAlerts() // establishes baseline
	require.NoError(t, err)

	market.cheapest = marketOffer(0.03)
	result, err := eval.CheckPriceAlerts()
	require.NoError(t, err)
	assert.Equal(t, 1, result.TriggeredAlerts)

	market.cheapest = marketOffer(0.03)
	result, err = eval.CheckPriceAlerts()
	require.NoError(t, err)
	assert.Equal(t, 0, result.TriggeredAlerts)

	triggers, err := repo.History(alert.ID, 10)
	require.NoError(t, err)
	assert.Len(t, triggers, 1)
}

func TestEvaluator_ProviderTarget(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db.Conn(), zerolog.Nop())
	rates := &stubRates{rate: &providers.CurrentRate{
		Provider:    "acme",
		Price:       0.004,
		Category:    "llm",
		Subcategory: "chat",
		Unit:        "1k_tokens",
	}}
	eval := NewEvaluator(repo, rates, &stubMarket{}, nil, zerolog.Nop())
	agentID := seedAgentAccount(t, db)

	alert, err := repo.Create(Alert{
		AgentID:        agentID,
		AlertType:      TypePriceThreshold,
		TargetProvider: "acme",
		MaxPrice:       floatPtr(0.005),
		NotifyMethod:   NotifyWebsocket,
	})
	require.NoError(t, err)

	result, err := eval.CheckPriceAlerts()
	require.NoError(t, err)
	assert.Equal(t, 1, result.TriggeredAlerts)

	triggers, err := repo.History(alert.ID, 1)
	require.NoError(t, err)
	require.Len(t, triggers, 1)
	assert.Equal(t, "acme", triggers[0].Provider)
	assert.Equal(t, "llm/chat", triggers[0].Skill)
}

func TestEvaluator_NoMarketDataSkips(t *testing.T) {
	_, repo, _, notifier, eval, agentID := newEvaluatorFixture(t)

	_, err := repo.Create(Alert{
		AgentID:      agentID,
		AlertType:    TypePriceThreshold,
		TargetSkill:  "untraded/skill",
		MaxPrice:     floatPtr(1),
		NotifyMethod: NotifyWebsocket,
	})
	require.NoError(t, err)

	result, err := eval.CheckPriceAlerts()
	require.NoError(t, err)
	assert.Equal(t, CheckResult{CheckedAlerts: 1, TriggeredAlerts: 0}, result)
	assert.Empty(t, notifier.dispatched)
}
