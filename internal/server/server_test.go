package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cylonmolting/agora-oracle/internal/api"
	"github.com/cylonmolting/agora-oracle/internal/database"
	"github.com/cylonmolting/agora-oracle/internal/gateway"
	"github.com/cylonmolting/agora-oracle/internal/modules/agents"
	"github.com/cylonmolting/agora-oracle/internal/modules/alerts"
	"github.com/cylonmolting/agora-oracle/internal/modules/budget"
	"github.com/cylonmolting/agora-oracle/internal/modules/forecast"
	"github.com/cylonmolting/agora-oracle/internal/modules/marketplace"
	"github.com/cylonmolting/agora-oracle/internal/modules/providers"
	"github.com/cylonmolting/agora-oracle/internal/modules/rates"
	"github.com/cylonmolting/agora-oracle/internal/router"
)

func newTestServer(t *testing.T) (*Server, *database.DB) {
	t.Helper()

	db, err := database.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())

	log := zerolog.Nop()

	rateRepo := rates.NewRepository(db.Conn(), log)
	providerRepo := providers.NewRepository(db.Conn(), log)
	marketRepo := marketplace.NewRepository(db.Conn(), log)
	agentsRepo := agents.NewRepository(db.Conn(), log)
	budgetRepo := budget.NewRepository(db.Conn(), log)
	alertRepo := alerts.NewRepository(db.Conn(), log)
	forecastRepo := forecast.NewRepository(db.Conn(), log)

	srv := New(Config{
		Port:          0,
		Log:           log,
		DB:            db,
		RateRepo:      rateRepo,
		Aggregator:    rates.NewAggregator(rateRepo, log),
		ProviderRepo:  providerRepo,
		MarketRepo:    marketRepo,
		Comparison:    marketplace.NewComparison(marketRepo, log),
		AgentsRepo:    agentsRepo,
		BudgetRepo:    budgetRepo,
		AlertManager:  alerts.NewManager(alertRepo, log),
		ForecastRepo:  forecastRepo,
		ForecastEng:   forecast.NewEngine(rateRepo, forecastRepo, log),
		Gateway:       gateway.New(agentsRepo, log),
		RouterService: router.NewService(nil, providerRepo, budgetRepo, log),
	})

	return srv, db
}

func doJSON(t *testing.T, srv *Server, method, path, apiKey string, body interface{}) (*httptest.ResponseRecorder, api.Envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	var envelope api.Envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	}
	return w, envelope
}

func createAgent(t *testing.T, srv *Server, name string) (int64, string) {
	t.Helper()

	w, envelope := doJSON(t, srv, http.MethodPost, "/v1/agents", "", map[string]string{"name": name})
	require.Equal(t, http.StatusCreated, w.Code)

	data, ok := envelope.Data.(map[string]interface{})
	require.True(t, ok)
	return int64(data["id"].(float64)), data["api_key"].(string)
}

func TestAgentCreation_ReturnsKeyOnce(t *testing.T) {
	srv, _ := newTestServer(t)

	_, key := createAgent(t, srv, "alice")
	assert.NotEmpty(t, key)

	// The listing never exposes keys.
	w, envelope := doJSON(t, srv, http.MethodGet, "/v1/agents", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	listed := envelope.Data.([]interface{})
	require.Len(t, listed, 1)
	_, hasKey := listed[0].(map[string]interface{})["api_key"]
	assert.False(t, hasKey)
}

func TestEnvelopeShape(t *testing.T) {
	srv, _ := newTestServer(t)

	w, envelope := doJSON(t, srv, http.MethodGet, "/v1/rates", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, envelope.Success)
	assert.NotEmpty(t, envelope.Meta.Timestamp)
	assert.Equal(t, "v1", envelope.Meta.APIVersion)
}

func TestRates_UnknownCategory404(t *testing.T) {
	srv, _ := newTestServer(t)

	w, envelope := doJSON(t, srv, http.MethodGet, "/v1/rates/nonexistent-category/nonexistent-subcategory", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.False(t, envelope.Success)
	assert.NotEmpty(t, envelope.Error)
}

func TestAlerts_RequireAuth(t *testing.T) {
	srv, _ := newTestServer(t)

	w, _ := doJSON(t, srv, http.MethodGet, "/v1/alerts", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = doJSON(t, srv, http.MethodGet, "/v1/alerts", "bogus-key", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAlerts_CreateListDelete(t *testing.T) {
	srv, _ := newTestServer(t)
	_, key := createAgent(t, srv, "alice")

	w, envelope := doJSON(t, srv, http.MethodPost, "/v1/alerts", key, map[string]interface{}{
		"alert_type":    "price_threshold",
		"target_skill":  "translation/en-fr",
		"max_price":     0.01,
		"notify_method": "websocket",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	alertID := envelope.Data.(map[string]interface{})["id"].(float64)

	w, envelope = doJSON(t, srv, http.MethodGet, "/v1/alerts", key, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, envelope.Data.([]interface{}), 1)

	w, _ = doJSON(t, srv, http.MethodDelete, "/v1/alerts/"+itoa(int64(alertID)), key, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAlerts_ValidationRejected(t *testing.T) {
	srv, _ := newTestServer(t)
	_, key := createAgent(t, srv, "alice")

	w, envelope := doJSON(t, srv, http.MethodPost, "/v1/alerts", key, map[string]interface{}{
		"alert_type":    "price_threshold",
		"target_skill":  "translation/en-fr",
		"notify_method": "websocket",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, envelope.Error, "max_price")
}

func TestAlerts_CrossAgent403(t *testing.T) {
	srv, _ := newTestServer(t)
	_, aliceKey := createAgent(t, srv, "alice")
	_, bobKey := createAgent(t, srv, "bob")

	_, envelope := doJSON(t, srv, http.MethodPost, "/v1/alerts", aliceKey, map[string]interface{}{
		"alert_type":    "price_drop",
		"target_skill":  "translation/en-fr",
		"notify_method": "websocket",
	})
	alertID := envelope.Data.(map[string]interface{})["id"].(float64)

	w, _ := doJSON(t, srv, http.MethodDelete, "/v1/alerts/"+itoa(int64(alertID)), bobKey, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestBudget_CrossAgent403(t *testing.T) {
	srv, _ := newTestServer(t)
	aliceID, _ := createAgent(t, srv, "alice")
	_, bobKey := createAgent(t, srv, "bob")

	w, _ := doJSON(t, srv, http.MethodGet, "/v1/budget/"+itoa(aliceID), bobKey, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestBudget_SetAndGet(t *testing.T) {
	srv, _ := newTestServer(t)
	aliceID, key := createAgent(t, srv, "alice")

	w, _ := doJSON(t, srv, http.MethodPost, "/v1/budget", key, map[string]float64{"monthly_limit": 20})
	require.Equal(t, http.StatusOK, w.Code)

	w, envelope := doJSON(t, srv, http.MethodGet, "/v1/budget/"+itoa(aliceID), key, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := envelope.Data.(map[string]interface{})
	assert.Equal(t, 20.0, data["remaining"])
}

func TestRoute_UnavailableWithoutAdapters(t *testing.T) {
	srv, _ := newTestServer(t)
	_, key := createAgent(t, srv, "alice")

	w, _ := doJSON(t, srv, http.MethodPost, "/v1/route", key, map[string]string{"prompt": "hi"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealth_NoEnvelope(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestAgentServices_LimitValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	w, _ := doJSON(t, srv, http.MethodGet, "/v1/agent-services?limit=nope", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = doJSON(t, srv, http.MethodGet, "/v1/agent-services?limit=500", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
