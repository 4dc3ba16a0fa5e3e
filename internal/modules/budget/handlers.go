package budget

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/cylonmolting/agora-oracle/internal/api"
)

// Handlers contains HTTP handlers for the budget surface. Budget access
// is restricted to the owning agent.
type Handlers struct {
	repo *Repository
	log  zerolog.Logger
}

// NewHandlers creates budget handlers
func NewHandlers(repo *Repository, log zerolog.Logger) *Handlers {
	return &Handlers{
		repo: repo,
		log:  log.With().Str("handler", "budget").Logger(),
	}
}

// HandleGetBudget returns the calling agent's current-period budget.
// GET /v1/budget/{agentId}
func (h *Handlers) HandleGetBudget(w http.ResponseWriter, r *http.Request) {
	agentID, ok := h.authorizedAgent(w, r)
	if !ok {
		return
	}

	current, err := h.repo.GetCurrent(agentID)
	if err != nil {
		h.log.Error().Err(err).Int64("agent_id", agentID).Msg("Failed to get budget")
		api.FromError(w, err)
		return
	}

	api.OK(w, map[string]interface{}{
		"budget":    current,
		"remaining": current.Remaining(),
	})
}

// SetBudgetRequest is the POST /v1/budget body.
type SetBudgetRequest struct {
	MonthlyLimit float64 `json:"monthly_limit"`
}

// HandleSetBudget sets the calling agent's monthly limit.
// POST /v1/budget
func (h *Handlers) HandleSetBudget(w http.ResponseWriter, r *http.Request) {
	agent, ok := api.AgentFrom(r.Context())
	if !ok {
		api.Error(w, http.StatusUnauthorized, "missing or invalid API key")
		return
	}

	var req SetBudgetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := h.repo.SetLimit(agent.ID, req.MonthlyLimit)
	if err != nil {
		api.FromError(w, err)
		return
	}

	api.OK(w, updated)
}

// HandleHistory returns the calling agent's request log.
// GET /v1/budget/{agentId}/history
func (h *Handlers) HandleHistory(w http.ResponseWriter, r *http.Request) {
	agentID, ok := h.authorizedAgent(w, r)
	if !ok {
		return
	}

	entries, err := h.repo.History(agentID, 100)
	if err != nil {
		h.log.Error().Err(err).Int64("agent_id", agentID).Msg("Failed to get budget history")
		api.FromError(w, err)
		return
	}
	if entries == nil {
		entries = []RequestLogEntry{}
	}

	api.OK(w, entries)
}

// authorizedAgent parses the path agent id and enforces that it matches
// the authenticated caller.
func (h *Handlers) authorizedAgent(w http.ResponseWriter, r *http.Request) (int64, bool) {
	agent, ok := api.AgentFrom(r.Context())
	if !ok {
		api.Error(w, http.StatusUnauthorized, "missing or invalid API key")
		return 0, false
	}

	agentID, err := strconv.ParseInt(chi.URLParam(r, "agentId"), 10, 64)
	if err != nil {
		api.Error(w, http.StatusBadRequest, "invalid agent id")
		return 0, false
	}

	if agentID != agent.ID {
		api.Error(w, http.StatusForbidden, "access denied")
		return 0, false
	}

	return agentID, true
}
