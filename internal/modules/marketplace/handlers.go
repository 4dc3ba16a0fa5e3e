package marketplace

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/cylonmolting/agora-oracle/internal/api"
)

// List sizes beyond this are clamped.
const maxListLimit = 200

// Handlers contains HTTP handlers for the agent-service surface.
type Handlers struct {
	repo       *Repository
	comparison *Comparison
	log        zerolog.Logger
}

// NewHandlers creates marketplace handlers
func NewHandlers(repo *Repository, comparison *Comparison, log zerolog.Logger) *Handlers {
	return &Handlers{
		repo:       repo,
		comparison: comparison,
		log:        log.With().Str("handler", "marketplace").Logger(),
	}
}

// HandleList lists agent services.
// GET /v1/agent-services?skill=X&sort=price|rating|uptime&order=asc|desc&limit=N
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	sortBy := q.Get("sort")
	switch sortBy {
	case "", "price", "rating", "uptime":
	default:
		api.Error(w, http.StatusBadRequest, "sort must be price, rating or uptime")
		return
	}

	order := q.Get("order")
	if order != "" && order != "asc" && order != "desc" {
		api.Error(w, http.StatusBadRequest, "order must be asc or desc")
		return
	}

	limit := 50
	if raw := q.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			api.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	services, err := h.repo.List(q.Get("skill"), sortBy, order, limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list agent services")
		api.FromError(w, err)
		return
	}
	if services == nil {
		services = []AgentService{}
	}

	api.OK(w, services)
}

// HandleGetAgent returns one agent service.
// GET /v1/agent-services/{agentId}
func (h *Handlers) HandleGetAgent(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")

	svc, err := h.repo.GetByAgentID(agentID)
	if err != nil {
		h.log.Error().Err(err).Str("agent_id", agentID).Msg("Failed to get agent service")
		api.FromError(w, err)
		return
	}
	if svc == nil {
		api.Error(w, http.StatusNotFound, "agent service not found")
		return
	}

	api.OK(w, svc)
}

// HandleHistory returns archived price snapshots for an agent.
// GET /v1/agent-services/{agentId}/history
func (h *Handlers) HandleHistory(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")

	svc, err := h.repo.GetByAgentID(agentID)
	if err != nil {
		h.log.Error().Err(err).Str("agent_id", agentID).Msg("Failed to get agent service")
		api.FromError(w, err)
		return
	}
	if svc == nil {
		api.Error(w, http.StatusNotFound, "agent service not found")
		return
	}

	history, err := h.repo.History(agentID, 100)
	if err != nil {
		h.log.Error().Err(err).Str("agent_id", agentID).Msg("Failed to get agent service history")
		api.FromError(w, err)
		return
	}
	if history == nil {
		history = []HistoryRow{}
	}

	api.OK(w, history)
}

// HandleCompare ranks every agent offering a skill.
// GET /v1/agent-services/compare?skill=X
func (h *Handlers) HandleCompare(w http.ResponseWriter, r *http.Request) {
	skill := r.URL.Query().Get("skill")
	if skill == "" {
		api.Error(w, http.StatusBadRequest, "skill is required")
		return
	}

	result, err := h.comparison.Compare(skill)
	if err != nil {
		h.log.Error().Err(err).Str("skill", skill).Msg("Comparison failed")
		api.FromError(w, err)
		return
	}

	api.OK(w, result)
}
