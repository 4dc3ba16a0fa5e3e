package agents

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cylonmolting/agora-oracle/internal/api"
)

// Handlers contains HTTP handlers for account management.
type Handlers struct {
	repo *Repository
	log  zerolog.Logger
}

// NewHandlers creates agent handlers
func NewHandlers(repo *Repository, log zerolog.Logger) *Handlers {
	return &Handlers{
		repo: repo,
		log:  log.With().Str("handler", "agents").Logger(),
	}
}

// CreateAgentRequest is the POST /v1/agents body.
type CreateAgentRequest struct {
	Name string `json:"name"`
}

// HandleCreate creates an account. The API key is returned exactly once.
// POST /v1/agents
func (h *Handlers) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		api.Error(w, http.StatusBadRequest, "name is required")
		return
	}

	agent, err := h.repo.Create(req.Name)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to create agent")
		api.FromError(w, err)
		return
	}

	api.Created(w, agent)
}

// HandleList lists accounts without keys.
// GET /v1/agents
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.repo.List()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list agents")
		api.FromError(w, err)
		return
	}
	if accounts == nil {
		accounts = []Agent{}
	}

	api.OK(w, accounts)
}
