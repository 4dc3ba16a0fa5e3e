package alerts

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/cylonmolting/agora-oracle/internal/api"
)

// Handlers contains HTTP handlers for the alert surface. All routes
// require an authenticated agent.
type Handlers struct {
	manager *Manager
	log     zerolog.Logger
}

// NewHandlers creates alert handlers
func NewHandlers(manager *Manager, log zerolog.Logger) *Handlers {
	return &Handlers{
		manager: manager,
		log:     log.With().Str("handler", "alerts").Logger(),
	}
}

// CreateAlertRequest is the POST /v1/alerts body.
type CreateAlertRequest struct {
	AlertType      string   `json:"alert_type"`
	TargetSkill    string   `json:"target_skill,omitempty"`
	TargetProvider string   `json:"target_provider,omitempty"`
	MaxPrice       *float64 `json:"max_price,omitempty"`
	NotifyMethod   string   `json:"notify_method"`
	WebhookURL     string   `json:"webhook_url,omitempty"`
	Email          string   `json:"email,omitempty"`
}

// HandleCreate creates an alert for the calling agent.
// POST /v1/alerts
func (h *Handlers) HandleCreate(w http.ResponseWriter, r *http.Request) {
	agent, ok := api.AgentFrom(r.Context())
	if !ok {
		api.Error(w, http.StatusUnauthorized, "missing or invalid API key")
		return
	}

	var req CreateAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	alert, err := h.manager.Create(Alert{
		AgentID:        agent.ID,
		AlertType:      req.AlertType,
		TargetSkill:    req.TargetSkill,
		TargetProvider: req.TargetProvider,
		MaxPrice:       req.MaxPrice,
		NotifyMethod:   req.NotifyMethod,
		WebhookURL:     req.WebhookURL,
		Email:          req.Email,
	})
	if err != nil {
		h.log.Warn().Err(err).Int64("agent_id", agent.ID).Msg("Alert creation rejected")
		api.FromError(w, err)
		return
	}

	api.Created(w, alert)
}

// HandleList lists the calling agent's alerts, most recent first.
// GET /v1/alerts
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	agent, ok := api.AgentFrom(r.Context())
	if !ok {
		api.Error(w, http.StatusUnauthorized, "missing or invalid API key")
		return
	}

	alerts, err := h.manager.List(agent.ID)
	if err != nil {
		h.log.Error().Err(err).Int64("agent_id", agent.ID).Msg("Failed to list alerts")
		api.FromError(w, err)
		return
	}
	if alerts == nil {
		alerts = []Alert{}
	}

	api.OK(w, alerts)
}

// UpdateAlertRequest is the PATCH /v1/alerts/{id} body.
type UpdateAlertRequest struct {
	Status string `json:"status"`
}

// HandleUpdate changes an alert's status.
// PATCH /v1/alerts/{id}
func (h *Handlers) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	agent, alertID, ok := h.agentAndAlertID(w, r)
	if !ok {
		return
	}

	var req UpdateAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	alert, err := h.manager.UpdateStatus(agent.ID, alertID, req.Status)
	if err != nil {
		api.FromError(w, err)
		return
	}

	api.OK(w, alert)
}

// HandleDelete hard-deletes an alert.
// DELETE /v1/alerts/{id}
func (h *Handlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	agent, alertID, ok := h.agentAndAlertID(w, r)
	if !ok {
		return
	}

	if err := h.manager.Delete(agent.ID, alertID); err != nil {
		api.FromError(w, err)
		return
	}

	api.OK(w, map[string]interface{}{"deleted": alertID})
}

// HandleHistory returns the last 50 triggers for an alert.
// GET /v1/alerts/{id}/history
func (h *Handlers) HandleHistory(w http.ResponseWriter, r *http.Request) {
	agent, alertID, ok := h.agentAndAlertID(w, r)
	if !ok {
		return
	}

	triggers, err := h.manager.History(agent.ID, alertID)
	if err != nil {
		api.FromError(w, err)
		return
	}
	if triggers == nil {
		triggers = []Trigger{}
	}

	api.OK(w, triggers)
}

func (h *Handlers) agentAndAlertID(w http.ResponseWriter, r *http.Request) (api.AgentIdentity, int64, bool) {
	agent, ok := api.AgentFrom(r.Context())
	if !ok {
		api.Error(w, http.StatusUnauthorized, "missing or invalid API key")
		return api.AgentIdentity{}, 0, false
	}

	alertID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		api.Error(w, http.StatusBadRequest, "invalid alert id")
		return api.AgentIdentity{}, 0, false
	}

	return agent, alertID, true
}
