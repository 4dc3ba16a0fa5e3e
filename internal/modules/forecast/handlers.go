package forecast

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/cylonmolting/agora-oracle/internal/api"
)

// Handlers contains HTTP handlers for the forecast surface.
type Handlers struct {
	engine *Engine
	repo   *Repository
	log    zerolog.Logger
}

// NewHandlers creates forecast handlers
func NewHandlers(engine *Engine, repo *Repository, log zerolog.Logger) *Handlers {
	return &Handlers{
		engine: engine,
		repo:   repo,
		log:    log.With().Str("handler", "forecast").Logger(),
	}
}

// skillFromRequest rebuilds the skill from the category/subcategory route
// params. A bare category stays bare so history joins on category alone.
func skillFromRequest(r *http.Request) string {
	category := chi.URLParam(r, "category")
	if subcategory := chi.URLParam(r, "subcategory"); subcategory != "" {
		return category + "/" + subcategory
	}
	return category
}

// HandleGetForecast returns the forecast for a skill.
// GET /v1/forecast/{category}[/{subcategory}]?days=N (N capped at 30)
func (h *Handlers) HandleGetForecast(w http.ResponseWriter, r *http.Request) {
	skill := skillFromRequest(r)

	days := DefaultHorizonDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			api.Error(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		days = parsed
	}
	if days > MaxHorizonDays {
		days = MaxHorizonDays
	}

	result, err := h.engine.Forecast(skill, days)
	if err != nil {
		h.log.Error().Err(err).Str("skill", skill).Msg("Forecast failed")
		api.FromError(w, err)
		return
	}

	api.OK(w, result)
}

// HandleAccuracy returns the backtest accuracy for a skill.
// GET /v1/forecast/{category}[/{subcategory}]/accuracy
func (h *Handlers) HandleAccuracy(w http.ResponseWriter, r *http.Request) {
	skill := skillFromRequest(r)

	accuracy, err := h.engine.Backtest(skill)
	if err != nil {
		h.log.Error().Err(err).Str("skill", skill).Msg("Backtest failed")
		api.FromError(w, err)
		return
	}

	api.OK(w, accuracy)
}

// HandleStatus returns forecast coverage per skill.
// GET /v1/forecast/status
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.repo.Status()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get forecast status")
		api.FromError(w, err)
		return
	}
	if statuses == nil {
		statuses = []SkillStatus{}
	}

	api.OK(w, statuses)
}

// HandleGenerate runs a full generation pass on demand.
// POST /v1/forecast/generate
func (h *Handlers) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	result, err := h.engine.GenerateAll()
	if err != nil {
		h.log.Error().Err(err).Msg("Forecast generation failed")
		api.FromError(w, err)
		return
	}

	api.OK(w, result)
}
