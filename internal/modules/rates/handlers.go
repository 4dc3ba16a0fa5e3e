package rates

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/cylonmolting/agora-oracle/internal/api"
)

// Handlers contains HTTP handlers for the aggregate-rate surface.
type Handlers struct {
	aggregator *Aggregator
	log        zerolog.Logger
}

// NewHandlers creates rate handlers
func NewHandlers(aggregator *Aggregator, log zerolog.Logger) *Handlers {
	return &Handlers{
		aggregator: aggregator,
		log:        log.With().Str("handler", "rates").Logger(),
	}
}

// HandleGetAllRates returns the fused rate for every category.
// GET /v1/rates
func (h *Handlers) HandleGetAllRates(w http.ResponseWriter, r *http.Request) {
	results, err := h.aggregator.AggregateAllCategories()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to aggregate all categories")
		api.FromError(w, err)
		return
	}

	api.OK(w, results)
}

// HandleGetCategoryRate returns the fused rate for one category.
// GET /v1/rates/{category}
func (h *Handlers) HandleGetCategoryRate(w http.ResponseWriter, r *http.Request) {
	h.respondAggregate(w, chi.URLParam(r, "category"), "")
}

// HandleGetSubcategoryRate returns the fused rate for a
// category/subcategory pair.
// GET /v1/rates/{category}/{subcategory}
func (h *Handlers) HandleGetSubcategoryRate(w http.ResponseWriter, r *http.Request) {
	h.respondAggregate(w, chi.URLParam(r, "category"), chi.URLParam(r, "subcategory"))
}

func (h *Handlers) respondAggregate(w http.ResponseWriter, category, subcategory string) {
	agg, err := h.aggregator.AggregateRates(category, subcategory)
	if err != nil {
		h.log.Error().Err(err).
			Str("category", category).
			Str("subcategory", subcategory).
			Msg("Aggregation failed")
		api.FromError(w, err)
		return
	}

	if agg == nil {
		api.Error(w, http.StatusNotFound, "no rates for category")
		return
	}

	api.OK(w, agg)
}
