package providers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/cylonmolting/agora-oracle/internal/api"
)

// Handlers contains HTTP handlers for provider browsing and comparison.
type Handlers struct {
	repo *Repository
	log  zerolog.Logger
}

// NewHandlers creates provider handlers
func NewHandlers(repo *Repository, log zerolog.Logger) *Handlers {
	return &Handlers{
		repo: repo,
		log:  log.With().Str("handler", "providers").Logger(),
	}
}

// HandleGetProviders lists providers.
// GET /v1/providers?sortByPrice=asc|desc&category=X
func (h *Handlers) HandleGetProviders(w http.ResponseWriter, r *http.Request) {
	sortByPrice := r.URL.Query().Get("sortByPrice")
	if sortByPrice != "" && sortByPrice != "asc" && sortByPrice != "desc" {
		api.Error(w, http.StatusBadRequest, "sortByPrice must be asc or desc")
		return
	}

	listings, err := h.repo.GetAll(r.URL.Query().Get("category"), sortByPrice)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list providers")
		api.FromError(w, err)
		return
	}

	api.OK(w, listings)
}

// HandleGetProvider returns one provider with its services.
// GET /v1/providers/{id}
func (h *Handlers) HandleGetProvider(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		api.Error(w, http.StatusBadRequest, "invalid provider id")
		return
	}

	detail, err := h.repo.GetByID(id)
	if err != nil {
		h.log.Error().Err(err).Int64("id", id).Msg("Failed to get provider")
		api.FromError(w, err)
		return
	}
	if detail == nil {
		api.Error(w, http.StatusNotFound, "provider not found")
		return
	}

	api.OK(w, detail)
}

// HandleCompare compares current prices across providers for a category.
// GET /v1/compare?category=X&subcategory=Y&providers=a,b,c
func (h *Handlers) HandleCompare(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	if category == "" {
		api.Error(w, http.StatusBadRequest, "category is required")
		return
	}

	var names []string
	if csv := r.URL.Query().Get("providers"); csv != "" {
		for _, name := range strings.Split(csv, ",") {
			if trimmed := strings.TrimSpace(name); trimmed != "" {
				names = append(names, trimmed)
			}
		}
	}

	comparisons, err := h.repo.Compare(category, r.URL.Query().Get("subcategory"), names)
	if err != nil {
		h.log.Error().Err(err).Str("category", category).Msg("Comparison failed")
		api.FromError(w, err)
		return
	}

	api.OK(w, map[string]interface{}{
		"category":  category,
		"providers": comparisons,
	})
}
