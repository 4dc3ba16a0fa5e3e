package server

import (
	"net/http"
	"strings"

	"github.com/cylonmolting/agora-oracle/internal/api"
	"github.com/cylonmolting/agora-oracle/internal/modules/agents"
)

// extractAPIKey reads the bearer token or the api_key query parameter.
func extractAPIKey(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if strings.HasPrefix(header, "Bearer ") {
			return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		}
	}
	return r.URL.Query().Get("api_key")
}

// requireAuth resolves the caller from its API key and stores the
// identity on the request context. Missing or unknown keys get 401.
func requireAuth(repo *agents.Repository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := extractAPIKey(r)
			if key == "" {
				api.Error(w, http.StatusUnauthorized, "missing or invalid API key")
				return
			}

			agent, err := repo.GetByAPIKey(key)
			if err != nil {
				api.Error(w, http.StatusInternalServerError, "internal error")
				return
			}
			if agent == nil {
				api.Error(w, http.StatusUnauthorized, "missing or invalid API key")
				return
			}

			ctx := api.WithAgent(r.Context(), api.AgentIdentity{ID: agent.ID, Name: agent.Name})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
