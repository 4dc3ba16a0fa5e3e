package server

import (
	"net/http"
	"sort"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/cylonmolting/agora-oracle/internal/api"
	"github.com/cylonmolting/agora-oracle/pkg/formulas"
)

// volatilityWindowDays is the trailing history window the volatility
// ranking looks at.
const volatilityWindowDays = 7

// handleHealth is the unenveloped liveness probe.
// GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeoutContext(r)
	defer cancel()

	status := "ok"
	code := http.StatusOK
	if err := s.db.HealthCheck(ctx); err != nil {
		s.log.Error().Err(err).Msg("Health check failed")
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(`{"status":"` + status + `"}`))
}

// handleStats returns store totals plus a system block.
// GET /v1/stats
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	providerCount, serviceCount, rateCount, historyCount, err := s.rateRepo.Counts()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to count store rows")
		api.FromError(w, err)
		return
	}

	agentServiceCount, err := s.marketRepo.Count()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to count agent services")
		api.FromError(w, err)
		return
	}

	stats := map[string]interface{}{
		"providers":         providerCount,
		"services":          serviceCount,
		"rates":             rateCount,
		"rate_history_rows": historyCount,
		"agent_services":    agentServiceCount,
		"ws_connections":    s.gateway.ConnectedAgents(),
		"system":            systemStats(),
	}

	api.OK(w, stats)
}

// systemStats samples host CPU and memory. Failures degrade to nulls
// rather than failing the endpoint.
func systemStats() map[string]interface{} {
	stats := map[string]interface{}{}

	if percentages, err := cpu.Percent(0, false); err == nil && len(percentages) > 0 {
		stats["cpu_percent"] = percentages[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		stats["mem_used_percent"] = vm.UsedPercent
	}
	stats["sampled_at"] = time.Now().UTC().Format(time.RFC3339)

	return stats
}

// volatilityEntry is one category's dispersion ranking row.
type volatilityEntry struct {
	Category    string  `json:"category"`
	Subcategory string  `json:"subcategory,omitempty"`
	Mean        float64 `json:"mean"`
	StdDev      float64 `json:"std_dev"`
	Volatility  float64 `json:"volatility"`
	Samples     int     `json:"samples"`
}

// handleVolatility ranks categories by coefficient of variation over the
// trailing week of history.
// GET /v1/stats/volatility
func (s *Server) handleVolatility(w http.ResponseWriter, r *http.Request) {
	pairs, err := s.rateRepo.DistinctCategoryPairs()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to enumerate categories")
		api.FromError(w, err)
		return
	}

	entries := make([]volatilityEntry, 0, len(pairs))
	for _, pair := range pairs {
		prices, err := s.rateRepo.HistoryPrices(pair.Category, pair.Subcategory, volatilityWindowDays)
		if err != nil {
			s.log.Error().Err(err).Str("category", pair.Category).Msg("Volatility query failed")
			continue
		}
		if len(prices) < 2 {
			continue
		}

		mean := formulas.Mean(prices)
		stddev := formulas.StdDev(prices)
		volatility := 0.0
		if mean != 0 {
			volatility = stddev / mean
		}

		entries = append(entries, volatilityEntry{
			Category:    pair.Category,
			Subcategory: pair.Subcategory,
			Mean:        mean,
			StdDev:      stddev,
			Volatility:  volatility,
			Samples:     len(prices),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Volatility > entries[j].Volatility
	})

	api.OK(w, entries)
}
