package budget

import "time"

// Budget is one agent's spending cap for a YYYY-MM period. spent is
// non-decreasing within a period; a new period lazily materializes a
// zero-spent row on first read.
type Budget struct {
	ID           int64   `json:"id"`
	AgentID      int64   `json:"agent_id"`
	MonthlyLimit float64 `json:"monthly_limit"`
	Spent        float64 `json:"spent"`
	Period       string  `json:"period"` // YYYY-MM
}

// Remaining is the headroom left this period, never negative.
func (b Budget) Remaining() float64 {
	remaining := b.MonthlyLimit - b.Spent
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RequestLogEntry records one routed provider call and its cost.
type RequestLogEntry struct {
	ID        int64     `json:"id"`
	AgentID   int64     `json:"agent_id"`
	Provider  string    `json:"provider"`
	Category  string    `json:"category,omitempty"`
	Cost      float64   `json:"cost"`
	LatencyMs int64     `json:"latency_ms,omitempty"`
	TokensIn  int64     `json:"tokens_in,omitempty"`
	TokensOut int64     `json:"tokens_out,omitempty"`
	Status    string    `json:"status,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CurrentPeriod formats t as a YYYY-MM budget period.
func CurrentPeriod(t time.Time) string {
	return t.UTC().Format("2006-01")
}
