package marketplace

import "time"

// AgentService is a priced offering of a third-party agent, cataloged
// from the bazaar. agent_id is the marketplace's external identifier.
type AgentService struct {
	AgentID      string          `json:"agent_id"`
	AgentName    string          `json:"agent_name"`
	Skill        string          `json:"skill"`
	Price        float64         `json:"price"`
	Unit         string          `json:"unit"`
	Currency     string          `json:"currency"`
	Uptime       *float64        `json:"uptime,omitempty"`
	AvgLatencyMs *float64        `json:"avg_latency_ms,omitempty"`
	Rating       *float64        `json:"rating,omitempty"`
	ReviewsCount *int            `json:"reviews_count,omitempty"`
	X402Endpoint string          `json:"x402_endpoint,omitempty"`
	BazaarURL    string          `json:"bazaar_url,omitempty"`
	Metadata     map[string]any  `json:"metadata,omitempty"`
	LastUpdated  time.Time       `json:"last_updated"`
	CreatedAt    time.Time       `json:"created_at"`
}

// HistoryRow is one archived snapshot of an agent service's price.
type HistoryRow struct {
	ID           int64     `json:"id"`
	AgentID      string    `json:"agent_id"`
	Price        float64   `json:"price"`
	Uptime       *float64  `json:"uptime,omitempty"`
	AvgLatencyMs *float64  `json:"avg_latency_ms,omitempty"`
	RecordedAt   time.Time `json:"recorded_at"`
}

// PriceRange is the min/max spread of a skill's market.
type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// MarketStats summarizes the market for one skill.
type MarketStats struct {
	Skill         string     `json:"skill"`
	MarketMedian  float64    `json:"market_median"`
	PriceRange    PriceRange `json:"price_range"`
	AvgPrice      float64    `json:"avg_price"`
	StdDeviation  float64    `json:"std_deviation"`
	AvgUptime     float64    `json:"avg_uptime"`
	AvgLatency    float64    `json:"avg_latency"`
	AvgRating     float64    `json:"avg_rating"`
	TotalAgents   int        `json:"total_agents"`
	OutlierAgents []string   `json:"outlier_agents"`
}

// RankedAgent is one agent's position in a skill comparison.
type RankedAgent struct {
	AgentService
	Ranking     int     `json:"ranking"`
	SavingsPct  float64 `json:"savings_pct"`
	ValueScore  float64 `json:"value_score"`
	IsCheapest  bool    `json:"is_cheapest"`
	IsBestValue bool    `json:"is_best_value"`
}

// ComparisonResult is the full ranking for a skill.
type ComparisonResult struct {
	Skill  string        `json:"skill"`
	Stats  *MarketStats  `json:"stats,omitempty"`
	Agents []RankedAgent `json:"agents"`
}
