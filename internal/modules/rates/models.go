package rates

import "time"

// Observation is one current-rate data point joined to its service and
// provider, the unit of work for the fusion pipeline.
type Observation struct {
	ServiceID   int64      `json:"service_id"`
	Provider    string     `json:"provider"`
	Category    string     `json:"category"`
	Subcategory string     `json:"subcategory"`
	Price       float64    `json:"price"`
	Currency    string     `json:"currency"`
	Unit        string     `json:"unit"`
	RecordedAt  *time.Time `json:"recorded_at,omitempty"`
}

// Rate is the current fused rate row for a service.
type Rate struct {
	ID          int64     `json:"id"`
	ServiceID   int64     `json:"service_id"`
	Price       float64   `json:"price"`
	Currency    string    `json:"currency"`
	Unit        string    `json:"unit"`
	PricingType string    `json:"pricing_type,omitempty"`
	Confidence  float64   `json:"confidence"`
	SourceCount int       `json:"source_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// HistoryRow is one append-only audit record of an accepted observation.
type HistoryRow struct {
	ID         int64     `json:"id"`
	ServiceID  int64     `json:"service_id"`
	Price      float64   `json:"price"`
	Currency   string    `json:"currency"`
	Unit       string    `json:"unit"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Trend classification values for the 24h direction with a 5% dead zone.
const (
	TrendUp     = "up"
	TrendDown   = "down"
	TrendStable = "stable"
)

// AggregateMeta describes how an aggregate was produced.
type AggregateMeta struct {
	OutliersRemoved     int  `json:"outliers_removed"`
	TotalRatesCollected int  `json:"total_rates_collected"`
	MedianUsed          bool `json:"median_used"`
}

// Aggregate is the fused, currently-true rate for a (category,
// subcategory) with confidence metadata.
type Aggregate struct {
	Category    string        `json:"category"`
	Subcategory string        `json:"subcategory,omitempty"`
	Price       float64       `json:"price"`
	Currency    string        `json:"currency"`
	Unit        string        `json:"unit"`
	Confidence  float64       `json:"confidence"`
	SourceCount int           `json:"source_count"`
	LastUpdated time.Time     `json:"last_updated"`
	Trend       string        `json:"trend"`
	Meta        AggregateMeta `json:"meta"`
}

// DailyPrice is one day of averaged history, input to the forecast engine.
type DailyPrice struct {
	Day      string  `json:"day"` // YYYY-MM-DD
	AvgPrice float64 `json:"avg_price"`
}
