package forecast

import "time"

// ModelVersion identifies the persisted forecasting model.
const ModelVersion = "ses_v1"

// FeaturesUsed is recorded with every persisted forecast row.
var FeaturesUsed = []string{"historical_prices", "exponential_smoothing", "trend_adjustment"}

// Trend classifications.
const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendStable     = "stable"
)

// Row is one persisted forecast.
type Row struct {
	ID             int64     `json:"id"`
	Skill          string    `json:"skill"`
	ForecastDate   string    `json:"forecast_date"` // YYYY-MM-DD
	PredictedPrice float64   `json:"predicted_price"`
	Confidence     float64   `json:"confidence"`
	ModelVersion   string    `json:"model_version"`
	FeaturesUsed   []string  `json:"features_used,omitempty"`
	GeneratedAt    time.Time `json:"generated_at"`
}

// Prediction is one forecast day produced by the engine.
type Prediction struct {
	Date       string  `json:"date"` // YYYY-MM-DD
	Price      float64 `json:"price"`
	Confidence float64 `json:"confidence"`
}

// Result is the outcome of a per-skill forecast run.
type Result struct {
	Skill            string       `json:"skill"`
	Trend            string       `json:"trend"`
	TrendStrength    float64      `json:"trend_strength"`
	Predictions      []Prediction `json:"predictions"`
	DataPoints       int          `json:"data_points"`
	InsufficientData bool         `json:"insufficient_data,omitempty"`
	ModelVersion     string       `json:"model_version"`
}

// Accuracy is the backtest summary for a skill.
type Accuracy struct {
	Skill            string  `json:"skill"`
	MAE              float64 `json:"mae"`
	RMSE             float64 `json:"rmse"`
	Accuracy         float64 `json:"accuracy"`
	TrainDays        int     `json:"train_days"`
	TestDays         int     `json:"test_days"`
	InsufficientData bool    `json:"insufficient_data,omitempty"`
}

// GenerateResult summarizes a full generation pass.
type GenerateResult struct {
	Skills             int      `json:"skills"`
	ForecastsGenerated int      `json:"forecastsGenerated"`
	Errors             []string `json:"errors"`
}

// SkillStatus is one skill's forecast coverage for the status surface.
type SkillStatus struct {
	Skill         string     `json:"skill"`
	ForecastCount int        `json:"forecast_count"`
	FirstDate     string     `json:"first_date,omitempty"`
	LastDate      string     `json:"last_date,omitempty"`
	GeneratedAt   *time.Time `json:"generated_at,omitempty"`
}
