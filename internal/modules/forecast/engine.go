package forecast

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/cylonmolting/agora-oracle/internal/domain"
	"github.com/cylonmolting/agora-oracle/internal/modules/rates"
	"github.com/cylonmolting/agora-oracle/pkg/formulas"
)

const (
	// Smoothing factor for simple exponential smoothing.
	smoothingAlpha = 0.3

	// History windows.
	forecastWindowDays = 180
	backtestWindowDays = 210
	backtestMinDays    = 60

	// Default and maximum forecast horizons.
	DefaultHorizonDays = 7
	MaxHorizonDays     = 30

	// Slopes within this fraction of the mean count as stable.
	trendEpsilon = 1e-4

	// Predictions never go below this floor.
	priceFloor = 1e-4

	// Per-day confidence decay.
	confidenceDecay = 0.95

	// Persisted forecasts older than this are garbage-collected.
	forecastMaxAge = 7 * 24 * time.Hour
)

// HistorySource supplies the daily price series the model trains on.
type HistorySource interface {
	DailyAverages(category, subcategory string, days int) ([]rates.DailyPrice, error)
	DistinctCategoryPairs() ([]rates.CategoryPair, error)
}

// Engine produces short-horizon price forecasts with simple exponential
// smoothing and a linear-trend adjustment.
type Engine struct {
	history HistorySource
	repo    *Repository
	log     zerolog.Logger
	now     func() time.Time
}

// NewEngine creates a new forecast engine
func NewEngine(history HistorySource, repo *Repository, log zerolog.Logger) *Engine {
	return &Engine{
		history: history,
		repo:    repo,
		log:     log.With().Str("component", "forecast_engine").Logger(),
		now:     time.Now,
	}
}

// Forecast produces horizonDays of predictions for a skill without
// persisting them.
func (e *Engine) Forecast(skill string, horizonDays int) (*Result, error) {
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}
	if horizonDays > MaxHorizonDays {
		horizonDays = MaxHorizonDays
	}

	series, err := e.loadSeries(skill, forecastWindowDays)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Skill:        skill,
		Trend:        TrendStable,
		Predictions:  []Prediction{},
		DataPoints:   len(series),
		ModelVersion: ModelVersion,
	}

	if len(series) == 0 {
		result.InsufficientData = true
		return result, nil
	}

	level := smooth(series)
	_, slope := formulas.LinearRegression(series)
	mean := formulas.Mean(series)

	result.Trend, result.TrendStrength = classifyTrend(slope, mean)

	base := 0.0
	if mean != 0 {
		cv := formulas.StdDev(series) / mean
		base = 1 / (1 + cv)
	}
	completeness := math.Min(float64(len(series))/float64(forecastWindowDays), 1)

	today := e.now().UTC().Truncate(24 * time.Hour)
	for i := 1; i <= horizonDays; i++ {
		price := math.Max(level+slope*float64(i), priceFloor)
		confidence := clamp01(base * completeness * math.Pow(confidenceDecay, float64(i)))

		result.Predictions = append(result.Predictions, Prediction{
			Date:       today.AddDate(0, 0, i).Format("2006-01-02"),
			Price:      price,
			Confidence: round3(confidence),
		})
	}

	return result, nil
}

// GenerateForSkill forecasts a skill and persists the result, replacing
// stale rows.
func (e *Engine) GenerateForSkill(skill string) (*Result, error) {
	result, err := e.Forecast(skill, DefaultHorizonDays)
	if err != nil {
		return nil, err
	}
	if result.InsufficientData {
		return result, nil
	}

	today := e.now().UTC().Truncate(24 * time.Hour)
	if err := e.repo.ReplaceForSkill(skill, result.Predictions, today, forecastMaxAge); err != nil {
		return nil, fmt.Errorf("failed to persist forecasts for %s: %w", skill, err)
	}

	return result, nil
}

// GenerateAll forecasts every distinct skill. Per-skill failures are
// collected, never fatal.
func (e *Engine) GenerateAll() (GenerateResult, error) {
	pairs, err := e.history.DistinctCategoryPairs()
	if err != nil {
		return GenerateResult{}, fmt.Errorf("failed to enumerate skills: %w", err)
	}

	result := GenerateResult{Errors: []string{}}
	for _, pair := range pairs {
		skill := pair.Category
		if pair.Subcategory != "" {
			skill = pair.Category + "/" + pair.Subcategory
		}
		result.Skills++

		forecast, err := e.GenerateForSkill(skill)
		if err != nil {
			e.log.Error().Err(err).Str("skill", skill).Msg("Forecast generation failed")
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", skill, err))
			continue
		}
		if !forecast.InsufficientData {
			result.ForecastsGenerated += len(forecast.Predictions)
		}
	}

	e.log.Info().
		Int("skills", result.Skills).
		Int("forecasts", result.ForecastsGenerated).
		Int("errors", len(result.Errors)).
		Msg("Forecast generation pass completed")

	return result, nil
}

// Backtest trains on the first 80% of 210 days of history and scores the
// held-out tail.
func (e *Engine) Backtest(skill string) (*Accuracy, error) {
	series, err := e.loadSeries(skill, backtestWindowDays)
	if err != nil {
		return nil, err
	}

	result := &Accuracy{Skill: skill}
	if len(series) < backtestMinDays {
		result.InsufficientData = true
		return result, nil
	}

	split := len(series) * 8 / 10
	train, test := series[:split], series[split:]
	result.TrainDays = len(train)
	result.TestDays = len(test)

	level := smooth(train)

	var absSum, sqSum float64
	for _, actual := range test {
		diff := level - actual
		absSum += math.Abs(diff)
		sqSum += diff * diff
	}
	mae := absSum / float64(len(test))
	rmse := math.Sqrt(sqSum / float64(len(test)))

	result.MAE = mae
	result.RMSE = rmse

	testMean := formulas.Mean(test)
	if testMean != 0 {
		result.Accuracy = math.Max(0, 1-mae/testMean)
	}

	return result, nil
}

// loadSeries resolves a skill into its category join and returns the
// per-day averaged prices.
func (e *Engine) loadSeries(skill string, days int) ([]float64, error) {
	category, subcategory := domain.SplitSkill(skill)

	daily, err := e.history.DailyAverages(category, subcategory, days)
	if err != nil {
		return nil, fmt.Errorf("failed to load history for %s: %w", skill, err)
	}

	series := make([]float64, len(daily))
	for i, d := range daily {
		series[i] = d.AvgPrice
	}
	return series, nil
}

// smooth applies simple exponential smoothing seeded from the first
// observation and returns the final level.
func smooth(series []float64) float64 {
	level := series[0]
	for _, v := range series[1:] {
		level = smoothingAlpha*v + (1-smoothingAlpha)*level
	}
	return level
}

func classifyTrend(slope, mean float64) (string, float64) {
	if mean == 0 {
		return TrendStable, 0
	}

	strength := math.Abs(slope) / mean
	threshold := trendEpsilon * math.Abs(mean)

	switch {
	case slope > threshold:
		return TrendIncreasing, strength
	case slope < -threshold:
		return TrendDecreasing, strength
	default:
		return TrendStable, strength
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func round3(v float64) float64 {
	return math.Round(v*1e3) / 1e3
}
