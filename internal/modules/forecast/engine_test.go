package forecast

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cylonmolting/agora-oracle/internal/database"
	"github.com/cylonmolting/agora-oracle/internal/modules/rates"
)

// stubHistory serves canned daily series keyed "category" or
// "category/subcategory".
type stubHistory struct {
	series map[string][]rates.DailyPrice
	pairs  []rates.CategoryPair
}

func (s *stubHistory) DailyAverages(category, subcategory string, days int) ([]rates.DailyPrice, error) {
	key := category
	if subcategory != "" {
		key = category + "/" + subcategory
	}
	return s.series[key], nil
}

func (s *stubHistory) DistinctCategoryPairs() ([]rates.CategoryPair, error) {
	return s.pairs, nil
}

// wobble produces n daily points alternating ±pct around base.
func wobble(base float64, pct float64, n int) []rates.DailyPrice {
	series := make([]rates.DailyPrice, n)
	start := time.Now().UTC().AddDate(0, 0, -n)
	for i := range series {
		price := base * (1 + pct/100)
		if i%2 == 1 {
			price = base * (1 - pct/100)
		}
		series[i] = rates.DailyPrice{
			Day:      start.AddDate(0, 0, i).Format("2006-01-02"),
			AvgPrice: price,
		}
	}
	return series
}

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Migrate())
	return db
}

func TestForecast_AlternatingSeries(t *testing.T) {
	history := &stubHistory{series: map[string][]rates.DailyPrice{
		"translation/en-fr": wobble(0.02, 5, 30),
	}}
	engine := NewEngine(history, nil, zerolog.Nop())

	result, err := engine.Forecast("translation/en-fr", DefaultHorizonDays)
	require.NoError(t, err)
	require.Len(t, result.Predictions, 7)

	for _, p := range result.Predictions {
		assert.GreaterOrEqual(t, p.Price, 0.0001)
		assert.LessOrEqual(t, p.Price, 0.04)
		assert.GreaterOrEqual(t, p.Confidence, 0.0)
		assert.LessOrEqual(t, p.Confidence, 1.0)
	}

	// Thirty alternating ±5% points, high first, fit a slope of about
	// -3.3e-4 of the mean, outside the 1e-4 stable band.
	assert.Equal(t, TrendDecreasing, result.Trend)
	assert.Equal(t, 30, result.DataPoints)
}

func TestForecast_NoData(t *testing.T) {
	engine := NewEngine(&stubHistory{series: map[string][]rates.DailyPrice{}}, nil, zerolog.Nop())

	result, err := engine.Forecast("unknown/skill", DefaultHorizonDays)
	require.NoError(t, err)

	assert.True(t, result.InsufficientData)
	assert.Equal(t, TrendStable, result.Trend)
	assert.Equal(t, 0.0, result.TrendStrength)
	assert.Empty(t, result.Predictions)
}

func TestForecast_IncreasingTrend(t *testing.T) {
	series := make([]rates.DailyPrice, 60)
	start := time.Now().UTC().AddDate(0, 0, -60)
	for i := range series {
		series[i] = rates.DailyPrice{
			Day:      start.AddDate(0, 0, i).Format("2006-01-02"),
			AvgPrice: 0.01 + 0.0002*float64(i),
		}
	}
	history := &stubHistory{series: map[string][]rates.DailyPrice{"llm/chat": series}}
	engine := NewEngine(history, nil, zerolog.Nop())

	result, err := engine.Forecast("llm/chat", DefaultHorizonDays)
	require.NoError(t, err)

	assert.Equal(t, TrendIncreasing, result.Trend)
	assert.Greater(t, result.TrendStrength, 0.0)

	// Successive predictions follow the positive slope.
	for i := 1; i < len(result.Predictions); i++ {
		assert.Greater(t, result.Predictions[i].Price, result.Predictions[i-1].Price)
	}
	// Confidence decays with the horizon.
	for i := 1; i < len(result.Predictions); i++ {
		assert.LessOrEqual(t, result.Predictions[i].Confidence, result.Predictions[i-1].Confidence)
	}
}

func TestForecast_PriceFloor(t *testing.T) {
	series := make([]rates.DailyPrice, 40)
	start := time.Now().UTC().AddDate(0, 0, -40)
	for i := range series {
		series[i] = rates.DailyPrice{
			Day:      start.AddDate(0, 0, i).Format("2006-01-02"),
			AvgPrice: 0.004 - 0.0001*float64(i), // crosses zero inside the horizon
		}
	}
	history := &stubHistory{series: map[string][]rates.DailyPrice{"cheap/skill": series}}
	engine := NewEngine(history, nil, zerolog.Nop())

	result, err := engine.Forecast("cheap/skill", 30)
	require.NoError(t, err)
	require.Len(t, result.Predictions, 30)

	for _, p := range result.Predictions {
		assert.GreaterOrEqual(t, p.Price, 0.0001)
	}
	assert.Equal(t, TrendDecreasing, result.Trend)
}

func TestGenerateForSkill_PersistsAndCoversHorizon(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db.Conn(), zerolog.Nop())
	history := &stubHistory{series: map[string][]rates.DailyPrice{
		"translation/en-fr": wobble(0.02, 3, 90),
	}}
	engine := NewEngine(history, repo, zerolog.Nop())

	result, err := engine.GenerateForSkill("translation/en-fr")
	require.NoError(t, err)
	require.Len(t, result.Predictions, DefaultHorizonDays)

	stored, err := repo.GetForSkill("translation/en-fr", MaxHorizonDays)
	require.NoError(t, err)
	require.Len(t, stored, DefaultHorizonDays)

	// Exactly today+1 .. today+horizon, no duplicates.
	today := time.Now().UTC().Truncate(24 * time.Hour)
	seen := map[string]bool{}
	for i, row := range stored {
		expected := today.AddDate(0, 0, i+1).Format("2006-01-02")
		assert.Equal(t, expected, row.ForecastDate)
		assert.False(t, seen[row.ForecastDate])
		seen[row.ForecastDate] = true
		assert.Equal(t, ModelVersion, row.ModelVersion)
		assert.Equal(t, FeaturesUsed, row.FeaturesUsed)
	}
}

func TestGenerateForSkill_GarbageCollectsPastDates(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db.Conn(), zerolog.Nop())

	// A stale forecast dated in the past.
	_, err := db.Exec(`
		INSERT INTO price_forecasts (skill, forecast_date, predicted_price, confidence, model_version, generated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		"translation/en-fr", "2020-01-01", 0.05, 0.5, ModelVersion,
		time.Now().UTC().Format(time.RFC3339))
	require.NoError(t, err)

	history := &stubHistory{series: map[string][]rates.DailyPrice{
		"translation/en-fr": wobble(0.02, 3, 90),
	}}
	engine := NewEngine(history, repo, zerolog.Nop())

	_, err = engine.GenerateForSkill("translation/en-fr")
	require.NoError(t, err)

	var stale int
	require.NoError(t, db.QueryRow(
		"SELECT COUNT(*) FROM price_forecasts WHERE forecast_date < date('now')").Scan(&stale))
	assert.Equal(t, 0, stale)
}

func TestGenerateAll_CollectsErrorsAndCounts(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db.Conn(), zerolog.Nop())
	history := &stubHistory{
		series: map[string][]rates.DailyPrice{
			"llm/chat": wobble(0.02, 3, 90),
		},
		pairs: []rates.CategoryPair{
			{Category: "llm", Subcategory: "chat"},
			{Category: "untraded", Subcategory: "skill"},
		},
	}
	engine := NewEngine(history, repo, zerolog.Nop())

	result, err := engine.GenerateAll()
	require.NoError(t, err)

	assert.Equal(t, 2, result.Skills)
	assert.Equal(t, DefaultHorizonDays, result.ForecastsGenerated)
	assert.Empty(t, result.Errors)
}

func TestBacktest_Accuracy(t *testing.T) {
	series := make([]rates.DailyPrice, 210)
	start := time.Now().UTC().AddDate(0, 0, -210)
	for i := range series {
		price := 0.02
		if i%2 == 1 {
			price = 0.021
		}
		series[i] = rates.DailyPrice{
			Day:      start.AddDate(0, 0, i).Format("2006-01-02"),
			AvgPrice: price,
		}
	}
	history := &stubHistory{series: map[string][]rates.DailyPrice{"llm/chat": series}}
	engine := NewEngine(history, nil, zerolog.Nop())

	result, err := engine.Backtest("llm/chat")
	require.NoError(t, err)

	assert.False(t, result.InsufficientData)
	assert.Equal(t, 168, result.TrainDays)
	assert.Equal(t, 42, result.TestDays)
	assert.Greater(t, result.Accuracy, 0.9)
	assert.GreaterOrEqual(t, result.RMSE, result.MAE)
}

func TestBacktest_InsufficientData(t *testing.T) {
	history := &stubHistory{series: map[string][]rates.DailyPrice{
		"llm/chat": wobble(0.02, 3, 30),
	}}
	engine := NewEngine(history, nil, zerolog.Nop())

	result, err := engine.Backtest("llm/chat")
	require.NoError(t, err)
	assert.True(t, result.InsufficientData)
}

func TestRepository_DuplicateInsertSwallowed(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db.Conn(), zerolog.Nop())

	today := time.Now().UTC().Truncate(24 * time.Hour)
	predictions := []Prediction{
		{Date: today.AddDate(0, 0, 1).Format("2006-01-02"), Price: 0.02, Confidence: 0.8},
	}

	require.NoError(t, repo.ReplaceForSkill("llm/chat", predictions, today, forecastMaxAge))
	require.NoError(t, repo.ReplaceForSkill("llm/chat", predictions, today, forecastMaxAge))

	stored, err := repo.GetForSkill("llm/chat", 10)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}
