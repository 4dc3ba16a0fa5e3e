package rates

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectOutliers_RemovesExtremes(t *testing.T) {
	result := DetectOutliers([]float64{10, 12, 11, 13, 11.5, 100, 1, 12.5})

	assert.Len(t, result.Filtered, 6)
	assert.ElementsMatch(t, []float64{100, 1}, result.Removed)
	assert.InDelta(t, 10.5, result.Stats.Q1, 1e-9)
	assert.InDelta(t, 12.75, result.Stats.Q3, 1e-9)
	assert.InDelta(t, 2.25, result.Stats.IQR, 1e-9)
	assert.InDelta(t, 7.125, result.Stats.LowerBound, 1e-9)
	assert.InDelta(t, 16.125, result.Stats.UpperBound, 1e-9)
}

func TestDetectOutliers_SmallSetsUnchanged(t *testing.T) {
	for _, prices := range [][]float64{{}, {5}, {5, 500}} {
		result := DetectOutliers(prices)
		assert.Equal(t, prices, append([]float64{}, result.Filtered...))
		assert.Empty(t, result.Removed)
	}
}

func TestDetectOutliers_FilteredWithinBounds(t *testing.T) {
	prices := []float64{0.001, 0.01, 0.011, 0.012, 0.013, 0.014, 0.9}
	result := DetectOutliers(prices)

	for _, p := range result.Filtered {
		assert.GreaterOrEqual(t, p, result.Stats.LowerBound)
		assert.LessOrEqual(t, p, result.Stats.UpperBound)
	}
	assert.Equal(t, len(prices), len(result.Filtered)+len(result.Removed))
}

func TestDetectOutliers_Idempotent(t *testing.T) {
	prices := []float64{10, 12, 11, 13, 11.5, 100, 1, 12.5}

	first := DetectOutliers(prices)
	second := DetectOutliers(first.Filtered)

	assert.Equal(t, first.Filtered, second.Filtered)
	assert.Empty(t, second.Removed)
}

func TestDetectOutliers_UniformPrices(t *testing.T) {
	result := DetectOutliers([]float64{0.02, 0.02, 0.02, 0.02})

	assert.Len(t, result.Filtered, 4)
	assert.Empty(t, result.Removed)
	assert.Equal(t, 0.0, result.Stats.IQR)
}

func TestDetectOutliers_IndicesMapBack(t *testing.T) {
	prices := []float64{10, 1000, 11, 12, 11.5, 12.5, 13}
	result := DetectOutliers(prices)

	assert.Equal(t, []int{1}, result.RemovedIdx)
	for i, idx := range result.KeptIdx {
		assert.Equal(t, result.Filtered[i], prices[idx])
	}
}
