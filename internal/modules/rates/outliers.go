package rates

import (
	"sort"

	"github.com/cylonmolting/agora-oracle/pkg/formulas"
)

// OutlierStats carries the quartile geometry behind a filter decision.
type OutlierStats struct {
	Q1         float64 `json:"q1"`
	Median     float64 `json:"median"`
	Q3         float64 `json:"q3"`
	IQR        float64 `json:"iqr"`
	LowerBound float64 `json:"lower_bound"`
	UpperBound float64 `json:"upper_bound"`
}

// FilterResult is the outcome of an IQR pass over a price set. KeptIdx
// and RemovedIdx index into the input slice so callers tracking richer
// rows can map back to them.
type FilterResult struct {
	Filtered   []float64    `json:"filtered"`
	Removed    []float64    `json:"removed"`
	KeptIdx    []int        `json:"-"`
	RemovedIdx []int        `json:"-"`
	Stats      OutlierStats `json:"stats"`
}

// DetectOutliers removes extreme observations using the 1.5*IQR fence.
// With two or fewer prices the quartiles are undefined and the input is
// returned unchanged. Never fails.
func DetectOutliers(prices []float64) FilterResult {
	if len(prices) <= 2 {
		kept := make([]int, len(prices))
		for i := range kept {
			kept[i] = i
		}
		return FilterResult{
			Filtered: append([]float64(nil), prices...),
			Removed:  []float64{},
			KeptIdx:  kept,
		}
	}

	sorted := make([]float64, len(prices))
	copy(sorted, prices)
	sort.Float64s(sorted)

	q1, q3 := formulas.Quartiles(sorted)
	median := formulas.Median(sorted)
	iqr := q3 - q1

	stats := OutlierStats{
		Q1:         q1,
		Median:     median,
		Q3:         q3,
		IQR:        iqr,
		LowerBound: q1 - 1.5*iqr,
		UpperBound: q3 + 1.5*iqr,
	}

	result := FilterResult{
		Filtered: make([]float64, 0, len(prices)),
		Removed:  []float64{},
		Stats:    stats,
	}

	for i, p := range prices {
		if p < stats.LowerBound || p > stats.UpperBound {
			result.Removed = append(result.Removed, p)
			result.RemovedIdx = append(result.RemovedIdx, i)
		} else {
			result.Filtered = append(result.Filtered, p)
			result.KeptIdx = append(result.KeptIdx, i)
		}
	}

	return result
}
