// Package formulas provides the numeric primitives shared by the
// aggregation, comparison and forecast engines.
package formulas

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the sample (n-1) standard deviation used across the
// fusion pipeline. Returns 0 for fewer than two samples.
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// Median returns the middle value of the data set. Ties between the two
// middle values of an even-length set fall back to their average.
func Median(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// Quartiles computes Q1 and Q3 as medians of the lower and upper halves
// of the sorted data, excluding the middle element when the count is odd.
// The input must contain at least three values; callers guard for that.
func Quartiles(data []float64) (q1, q3 float64) {
	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	lower := sorted[:mid]
	var upper []float64
	if len(sorted)%2 == 1 {
		upper = sorted[mid+1:]
	} else {
		upper = sorted[mid:]
	}

	return Median(lower), Median(upper)
}

// LinearRegression fits a least-squares line y = alpha + beta*x over the
// series, with x = 0..len(y)-1. Returns the intercept and slope.
func LinearRegression(y []float64) (alpha, beta float64) {
	if len(y) < 2 {
		if len(y) == 1 {
			return y[0], 0
		}
		return 0, 0
	}
	x := make([]float64, len(y))
	for i := range x {
		x[i] = float64(i)
	}
	return stat.LinearRegression(x, y, nil, false)
}
