package rates

import (
	"math"
	"time"

	"github.com/cylonmolting/agora-oracle/pkg/formulas"
)

// Component weights of the confidence score.
const (
	sourceWeight    = 0.4
	varianceWeight  = 0.4
	freshnessWeight = 0.2

	// A single source can never push confidence above this ceiling.
	singleSourceCeiling = 0.6
)

// ConfidenceBreakdown is the detailed variant's component view.
type ConfidenceBreakdown struct {
	Confidence     float64 `json:"confidence"`
	SourceScore    float64 `json:"source_score"`
	VarianceScore  float64 `json:"variance_score"`
	FreshnessScore float64 `json:"freshness_score"`
	SourceCount    int     `json:"source_count"`
	Mean           float64 `json:"mean"`
	StdDev         float64 `json:"std_dev"`
}

// CalculateConfidence combines source count, dispersion and freshness
// into a [0,1] score.
func CalculateConfidence(obs []Observation, now time.Time) float64 {
	return CalculateConfidenceDetailed(obs, now).Confidence
}

// CalculateConfidenceDetailed returns the score together with its
// component breakdown and descriptive statistics.
func CalculateConfidenceDetailed(obs []Observation, now time.Time) ConfidenceBreakdown {
	n := len(obs)
	if n == 0 {
		return ConfidenceBreakdown{}
	}

	freshness := freshnessScore(obs, now)

	if n == 1 {
		return ConfidenceBreakdown{
			Confidence:     clamp01(singleSourceCeiling * freshness),
			SourceScore:    math.Min(1.0/5.0, 1),
			VarianceScore:  0,
			FreshnessScore: freshness,
			SourceCount:    1,
			Mean:           obs[0].Price,
		}
	}

	prices := make([]float64, n)
	for i, o := range obs {
		prices[i] = o.Price
	}

	mean := formulas.Mean(prices)
	stddev := formulas.StdDev(prices)

	sourceScore := math.Min(float64(n)/5.0, 1)

	varianceScore := 0.0
	if mean != 0 {
		cv := stddev / mean
		varianceScore = math.Max(0, 1-math.Min(cv, 1))
	}

	confidence := sourceWeight*sourceScore +
		varianceWeight*varianceScore +
		freshnessWeight*freshness

	return ConfidenceBreakdown{
		Confidence:     clamp01(confidence),
		SourceScore:    sourceScore,
		VarianceScore:  varianceScore,
		FreshnessScore: freshness,
		SourceCount:    n,
		Mean:           mean,
		StdDev:         stddev,
	}
}

// freshnessScore averages 2^(-age_days/30) across observations. An
// observation without a timestamp counts as fresh.
func freshnessScore(obs []Observation, now time.Time) float64 {
	if len(obs) == 0 {
		return 0
	}
	total := 0.0
	for _, o := range obs {
		ageDays := 0.0
		if o.RecordedAt != nil {
			ageDays = now.Sub(*o.RecordedAt).Hours() / 24
			if ageDays < 0 {
				ageDays = 0
			}
		}
		total += math.Exp2(-ageDays / 30)
	}
	return total / float64(len(obs))
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
