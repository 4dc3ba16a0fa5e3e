package rates

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/cylonmolting/agora-oracle/pkg/formulas"
)

// Trend changes smaller than this percentage are classified stable.
const trendDeadZonePct = 5.0

// Aggregator fuses per-service observations into trusted aggregate rates.
type Aggregator struct {
	repo *Repository
	log  zerolog.Logger
	now  func() time.Time
}

// NewAggregator creates a new aggregator
func NewAggregator(repo *Repository, log zerolog.Logger) *Aggregator {
	return &Aggregator{
		repo: repo,
		log:  log.With().Str("component", "aggregator").Logger(),
		now:  time.Now,
	}
}

// AggregateRates fuses the current observations for a category (and
// optional subcategory) into a single rate. Returns nil when there is no
// data or the outlier filter removed everything.
func (a *Aggregator) AggregateRates(category, subcategory string) (*Aggregate, error) {
	obs, err := a.repo.GetCurrentObservations(category, subcategory)
	if err != nil {
		return nil, fmt.Errorf("failed to load observations: %w", err)
	}
	if len(obs) == 0 {
		return nil, nil
	}

	prices := make([]float64, len(obs))
	for i, o := range obs {
		prices[i] = o.Price
	}

	filtered := DetectOutliers(prices)
	if len(filtered.Filtered) == 0 {
		return nil, nil
	}

	surviving := make([]Observation, len(filtered.KeptIdx))
	for i, idx := range filtered.KeptIdx {
		surviving[i] = obs[idx]
	}

	now := a.now()
	median := formulas.Median(filtered.Filtered)
	confidence := CalculateConfidence(surviving, now)
	trend := a.deriveTrend(surviving, median, now)

	agg := &Aggregate{
		Category:    category,
		Subcategory: subcategory,
		Price:       round6(median),
		Currency:    surviving[0].Currency,
		Unit:        surviving[0].Unit,
		Confidence:  round3(confidence),
		SourceCount: len(surviving),
		LastUpdated: latestTimestamp(surviving, now),
		Trend:       trend,
		Meta: AggregateMeta{
			OutliersRemoved:     len(filtered.Removed),
			TotalRatesCollected: len(obs),
			MedianUsed:          true,
		},
	}

	return agg, nil
}

// AggregateAllCategories fuses every distinct (category, subcategory)
// pair. Results are keyed "category" or "category:subcategory".
func (a *Aggregator) AggregateAllCategories() (map[string]*Aggregate, error) {
	pairs, err := a.repo.DistinctCategoryPairs()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate categories: %w", err)
	}

	results := make(map[string]*Aggregate, len(pairs))
	for _, pair := range pairs {
		agg, err := a.AggregateRates(pair.Category, pair.Subcategory)
		if err != nil {
			a.log.Error().Err(err).
				Str("category", pair.Category).
				Str("subcategory", pair.Subcategory).
				Msg("Aggregation failed for category")
			continue
		}
		if agg == nil {
			continue
		}

		key := pair.Category
		if pair.Subcategory != "" {
			key = pair.Category + ":" + pair.Subcategory
		}
		results[key] = agg
	}

	return results, nil
}

// deriveTrend compares the fused price against the most recent history
// row at least 24 hours old for the first surviving service. Changes
// within the dead zone are stable.
func (a *Aggregator) deriveTrend(surviving []Observation, current float64, now time.Time) string {
	cutoff := now.Add(-24 * time.Hour)

	baseline, err := a.repo.LatestHistoryBefore(surviving[0].ServiceID, cutoff)
	if err != nil {
		a.log.Warn().Err(err).Int64("service_id", surviving[0].ServiceID).Msg("Trend lookup failed")
		return TrendStable
	}
	if baseline == nil || baseline.Price == 0 {
		return TrendStable
	}

	deltaPct := (current - baseline.Price) / baseline.Price * 100
	if math.Abs(deltaPct) < trendDeadZonePct {
		return TrendStable
	}
	if deltaPct > 0 {
		return TrendUp
	}
	return TrendDown
}

func latestTimestamp(obs []Observation, fallback time.Time) time.Time {
	var latest time.Time
	for _, o := range obs {
		if o.RecordedAt != nil && o.RecordedAt.After(latest) {
			latest = *o.RecordedAt
		}
	}
	if latest.IsZero() {
		return fallback
	}
	return latest
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

func round3(v float64) float64 {
	return math.Round(v*1e3) / 1e3
}
