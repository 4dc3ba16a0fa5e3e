package alerts

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cylonmolting/agora-oracle/internal/modules/marketplace"
	"github.com/cylonmolting/agora-oracle/internal/modules/providers"
)

// ProviderRates resolves the current observation for provider-targeted
// alerts.
type ProviderRates interface {
	MostRecentRate(providerName string) (*providers.CurrentRate, error)
}

// SkillMarket resolves the current observation for skill-targeted alerts.
type SkillMarket interface {
	Cheapest(skill string) (*marketplace.AgentService, error)
}

// Notifier fans a fired trigger out to the alert's notify method.
// Implementations own the notified-flag bookkeeping.
type Notifier interface {
	Dispatch(alert Alert, trigger Trigger)
}

// Evaluator runs the alert pass: resolve the current price, compare it
// against the alert's baseline or threshold, and record triggers.
type Evaluator struct {
	repo     *Repository
	rates    ProviderRates
	market   SkillMarket
	notifier Notifier
	log      zerolog.Logger

	// baselines holds prices established by first evaluations of alerts
	// that have no trigger yet, keyed by alert id.
	mu        sync.Mutex
	baselines map[int64]float64
}

// NewEvaluator creates a new alert evaluator
func NewEvaluator(repo *Repository, rates ProviderRates, market SkillMarket, notifier Notifier, log zerolog.Logger) *Evaluator {
	return &Evaluator{
		repo:      repo,
		rates:     rates,
		market:    market,
		notifier:  notifier,
		log:       log.With().Str("component", "alert_evaluator").Logger(),
		baselines: make(map[int64]float64),
	}
}

// observation is the resolved current price for one alert.
type observation struct {
	price    float64
	provider string
	skill    string
}

// CheckPriceAlerts evaluates every active alert. One alert's failure
// never aborts the pass.
func (e *Evaluator) CheckPriceAlerts() (CheckResult, error) {
	active, err := e.repo.ListActive()
	if err != nil {
		return CheckResult{}, fmt.Errorf("failed to list active alerts: %w", err)
	}

	result := CheckResult{CheckedAlerts: len(active)}
	for _, alert := range active {
		fired, err := e.evaluate(alert)
		if err != nil {
			e.log.Error().Err(err).Int64("alert_id", alert.ID).Msg("Alert evaluation failed")
			continue
		}
		if fired {
			result.TriggeredAlerts++
		}
	}

	e.log.Info().
		Int("checked", result.CheckedAlerts).
		Int("triggered", result.TriggeredAlerts).
		Msg("Alert pass completed")

	return result, nil
}

// evaluate runs one alert and reports whether it fired.
func (e *Evaluator) evaluate(alert Alert) (bool, error) {
	current, err := e.resolveObservation(alert)
	if err != nil {
		return false, err
	}
	if current == nil {
		// Nothing to compare against yet; not an error.
		return false, nil
	}

	baseline, establishing, err := e.resolveBaseline(alert, current.price)
	if err != nil {
		return false, err
	}

	if !e.fires(alert, current.price, baseline, establishing) {
		return false, nil
	}

	trigger, err := e.repo.InsertTrigger(Trigger{
		AlertID:  alert.ID,
		OldPrice: baseline,
		NewPrice: current.price,
		Provider: current.provider,
		Skill:    current.skill,
	})
	if err != nil {
		return false, fmt.Errorf("failed to record trigger: %w", err)
	}

	e.log.Info().
		Int64("alert_id", alert.ID).
		Float64("old_price", baseline).
		Float64("new_price", current.price).
		Str("type", alert.AlertType).
		Msg("Alert triggered")

	if e.notifier != nil {
		e.notifier.Dispatch(alert, trigger)
	}

	return true, nil
}

// resolveObservation finds the price an alert is watching: the most
// recent rate for a targeted provider, or the cheapest agent service for
// a targeted skill.
func (e *Evaluator) resolveObservation(alert Alert) (*observation, error) {
	if alert.TargetProvider != "" {
		rate, err := e.rates.MostRecentRate(alert.TargetProvider)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve provider rate: %w", err)
		}
		if rate == nil {
			return nil, nil
		}
		skill := rate.Category
		if rate.Subcategory != "" {
			skill = rate.Category + "/" + rate.Subcategory
		}
		return &observation{price: rate.Price, provider: rate.Provider, skill: skill}, nil
	}

	if alert.TargetSkill != "" {
		cheapest, err := e.market.Cheapest(alert.TargetSkill)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve skill market: %w", err)
		}
		if cheapest == nil {
			return nil, nil
		}
		return &observation{price: cheapest.Price, provider: cheapest.AgentName, skill: cheapest.Skill}, nil
	}

	return nil, fmt.Errorf("alert %d has no target", alert.ID)
}

// resolveBaseline returns the previous trigger's new_price. A first
// evaluation establishes the current price as baseline, which only
// threshold rules can fire through; later evaluations of an alert with no
// trigger yet compare against that established price. Established
// baselines live in memory and are re-established after a restart.
func (e *Evaluator) resolveBaseline(alert Alert, currentPrice float64) (baseline float64, establishing bool, err error) {
	latest, err := e.repo.LatestTrigger(alert.ID)
	if err != nil {
		return 0, false, fmt.Errorf("failed to load latest trigger: %w", err)
	}
	if latest == nil {
		e.mu.Lock()
		defer e.mu.Unlock()
		if established, ok := e.baselines[alert.ID]; ok {
			return established, false, nil
		}
		e.baselines[alert.ID] = currentPrice
		return currentPrice, true, nil
	}
	return latest.NewPrice, false, nil
}

// fires decides the alert condition.
func (e *Evaluator) fires(alert Alert, current, baseline float64, establishing bool) bool {
	switch alert.AlertType {
	case TypePriceThreshold:
		// Threshold rules have no baseline gate.
		return alert.MaxPrice != nil && current <= *alert.MaxPrice
	case TypePriceDrop:
		return !establishing && current < baseline
	case TypeAnyChange:
		return !establishing && current != baseline
	default:
		return false
	}
}
