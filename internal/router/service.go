package router

import (
	"context"
	"fmt"
	"time"

	"github.com/jpillora/backoff"
	"github.com/rs/zerolog"

	"github.com/cylonmolting/agora-oracle/internal/domain"
	"github.com/cylonmolting/agora-oracle/internal/modules/budget"
	"github.com/cylonmolting/agora-oracle/internal/modules/providers"
)

// One retry after the initial attempt.
const maxAttempts = 2

// RouteResult is a completed routed request.
type RouteResult struct {
	Provider string   `json:"provider"`
	Output   string   `json:"output"`
	Cost     float64  `json:"cost"`
	Response Response `json:"usage"`
}

// ProviderPrices exposes current chat prices for adapter selection.
type ProviderPrices interface {
	Compare(category, subcategory string, providerNames []string) ([]providers.Comparison, error)
}

// SpendRecorder is the budget manager contract: a successful adapter
// call produces a cost that gets recorded.
type SpendRecorder interface {
	GetCurrent(agentID int64) (budget.Budget, error)
	RecordSpend(entry budget.RequestLogEntry) error
}

// Service routes prompts to the cheapest configured adapter.
type Service struct {
	adapters map[string]Adapter
	prices   ProviderPrices
	budgets  SpendRecorder
	log      zerolog.Logger
}

// NewService creates the smart-router service. Adapters whose API keys
// are absent are simply not registered.
func NewService(adapters []Adapter, prices ProviderPrices, budgets SpendRecorder, log zerolog.Logger) *Service {
	byName := make(map[string]Adapter, len(adapters))
	for _, a := range adapters {
		byName[a.Name()] = a
	}
	return &Service{
		adapters: byName,
		prices:   prices,
		budgets:  budgets,
		log:      log.With().Str("component", "smart_router").Logger(),
	}
}

// Enabled reports whether any adapter is configured.
func (s *Service) Enabled() bool {
	return len(s.adapters) > 0
}

// Route sends a prompt to the cheapest adapter-backed provider, enforces
// the agent's budget and records spend after success.
func (s *Service) Route(ctx context.Context, agentID int64, prompt string) (*RouteResult, error) {
	if !s.Enabled() {
		return nil, fmt.Errorf("no provider adapters configured: %w", domain.ErrUnavailable)
	}

	current, err := s.budgets.GetCurrent(agentID)
	if err != nil {
		return nil, err
	}
	if current.MonthlyLimit > 0 && current.Remaining() <= 0 {
		return nil, fmt.Errorf("monthly budget of %.2f exhausted: %w", current.MonthlyLimit, domain.ErrBudgetExceeded)
	}

	adapter, pricePerK, err := s.pickAdapter()
	if err != nil {
		return nil, err
	}

	response, err := s.invokeWithRetry(ctx, adapter, prompt)
	if err != nil {
		return nil, fmt.Errorf("%s adapter failed: %w", adapter.Name(), domain.ErrUnavailable)
	}

	cost := pricePerK * float64(response.TokensIn+response.TokensOut) / 1000

	if err := s.budgets.RecordSpend(budget.RequestLogEntry{
		AgentID:   agentID,
		Provider:  adapter.Name(),
		Category:  "llm",
		Cost:      cost,
		LatencyMs: response.LatencyMs,
		TokensIn:  response.TokensIn,
		TokensOut: response.TokensOut,
		Status:    "ok",
	}); err != nil {
		s.log.Error().Err(err).Int64("agent_id", agentID).Msg("Failed to record spend")
	}

	return &RouteResult{
		Provider: adapter.Name(),
		Output:   response.Output,
		Cost:     cost,
		Response: response,
	}, nil
}

// pickAdapter selects the cheapest provider that has a configured
// adapter, using the current fused chat rates.
func (s *Service) pickAdapter() (Adapter, float64, error) {
	comparisons, err := s.prices.Compare("llm", "chat", nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to compare providers: %w", err)
	}

	for _, c := range comparisons {
		if adapter, ok := s.adapters[c.Provider]; ok {
			return adapter, c.Price, nil
		}
	}

	// No priced adapter: fall back to any configured one at zero cost.
	for _, adapter := range s.adapters {
		s.log.Warn().Str("provider", adapter.Name()).Msg("No current rate for adapter, routing at zero cost")
		return adapter, 0, nil
	}

	return nil, 0, fmt.Errorf("no provider adapters configured: %w", domain.ErrUnavailable)
}

// invokeWithRetry retries transient adapter failures once, spacing the
// attempts with jittered backoff.
func (s *Service) invokeWithRetry(ctx context.Context, adapter Adapter, prompt string) (Response, error) {
	b := &backoff.Backoff{
		Min:    200 * time.Millisecond,
		Max:    2 * time.Second,
		Jitter: true,
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		response, err := adapter.Invoke(ctx, prompt)
		if err == nil {
			return response, nil
		}
		lastErr = err

		if attempt < maxAttempts {
			s.log.Warn().Err(err).
				Str("provider", adapter.Name()).
				Int("attempt", attempt).
				Msg("Adapter call failed, retrying")
			select {
			case <-time.After(b.Duration()):
			case <-ctx.Done():
				return Response{}, ctx.Err()
			}
		}
	}

	return Response{}, lastErr
}
