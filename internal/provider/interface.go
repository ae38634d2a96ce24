package provider

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/sony/gobreaker"
)

// Provider defines the market-data queries the poller consumes. All calls
// are best-effort: a failure means "no data right now", never a reason to
// abort a poll cycle.
type Provider interface {
	GetQuote(ctx context.Context, symbol string) (*Quote, error)
	GetOptionSnapshot(ctx context.Context, occSymbol string) (*OptionSnapshot, error)
	GetDailyHistory(ctx context.Context, symbol string, start, end time.Time) ([]DailyBar, error)
}

// Ensure Client implements Provider at compile time.
var _ Provider = (*Client)(nil)

// CircuitBreakerProvider wraps a Provider with circuit breaker functionality.
// During a provider outage, requests fail fast instead of waiting out the
// per-request timeout.
type CircuitBreakerProvider struct {
	provider Provider
	breaker  *gobreaker.CircuitBreaker
}

// CircuitBreakerSettings configures circuit breaker behavior
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// exec is a generic helper for circuit breaker wrapper methods
func execCircuitBreaker[T any](
	breaker *gobreaker.CircuitBreaker,
	p Provider,
	fn func(Provider) (T, error),
) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn(p) })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

// NewCircuitBreakerProvider creates a CircuitBreakerProvider with sensible defaults
func NewCircuitBreakerProvider(p Provider) *CircuitBreakerProvider {
	return NewCircuitBreakerProviderWithSettings(p, CircuitBreakerSettings{
		MaxRequests:  3,                // Allow 3 requests when half-open
		Interval:     60 * time.Second, // Reset counts every minute
		Timeout:      30 * time.Second, // Open circuit for 30 seconds
		MinRequests:  5,                // Minimum requests before tripping
		FailureRatio: 0.6,              // Trip if 60% failure rate
	})
}

// NewCircuitBreakerProviderWithSettings creates a CircuitBreakerProvider with custom settings
func NewCircuitBreakerProviderWithSettings(p Provider, settings CircuitBreakerSettings) *CircuitBreakerProvider {
	gbSettings := gobreaker.Settings{
		Name:        "MarketDataCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %s state changed from %s to %s", name, from, to)
		},
	}

	return &CircuitBreakerProvider{
		provider: p,
		breaker:  gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// Open reports whether the breaker is currently rejecting requests. The
// health endpoint surfaces this as the degraded-mode indicator.
func (c *CircuitBreakerProvider) Open() bool {
	return c.breaker.State() == gobreaker.StateOpen
}

// GetQuote wraps the underlying provider call with circuit breaker
func (c *CircuitBreakerProvider) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	return execCircuitBreaker(c.breaker, c.provider, func(p Provider) (*Quote, error) {
		return p.GetQuote(ctx, symbol)
	})
}

// GetOptionSnapshot wraps the underlying provider call with circuit breaker
func (c *CircuitBreakerProvider) GetOptionSnapshot(ctx context.Context, occSymbol string) (*OptionSnapshot, error) {
	return execCircuitBreaker(c.breaker, c.provider, func(p Provider) (*OptionSnapshot, error) {
		return p.GetOptionSnapshot(ctx, occSymbol)
	})
}

// GetDailyHistory wraps the underlying provider call with circuit breaker
func (c *CircuitBreakerProvider) GetDailyHistory(ctx context.Context, symbol string, start, end time.Time) ([]DailyBar, error) {
	return execCircuitBreaker(c.breaker, c.provider, func(p Provider) ([]DailyBar, error) {
		return p.GetDailyHistory(ctx, symbol, start, end)
	})
}

// Ensure CircuitBreakerProvider implements Provider at compile time.
var _ Provider = (*CircuitBreakerProvider)(nil)
