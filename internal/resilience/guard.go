package resilience

import (
	"context"
	stderrors "errors"

	"github.com/ZanzyTHEbar/research-token/internal/errors"
)

// Guard runs calls through a circuit breaker, retrying retryable failures
type Guard struct {
	Name    string
	Breaker *CircuitBreaker
	Policy  RetryPolicy
}

// NewGuard creates a guard whose breaker only counts retryable errors. A
// rejected instruction such as an inactive account does not trip it.
func NewGuard(name string, policy RetryPolicy, config CircuitBreakerConfig) *Guard {
	if config.IsFailure == nil {
		config.IsFailure = errors.IsRetryableError
	}
	return &Guard{
		Name:    name,
		Breaker: NewCircuitBreaker(config),
		Policy:  policy,
	}
}

// Do executes fn. An open breaker surfaces as an external API error and is
// not retried.
func (g *Guard) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	err := RetryWithPolicy(ctx, g.Policy, func() error {
		return g.Breaker.Call(func() error { return fn(ctx) })
	})

	var cbErr *CircuitBreakerError
	if stderrors.As(err, &cbErr) {
		return errors.NewExternalAPIError(g.Name, err)
	}
	return err
}
