package resilience

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/research-token/internal/errors"
	"github.com/ZanzyTHEbar/research-token/internal/ledger"
)

func quickPolicy(attempts int) RetryPolicy {
	return RetryPolicy{
		Name: "test",
		Config: RetryConfig{
			MaxAttempts:   attempts,
			InitialDelay:  time.Millisecond,
			MaxDelay:      5 * time.Millisecond,
			BackoffFactor: 2,
		},
	}
}

func TestRetryRetriesRetryableErrors(t *testing.T) {
	var calls int32
	err := RetryWithPolicy(context.Background(), quickPolicy(3), func() error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return ledger.ErrClusterUnavailable
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, int32(3), calls)
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	var calls int32
	err := RetryWithPolicy(context.Background(), quickPolicy(5), func() error {
		atomic.AddInt32(&calls, 1)
		return ledger.ErrNotActive
	})

	assert.ErrorIs(t, err, ledger.ErrNotActive)
	assert.Equal(t, int32(1), calls)
}

func TestRetryReturnsLastError(t *testing.T) {
	var calls int32
	err := RetryWithPolicy(context.Background(), quickPolicy(2), func() error {
		atomic.AddInt32(&calls, 1)
		return ledger.ErrClusterUnavailable
	})

	assert.ErrorIs(t, err, ledger.ErrClusterUnavailable)
	assert.Equal(t, int32(2), calls)
}

func TestRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := Retry(ctx, func() error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestCalculateDelay(t *testing.T) {
	cfg := RetryConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, BackoffFactor: 2}

	assert.Equal(t, 100*time.Millisecond, calculateDelay(cfg, 0))
	assert.Equal(t, 400*time.Millisecond, calculateDelay(cfg, 2))
	assert.Equal(t, time.Second, calculateDelay(cfg, 10))

	cfg.JitterEnabled = true
	d := calculateDelay(cfg, 0)
	assert.GreaterOrEqual(t, d, 100*time.Millisecond)
	assert.Less(t, d, 110*time.Millisecond)

	cfg.InitialDelay = 1
	assert.NotPanics(t, func() { calculateDelay(cfg, 0) })
}

func TestRetryDelayRateLimited(t *testing.T) {
	cfg := RetryConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: 30 * time.Second, BackoffFactor: 2}

	limited := errors.NewRateLimitError("60")
	assert.Equal(t, time.Second, retryDelay(cfg, 0, limited))
	assert.Equal(t, 4*time.Second, retryDelay(cfg, 1, limited))

	cfg.MaxDelay = 2 * time.Second
	assert.Equal(t, 2*time.Second, retryDelay(cfg, 1, limited))

	network := errors.NewNetworkError("down", stderrors.New("dial"))
	assert.Equal(t, 200*time.Millisecond, retryDelay(cfg, 1, network))
}

func newTestBreaker(threshold int, recovery time.Duration) (*CircuitBreaker, *time.Time) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: threshold,
		RecoveryTimeout:  recovery,
		SuccessThreshold: 1,
	})
	cb.now = func() time.Time { return now }
	return cb, &now
}

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	cb, now := newTestBreaker(2, time.Minute)
	boom := stderrors.New("boom")

	assert.Equal(t, boom, cb.Call(func() error { return boom }))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, boom, cb.Call(func() error { return boom }))
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Call(func() error {
		called = true
		return nil
	})
	var cbErr *CircuitBreakerError
	require.ErrorAs(t, err, &cbErr)
	assert.False(t, called)

	*now = now.Add(2 * time.Minute)
	require.NoError(t, cb.Call(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
	assert.Zero(t, cb.Failures())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb, now := newTestBreaker(1, time.Minute)
	boom := stderrors.New("boom")

	_ = cb.Call(func() error { return boom })
	require.Equal(t, StateOpen, cb.State())

	*now = now.Add(2 * time.Minute)
	_ = cb.Call(func() error { return boom })
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreakerStateChangeHook(t *testing.T) {
	var transitions []string
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		OnStateChange: func(from, to CircuitBreakerState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	_ = cb.Call(func() error { return stderrors.New("x") })
	assert.Equal(t, []string{"closed->open"}, transitions)

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, "closed", cb.Stats()["state"])
}

func TestGuardIgnoresPermanentErrors(t *testing.T) {
	g := NewGuard("cluster", quickPolicy(1), CircuitBreakerConfig{FailureThreshold: 1})

	for i := 0; i < 3; i++ {
		err := g.Do(context.Background(), func(ctx context.Context) error { return ledger.ErrNotActive })
		assert.ErrorIs(t, err, ledger.ErrNotActive)
	}
	assert.Equal(t, StateClosed, g.Breaker.State())
}

func TestGuardOpenBreakerIsExternalAPIError(t *testing.T) {
	g := NewGuard("cluster", quickPolicy(1), CircuitBreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Hour})

	err := g.Do(context.Background(), func(ctx context.Context) error { return ledger.ErrClusterUnavailable })
	assert.ErrorIs(t, err, ledger.ErrClusterUnavailable)
	require.Equal(t, StateOpen, g.Breaker.State())

	err = g.Do(context.Background(), func(ctx context.Context) error { return nil })
	appErr := errors.ToAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, errors.CategoryExternalAPI, appErr.Category)
}
