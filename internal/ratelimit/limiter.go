// Package ratelimit limits API requests per client IP, with a tighter limit
// on funding. Counters live in Redis when it is reachable and fall back to
// in-memory token buckets otherwise.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"golang.org/x/time/rate"

	"github.com/ZanzyTHEbar/research-token/internal/monitoring"
)

// Config holds rate limiter configuration
type Config struct {
	IPLimit         int           // requests per minute per IP on /api
	FundLimit       int           // fund requests per minute per IP
	CleanupInterval time.Duration // how often idle fallback limiters are dropped
}

// DefaultConfig returns default rate limiting configuration
func DefaultConfig() Config {
	return Config{
		IPLimit:         60,
		FundLimit:       10,
		CleanupInterval: time.Hour,
	}
}

// Rate is a number of requests allowed per period
type Rate struct {
	Limit  int
	Period time.Duration
}

// PerMinute returns a per-minute rate
func PerMinute(limit int) Rate {
	return Rate{Limit: limit, Period: time.Minute}
}

// Result represents the result of a rate limit check
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

type fallbackLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter provides distributed rate limiting with Redis and in-memory fallback
type RateLimiter struct {
	redisLimiter *redis_rate.Limiter
	redisClient  *RedisClient
	config       Config
	metrics      *monitoring.Metrics

	fallbackLimiters map[string]*fallbackLimiter
	fallbackMutex    sync.Mutex

	stop      chan struct{}
	closeOnce sync.Once
}

// NewRateLimiter creates a rate limiter. A nil or disabled Redis client
// limits in memory only.
func NewRateLimiter(redisClient *RedisClient, config Config, metrics *monitoring.Metrics) *RateLimiter {
	if redisClient == nil {
		redisClient = DisabledRedisClient()
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = time.Hour
	}

	rl := &RateLimiter{
		redisClient:      redisClient,
		config:           config,
		metrics:          metrics,
		fallbackLimiters: make(map[string]*fallbackLimiter),
		stop:             make(chan struct{}),
	}

	if redisClient.IsEnabled() {
		rl.redisLimiter = redis_rate.NewLimiter(redisClient.GetClient())
		slog.Info("Redis rate limiter initialized")
	} else {
		slog.Warn("Redis unavailable, using in-memory rate limiting only")
	}

	go rl.cleanupLoop()

	return rl
}

// Close stops the cleanup goroutine
func (rl *RateLimiter) Close() {
	rl.closeOnce.Do(func() { close(rl.stop) })
}

// Config returns the limiter configuration
func (rl *RateLimiter) Config() Config {
	return rl.config
}

// AllowIP checks the per-minute /api limit of an IP
func (rl *RateLimiter) AllowIP(ctx context.Context, ip string) (*Result, error) {
	return rl.Allow(ctx, "ratelimit:ip:"+ip, PerMinute(rl.config.IPLimit))
}

// AllowEndpoint checks the per-minute limit of one endpoint for an IP
func (rl *RateLimiter) AllowEndpoint(ctx context.Context, endpoint, ip string, limit int) (*Result, error) {
	return rl.Allow(ctx, fmt.Sprintf("ratelimit:endpoint:%s:%s", endpoint, ip), PerMinute(limit))
}

// Allow checks key against r using Redis, or the in-memory fallback when
// Redis is disabled or failing.
func (rl *RateLimiter) Allow(ctx context.Context, key string, r Rate) (*Result, error) {
	if rl.redisLimiter != nil {
		result, err := rl.allowRedis(ctx, key, r)
		if err == nil {
			return result, nil
		}
		slog.Warn("Redis rate limit check failed, using fallback", "key", key, "error", err)
		if rl.metrics != nil {
			rl.metrics.IncrementRateLimitRedisError()
		}
	}

	if rl.metrics != nil {
		rl.metrics.IncrementRateLimitFallback()
	}
	return rl.allowFallback(key, r), nil
}

func (rl *RateLimiter) allowRedis(ctx context.Context, key string, r Rate) (*Result, error) {
	res, err := rl.redisLimiter.Allow(ctx, key, redis_rate.Limit{
		Rate:   r.Limit,
		Burst:  r.Limit,
		Period: r.Period,
	})
	if err != nil {
		return nil, fmt.Errorf("redis rate limit check failed: %w", err)
	}

	return &Result{
		Allowed:    res.Allowed > 0,
		Limit:      res.Limit.Rate,
		Remaining:  res.Remaining,
		ResetAt:    time.Now().Add(res.ResetAfter),
		RetryAfter: res.RetryAfter,
	}, nil
}

// allowFallback uses a token bucket holding r.Limit tokens and refilling
// over r.Period.
func (rl *RateLimiter) allowFallback(key string, r Rate) *Result {
	now := time.Now()

	rl.fallbackMutex.Lock()
	fl, exists := rl.fallbackLimiters[key]
	if !exists {
		burst := r.Limit
		if burst < 1 {
			burst = 1
		}
		fl = &fallbackLimiter{
			limiter: rate.NewLimiter(rate.Limit(float64(r.Limit)/r.Period.Seconds()), burst),
		}
		rl.fallbackLimiters[key] = fl
	}
	fl.lastSeen = now
	rl.fallbackMutex.Unlock()

	allowed := fl.limiter.AllowN(now, 1)
	tokens := fl.limiter.TokensAt(now)

	remaining := int(tokens)
	if remaining < 0 {
		remaining = 0
	}

	result := &Result{
		Allowed:   allowed,
		Limit:     r.Limit,
		Remaining: remaining,
		ResetAt:   now.Add(r.Period),
	}

	if !allowed {
		perToken := r.Period
		if r.Limit > 0 {
			perToken = r.Period / time.Duration(r.Limit)
		}
		result.RetryAfter = time.Duration((1 - tokens) * float64(perToken))
		if result.RetryAfter <= 0 {
			result.RetryAfter = perToken
		}
		result.ResetAt = now.Add(result.RetryAfter)
	}

	return result
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.cleanup()
		}
	}
}

// cleanup drops fallback limiters not used for a cleanup interval
func (rl *RateLimiter) cleanup() {
	cutoff := time.Now().Add(-rl.config.CleanupInterval)

	rl.fallbackMutex.Lock()
	defer rl.fallbackMutex.Unlock()

	removed := 0
	for key, fl := range rl.fallbackLimiters {
		if fl.lastSeen.Before(cutoff) {
			delete(rl.fallbackLimiters, key)
			removed++
		}
	}
	if removed > 0 {
		slog.Info("Cleaned up fallback rate limiters", "removed", removed, "remaining", len(rl.fallbackLimiters))
	}
}

// GetStats returns rate limiter statistics
func (rl *RateLimiter) GetStats() map[string]interface{} {
	rl.fallbackMutex.Lock()
	fallbackCount := len(rl.fallbackLimiters)
	rl.fallbackMutex.Unlock()

	stats := map[string]interface{}{
		"redis_enabled":     rl.redisClient.IsEnabled(),
		"fallback_enabled":  true,
		"fallback_limiters": fallbackCount,
		"config": map[string]interface{}{
			"ip_limit_per_min":   rl.config.IPLimit,
			"fund_limit_per_min": rl.config.FundLimit,
		},
	}

	if rl.redisClient.IsEnabled() {
		stats["redis_pool"] = rl.redisClient.GetPoolStats()
	}

	return stats
}
