package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions addresses the Redis server backing the limiter
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// RedisClient wraps the Redis client with health checks and graceful degradation
type RedisClient struct {
	client  *redis.Client
	enabled bool
	addr    string
}

// DisabledRedisClient returns a client that always reports Redis as off
func DisabledRedisClient() *RedisClient {
	return &RedisClient{}
}

// NewRedisClient connects to Redis. An empty address or a failed ping
// returns a disabled client; the ping error is returned alongside it.
func NewRedisClient(ctx context.Context, opts RedisOptions) (*RedisClient, error) {
	if opts.Addr == "" {
		slog.Warn("Redis address not configured, rate limiting will use in-memory fallback")
		return DisabledRedisClient(), nil
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = 10
	}

	slog.Info("Initializing Redis client", "addr", opts.Addr, "db", opts.DB)

	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     opts.PoolSize,
		MinIdleConns: 2,
		PoolTimeout:  4 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		slog.Error("Redis ping failed, falling back to in-memory rate limiting", "error", err)
		_ = client.Close()
		return &RedisClient{addr: opts.Addr}, fmt.Errorf("redis ping failed: %w", err)
	}

	slog.Info("Redis client connected successfully", "addr", opts.Addr)
	return WrapRedisClient(client, opts.Addr), nil
}

// WrapRedisClient enables an existing client without pinging it
func WrapRedisClient(client *redis.Client, addr string) *RedisClient {
	return &RedisClient{client: client, enabled: client != nil, addr: addr}
}

// GetClient returns the underlying Redis client
func (r *RedisClient) GetClient() *redis.Client {
	return r.client
}

// IsEnabled returns whether Redis is enabled
func (r *RedisClient) IsEnabled() bool {
	return r.enabled
}

// HealthCheck pings Redis
func (r *RedisClient) HealthCheck(ctx context.Context) error {
	if !r.enabled {
		return fmt.Errorf("redis is disabled")
	}
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	if r.enabled && r.client != nil {
		slog.Info("Closing Redis client connection")
		return r.client.Close()
	}
	return nil
}

// GetPoolStats returns Redis connection pool statistics
func (r *RedisClient) GetPoolStats() map[string]interface{} {
	if !r.enabled || r.client == nil {
		return map[string]interface{}{"enabled": false}
	}

	stats := r.client.PoolStats()
	return map[string]interface{}{
		"enabled":     true,
		"addr":        r.addr,
		"hits":        stats.Hits,
		"misses":      stats.Misses,
		"timeouts":    stats.Timeouts,
		"total_conns": stats.TotalConns,
		"idle_conns":  stats.IdleConns,
		"stale_conns": stats.StaleConns,
	}
}
