package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ZanzyTHEbar/research-token/internal/cache"
	"github.com/ZanzyTHEbar/research-token/internal/catalog"
	"github.com/ZanzyTHEbar/research-token/internal/config"
	"github.com/ZanzyTHEbar/research-token/internal/database"
	"github.com/ZanzyTHEbar/research-token/internal/errors"
	"github.com/ZanzyTHEbar/research-token/internal/leaderboard"
	"github.com/ZanzyTHEbar/research-token/internal/ledger"
	"github.com/ZanzyTHEbar/research-token/internal/middleware"
	"github.com/ZanzyTHEbar/research-token/internal/monitoring"
	"github.com/ZanzyTHEbar/research-token/internal/payments"
	"github.com/ZanzyTHEbar/research-token/internal/ratelimit"
	"github.com/ZanzyTHEbar/research-token/internal/security"
	"github.com/ZanzyTHEbar/research-token/internal/session"
	"github.com/ZanzyTHEbar/research-token/internal/tokenization"
)

// Paths whose GET responses go through the HTTP cache
const (
	searchPath      = "/api/publications/search"
	leaderboardPath = "/api/leaderboard"
)

const sessionSweepSchedule = "@every 1m"

// app holds the wired services behind the router
type app struct {
	cfg      *config.Config
	logger   *monitoring.Logger
	metrics  *monitoring.Metrics
	catalog  catalog.Index
	db       *database.DB
	cluster  *ledger.Simulator
	tokens   *tokenization.Service
	payments *payments.Service
	board    *leaderboard.Service
	sessions *session.Registry
	issuer   *session.Issuer
	redis    *ratelimit.RedisClient
	limiter  *ratelimit.RateLimiter
	cache    *cache.Cache
	security *security.SecurityMiddleware
	compress *middleware.CompressionMiddleware
	cron     *cron.Cron
}

func newApp(ctx context.Context, cfg *config.Config, logger *monitoring.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	idx, err := catalog.Open(cfg.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	a.catalog = idx

	a.metrics = monitoring.NewMetrics().WithPrometheus(monitoring.NewPrometheus())

	var (
		accounts ledger.AccountStore
		fundings tokenization.FundingStore
	)
	switch cfg.Storage {
	case config.StorageMemory:
		accounts = ledger.NewMemoryStore()
		fundings = tokenization.NewMemoryFundingStore()
	default:
		db, err := database.NewDB(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		a.db = db
		repo := database.NewRepository(db)
		accounts = repo
		fundings = repo
	}

	a.cluster = ledger.NewSimulator(ledger.NewProgram(accounts, nil),
		ledger.WithDelay(cfg.Ledger.ConfirmationDelay),
		ledger.WithClusterName(cfg.Ledger.Cluster),
	)

	a.tokens, err = tokenization.NewService(idx, a.cluster, fundings, tokenization.Options{
		Authority:      cfg.Ledger.Authority,
		FundingGoalSOL: cfg.Ledger.FundingGoalSOL,
		Metrics:        a.metrics,
		Logger:         logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.payments = payments.NewService(payments.Config{
		SecretKey:     cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		SuccessURL:    cfg.Stripe.SuccessURL,
		CancelURL:     cfg.Stripe.CancelURL,
	}, a.tokens, logger)

	a.board = leaderboard.NewServiceWithCache(fundings, idx, leaderboard.NewLeaderboardCache(cfg.Cache.TTL))

	secret := cfg.Session.Secret
	if secret == "" {
		secret, err = randomSecret()
		if err != nil {
			a.Close()
			return nil, err
		}
		slog.Warn("No session secret configured; tokens will not survive a restart")
	}
	a.issuer, err = session.NewIssuer(secret, cfg.Session.TokenTTL)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.sessions = session.NewRegistry(cfg.Session.ToastTTL, nil)

	a.redis, err = ratelimit.NewRedisClient(ctx, ratelimit.RedisOptions{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err != nil {
		slog.Warn("Redis unavailable, using in-memory rate limiting", "addr", cfg.Redis.Addr, "error", err)
	}
	a.limiter = ratelimit.NewRateLimiter(a.redis, ratelimit.Config{
		IPLimit:         cfg.RateLimit.IPPerMinute,
		FundLimit:       cfg.RateLimit.FundPerMinute,
		CleanupInterval: time.Hour,
	}, a.metrics)

	a.cache = cache.NewCache(cfg.Cache.TTL)

	a.security = security.NewSecurityMiddleware(security.SecurityConfig{
		MaxQueryLength: security.DefaultSecurityConfig().MaxQueryLength,
		MaxBodyBytes:   security.DefaultSecurityConfig().MaxBodyBytes,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
		EnableHSTS:     cfg.Server.EnableHSTS,
	})
	a.compress = middleware.NewCompressionMiddleware(middleware.DefaultCompressionConfig())

	return a, nil
}

// startJobs warms the leaderboard and schedules its refresh together with
// the session sweep.
func (a *app) startJobs(ctx context.Context) error {
	a.board.WarmCache(ctx)

	c, err := a.board.StartAutoRefresh(a.cfg.Leaderboard.Schedule)
	if err != nil {
		return err
	}
	if _, err := c.AddFunc(sessionSweepSchedule, func() {
		if removed := a.sessions.Sweep(a.cfg.Session.IdleTimeout); removed > 0 {
			slog.Debug("Swept idle sessions", "removed", removed)
		}
	}); err != nil {
		<-c.Stop().Done()
		return err
	}
	a.cron = c
	return nil
}

// invalidateFundingViews drops cached views that include funding totals
func (a *app) invalidateFundingViews() {
	a.board.Invalidate()
	a.cache.InvalidatePath(leaderboardPath)
}

// Close stops background work and releases connections
func (a *app) Close() {
	if a.cron != nil {
		<-a.cron.Stop().Done()
	}
	if a.limiter != nil {
		a.limiter.Close()
	}
	if a.redis != nil {
		errors.SafeClose(a.redis, "redis")
	}
	if a.cache != nil {
		a.cache.Close()
	}
	if a.board != nil {
		a.board.Close()
	}
	if a.db != nil {
		errors.SafeClose(a.db, "database")
	}
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate session secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
