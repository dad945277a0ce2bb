// Package config loads server settings from defaults, an optional YAML file
// and RESEARCH_TOKEN_* environment variables, in increasing precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// RESEARCH_TOKEN_SERVER_PORT
const EnvPrefix = "RESEARCH_TOKEN"

// Storage backends
const (
	StorageSQLite = "sqlite"
	StorageMemory = "memory"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	DataDir     string            `mapstructure:"data_dir"`
	Storage     string            `mapstructure:"storage"`
	Catalog     CatalogConfig     `mapstructure:"catalog"`
	Ledger      LedgerConfig      `mapstructure:"ledger"`
	Redis       RedisConfig       `mapstructure:"redis"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Stripe      StripeConfig      `mapstructure:"stripe"`
	Session     SessionConfig     `mapstructure:"session"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Leaderboard LeaderboardConfig `mapstructure:"leaderboard"`
	Log         LogConfig         `mapstructure:"log"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	EnableHSTS      bool          `mapstructure:"enable_hsts"`
}

type CatalogConfig struct {
	// Path to a YAML catalog. Empty uses the embedded seed catalog.
	Path string `mapstructure:"path"`
}

type LedgerConfig struct {
	Cluster           string        `mapstructure:"cluster"`
	ConfirmationDelay time.Duration `mapstructure:"confirmation_delay"`
	FundingGoalSOL    float64       `mapstructure:"funding_goal_sol"`
	Authority         string        `mapstructure:"authority"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type RateLimitConfig struct {
	IPPerMinute   int `mapstructure:"ip_per_minute"`
	FundPerMinute int `mapstructure:"fund_per_minute"`
}

type StripeConfig struct {
	SecretKey     string `mapstructure:"secret_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	SuccessURL    string `mapstructure:"success_url"`
	CancelURL     string `mapstructure:"cancel_url"`
}

type SessionConfig struct {
	Secret      string        `mapstructure:"secret"`
	TokenTTL    time.Duration `mapstructure:"token_ttl"`
	ToastTTL    time.Duration `mapstructure:"toast_ttl"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
}

type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type LeaderboardConfig struct {
	Schedule string `mapstructure:"schedule"`
	Limit    int    `mapstructure:"limit"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000", "http://localhost:5173"})
	v.SetDefault("server.enable_hsts", false)

	v.SetDefault("data_dir", "./data")
	v.SetDefault("storage", StorageSQLite)
	v.SetDefault("catalog.path", "")

	v.SetDefault("ledger.cluster", "devnet")
	v.SetDefault("ledger.confirmation_delay", 2*time.Second)
	v.SetDefault("ledger.funding_goal_sol", 100.0)
	v.SetDefault("ledger.authority", "")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("rate_limit.ip_per_minute", 60)
	v.SetDefault("rate_limit.fund_per_minute", 10)

	v.SetDefault("stripe.secret_key", "")
	v.SetDefault("stripe.webhook_secret", "")
	v.SetDefault("stripe.success_url", "http://localhost:3000/funding/success")
	v.SetDefault("stripe.cancel_url", "http://localhost:3000/funding/cancel")

	v.SetDefault("session.secret", "")
	v.SetDefault("session.token_ttl", 24*time.Hour)
	v.SetDefault("session.toast_ttl", 5*time.Second)
	v.SetDefault("session.idle_timeout", time.Hour)

	v.SetDefault("cache.ttl", 15*time.Minute)

	v.SetDefault("leaderboard.schedule", "@every 10m")
	v.SetDefault("leaderboard.limit", 50)

	v.SetDefault("log.level", "info")
}

// New returns a viper instance with defaults and environment binding set.
// Callers may bind flags onto it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional config file and decodes the result. An empty
// path skips the file.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that would otherwise fail late
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	switch c.Storage {
	case StorageSQLite:
		if c.DataDir == "" {
			return fmt.Errorf("data_dir is required for sqlite storage")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("storage must be %q or %q, got %q", StorageSQLite, StorageMemory, c.Storage)
	}
	if c.Ledger.ConfirmationDelay < 0 {
		return fmt.Errorf("ledger.confirmation_delay must not be negative")
	}
	if c.Ledger.FundingGoalSOL <= 0 {
		return fmt.Errorf("ledger.funding_goal_sol must be positive")
	}
	if c.RateLimit.IPPerMinute <= 0 || c.RateLimit.FundPerMinute <= 0 {
		return fmt.Errorf("rate_limit limits must be positive")
	}
	if c.Stripe.SecretKey != "" && c.Stripe.WebhookSecret == "" {
		return fmt.Errorf("stripe.webhook_secret is required when stripe.secret_key is set")
	}
	if c.Session.TokenTTL <= 0 {
		return fmt.Errorf("session.token_ttl must be positive")
	}
	if c.Leaderboard.Limit <= 0 {
		return fmt.Errorf("leaderboard.limit must be positive")
	}
	return nil
}

// Addr is the listen address for the HTTP server
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
