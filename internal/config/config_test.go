package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, StorageSQLite, cfg.Storage)
	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, "devnet", cfg.Ledger.Cluster)
	assert.Equal(t, 2*time.Second, cfg.Ledger.ConfirmationDelay)
	assert.Equal(t, 100.0, cfg.Ledger.FundingGoalSOL)
	assert.Equal(t, 60, cfg.RateLimit.IPPerMinute)
	assert.Equal(t, 10, cfg.RateLimit.FundPerMinute)
	assert.Equal(t, 5*time.Second, cfg.Session.ToastTTL)
	assert.Equal(t, 24*time.Hour, cfg.Session.TokenTTL)
	assert.Equal(t, 15*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "@every 10m", cfg.Leaderboard.Schedule)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Stripe.SecretKey)
	assert.Contains(t, cfg.Server.AllowedOrigins, "http://localhost:3000")
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "research-token.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
storage: memory
ledger:
  confirmation_delay: 0s
  cluster: testnet
leaderboard:
  schedule: "@hourly"
log:
  level: debug
`), 0o600))

	cfg, err := Load(New(), path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, StorageMemory, cfg.Storage)
	assert.Equal(t, time.Duration(0), cfg.Ledger.ConfirmationDelay)
	assert.Equal(t, "testnet", cfg.Ledger.Cluster)
	assert.Equal(t, "@hourly", cfg.Leaderboard.Schedule)
	assert.Equal(t, "debug", cfg.Log.Level)
	// untouched keys keep their defaults
	assert.Equal(t, 60, cfg.RateLimit.IPPerMinute)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "research-token.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o600))

	t.Setenv("RESEARCH_TOKEN_SERVER_PORT", "7070")
	t.Setenv("RESEARCH_TOKEN_REDIS_ADDR", "localhost:6379")
	t.Setenv("RESEARCH_TOKEN_SESSION_TOAST_TTL", "10s")

	cfg, err := Load(New(), path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 10*time.Second, cfg.Session.ToastTTL)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load(New(), "")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "port zero", mutate: func(c *Config) { c.Server.Port = 0 }},
		{name: "port too large", mutate: func(c *Config) { c.Server.Port = 70000 }},
		{name: "unknown storage", mutate: func(c *Config) { c.Storage = "postgres" }},
		{name: "sqlite without data dir", mutate: func(c *Config) { c.DataDir = "" }},
		{name: "negative delay", mutate: func(c *Config) { c.Ledger.ConfirmationDelay = -time.Second }},
		{name: "zero funding goal", mutate: func(c *Config) { c.Ledger.FundingGoalSOL = 0 }},
		{name: "zero ip limit", mutate: func(c *Config) { c.RateLimit.IPPerMinute = 0 }},
		{name: "stripe without webhook secret", mutate: func(c *Config) { c.Stripe.SecretKey = "sk_test_123" }},
		{name: "zero token ttl", mutate: func(c *Config) { c.Session.TokenTTL = 0 }},
		{name: "zero leaderboard limit", mutate: func(c *Config) { c.Leaderboard.Limit = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := valid()
	cfg.Storage = StorageMemory
	cfg.DataDir = ""
	assert.NoError(t, cfg.Validate())
}
