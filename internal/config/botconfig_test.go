package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 0.07, cfg.Strategy.ExtremeMovePct)
	assert.Equal(t, 0.05, cfg.Strategy.HardStopPct)
	assert.Equal(t, 0.025, cfg.Strategy.ProfitCeilingPct)
	assert.Equal(t, 0.004, cfg.Strategy.ProfitExitMaxSpreadPct)
	assert.Equal(t, int64(100), cfg.Strategy.ProfitExitMinVolume)
	assert.Equal(t, 0.02, cfg.Strategy.RiskPerTradePct)
	assert.Equal(t, 3, cfg.Strategy.MaxConcurrentPositions)
	assert.Equal(t, 0.005, cfg.Strategy.AssumedFrictionPct)
	assert.Equal(t, "America/New_York", cfg.Schedule.Timezone)
	assert.Equal(t, 16, cfg.Schedule.AnchorHour)
	assert.Equal(t, 20, cfg.Schedule.EntryCutoffHour)
	assert.False(t, cfg.Postgres.Enabled)
	assert.False(t, cfg.Cache.RedisEnabled)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlBody := `
strategy:
  extreme_move_pct: 0.05
  max_concurrent_positions: 2
schedule:
  entry_cutoff_hour: 19
`
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 0.05, cfg.Strategy.ExtremeMovePct)
	assert.Equal(t, 2, cfg.Strategy.MaxConcurrentPositions)
	assert.Equal(t, 19, cfg.Schedule.EntryCutoffHour)
	// Untouched values keep defaults.
	assert.Equal(t, 0.05, cfg.Strategy.HardStopPct)
	assert.Equal(t, 16, cfg.Schedule.AnchorHour)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestApplyEnv_SecretsAndToggles(t *testing.T) {
	t.Setenv("ALPACA_API_KEY", "key-from-env")
	t.Setenv("ALPACA_SECRET_KEY", "secret-from-env")
	t.Setenv("ALPACA_PAPER", "false")
	t.Setenv("PG_ENABLED", "true")
	t.Setenv("PG_DSN", "postgres://env")
	t.Setenv("REDIS_ADDR", "redis-host:6379")

	cfg := DefaultConfig()
	cfg.ApplyEnv()

	assert.Equal(t, "key-from-env", cfg.Alpaca.APIKey)
	assert.Equal(t, "secret-from-env", cfg.Alpaca.SecretKey)
	assert.False(t, cfg.Alpaca.Paper)
	assert.True(t, cfg.Postgres.Enabled)
	assert.Equal(t, "postgres://env", cfg.Postgres.DSN)
	assert.True(t, cfg.Cache.RedisEnabled)
	assert.Equal(t, "redis-host:6379", cfg.Cache.RedisAddr)
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "zero_threshold",
			mutate:  func(c *Config) { c.Strategy.ExtremeMovePct = 0 },
			wantErr: "extreme_move_pct",
		},
		{
			name:    "negative_friction",
			mutate:  func(c *Config) { c.Strategy.AssumedFrictionPct = -0.001 },
			wantErr: "assumed_friction_pct",
		},
		{
			name:    "no_slots",
			mutate:  func(c *Config) { c.Strategy.MaxConcurrentPositions = 0 },
			wantErr: "max_concurrent_positions",
		},
		{
			name:    "risk_fraction_full_account",
			mutate:  func(c *Config) { c.Strategy.RiskPerTradePct = 1.0 },
			wantErr: "risk_per_trade_pct",
		},
		{
			name:    "bad_timezone",
			mutate:  func(c *Config) { c.Schedule.Timezone = "Mars/Olympus" },
			wantErr: "timezone",
		},
		{
			name:    "hour_out_of_range",
			mutate:  func(c *Config) { c.Schedule.AnchorHour = 24 },
			wantErr: "anchor time",
		},
		{
			name:    "zero_interval",
			mutate:  func(c *Config) { c.Schedule.ManageIntervalSec = 0 },
			wantErr: "polling intervals",
		},
		{
			name:    "postgres_without_dsn",
			mutate:  func(c *Config) { c.Postgres.Enabled = true; c.Postgres.DSN = "" },
			wantErr: "postgres enabled but dsn empty",
		},
		{
			name:    "empty_state_dir",
			mutate:  func(c *Config) { c.StateDir = "" },
			wantErr: "state_dir",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRequireCredentials(t *testing.T) {
	cfg := DefaultConfig()
	assert.Error(t, cfg.RequireCredentials())

	cfg.Alpaca.APIKey = "k"
	cfg.Alpaca.SecretKey = "s"
	assert.NoError(t, cfg.RequireCredentials())
}
