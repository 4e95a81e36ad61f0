package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration for a nightfade session.
// Secrets and deployment toggles can be overridden from the environment
// (see ApplyEnv) so the YAML file stays safe to commit.
type Config struct {
	StateDir      string `yaml:"state_dir"`
	WatchlistPath string `yaml:"watchlist"`

	Alpaca   AlpacaConfig     `yaml:"alpaca"`
	Schedule ScheduleConfig   `yaml:"schedule"`
	Strategy StrategyConfig   `yaml:"strategy"`
	Data     DataConfig       `yaml:"data"`
	Cache    QuoteCacheConfig `yaml:"cache"`
	Postgres PostgresConfig   `yaml:"postgres"`
	Alert    AlertConfig      `yaml:"alert"`
	Monitor  MonitorConfig    `yaml:"monitor"`
	Logging  LoggingConfig    `yaml:"logging"`
}

// AlpacaConfig carries brokerage credentials and host selection.
// TradeHost/DataHost are normally derived from Paper and only set
// explicitly by tests.
type AlpacaConfig struct {
	APIKey    string `yaml:"api_key"`
	SecretKey string `yaml:"secret_key"`
	Paper     bool   `yaml:"paper"`
	TradeHost string `yaml:"trade_host"`
	DataHost  string `yaml:"data_host"`
}

// ScheduleConfig defines the session timetable. All times are wall-clock
// in Timezone (exchange local time).
type ScheduleConfig struct {
	Timezone string `yaml:"timezone"`

	AnchorHour   int `yaml:"anchor_hour"`
	AnchorMinute int `yaml:"anchor_minute"`
	// Seconds to wait after the bell before sampling official closes.
	AnchorSettleSec int `yaml:"anchor_settle_sec"`

	MonitorStartHour   int `yaml:"monitor_start_hour"`
	MonitorStartMinute int `yaml:"monitor_start_minute"`

	// Boundary between the "4-6" and "6-8" trigger windows.
	LateWindowHour int `yaml:"late_window_hour"`

	EntryCutoffHour   int `yaml:"entry_cutoff_hour"`
	EntryCutoffMinute int `yaml:"entry_cutoff_minute"`

	ExitHour          int `yaml:"exit_hour"`
	ExitMinute        int `yaml:"exit_minute"`
	ExitWindowMinutes int `yaml:"exit_window_minutes"`

	MonitorIntervalSec int `yaml:"monitor_interval_sec"`
	ManageIntervalSec  int `yaml:"manage_interval_sec"`
}

// StrategyConfig holds the fade-strategy parameters.
type StrategyConfig struct {
	ExtremeMovePct         float64 `yaml:"extreme_move_pct"`
	HardStopPct            float64 `yaml:"hard_stop_pct"`
	ProfitCeilingPct       float64 `yaml:"profit_ceiling_pct"`
	ProfitExitMaxSpreadPct float64 `yaml:"profit_exit_max_spread_pct"`
	ProfitExitMinVolume    int64   `yaml:"profit_exit_min_volume"`
	RiskPerTradePct        float64 `yaml:"risk_per_trade_pct"`
	MaxConcurrentPositions int     `yaml:"max_concurrent_positions"`
	AssumedFrictionPct     float64 `yaml:"assumed_friction_pct"`
}

// DataConfig tunes the quote provider chain.
type DataConfig struct {
	RequestTimeoutSec int     `yaml:"request_timeout_sec"`
	RetryAttempts     int     `yaml:"retry_attempts"`
	RetryBackoffMs    int     `yaml:"retry_backoff_ms"`
	ProviderRPS       float64 `yaml:"provider_rps"`
	ProviderBurst     int     `yaml:"provider_burst"`
	FallbackEnabled   bool    `yaml:"fallback_enabled"`
}

// QuoteCacheConfig selects the quote cache backend. With Redis disabled
// an in-process cache is used.
type QuoteCacheConfig struct {
	RedisEnabled  bool   `yaml:"redis_enabled"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	QuoteTTLSec   int    `yaml:"quote_ttl_sec"`
}

// PostgresConfig controls the optional trade archive mirror.
// Disabled by default; the file store remains authoritative either way.
type PostgresConfig struct {
	Enabled        bool   `yaml:"enabled"`
	DSN            string `yaml:"dsn"`
	MaxOpenConns   int    `yaml:"max_open_conns"`
	MaxIdleConns   int    `yaml:"max_idle_conns"`
	ConnTimeoutSec int    `yaml:"conn_timeout_sec"`
}

// AlertConfig controls the push-notification escalation path.
type AlertConfig struct {
	FCMCredentialsFile string `yaml:"fcm_credentials_file"`
	FCMTopic           string `yaml:"fcm_topic"`
}

// MonitorConfig controls the observability HTTP server.
// Empty Addr disables it.
type MonitorConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig controls log level and the rotating file sink.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Dir        string `yaml:"dir"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// DefaultConfig returns the stock nightfade configuration: ±7% threshold,
// 5% hard stop, 2.5% conditional profit ceiling, 3 slots, 2% risk per
// trade, 4:00 PM anchor through 9:30 AM exit in US Eastern time.
func DefaultConfig() *Config {
	return &Config{
		StateDir:      "state",
		WatchlistPath: "config/watchlist.yaml",
		Alpaca: AlpacaConfig{
			Paper: true,
		},
		Schedule: ScheduleConfig{
			Timezone:           "America/New_York",
			AnchorHour:         16,
			AnchorMinute:       0,
			AnchorSettleSec:    10,
			MonitorStartHour:   16,
			MonitorStartMinute: 5,
			LateWindowHour:     18,
			EntryCutoffHour:    20,
			EntryCutoffMinute:  0,
			ExitHour:           9,
			ExitMinute:         30,
			ExitWindowMinutes:  10,
			MonitorIntervalSec: 60,
			ManageIntervalSec:  300,
		},
		Strategy: StrategyConfig{
			ExtremeMovePct:         0.07,
			HardStopPct:            0.05,
			ProfitCeilingPct:       0.025,
			ProfitExitMaxSpreadPct: 0.004,
			ProfitExitMinVolume:    100,
			RiskPerTradePct:        0.02,
			MaxConcurrentPositions: 3,
			AssumedFrictionPct:     0.005,
		},
		Data: DataConfig{
			RequestTimeoutSec: 10,
			RetryAttempts:     3,
			RetryBackoffMs:    500,
			ProviderRPS:       3,
			ProviderBurst:     5,
			FallbackEnabled:   true,
		},
		Cache: QuoteCacheConfig{
			RedisEnabled: false,
			RedisAddr:    "localhost:6379",
			QuoteTTLSec:  30,
		},
		Postgres: PostgresConfig{
			Enabled:        false,
			MaxOpenConns:   5,
			MaxIdleConns:   2,
			ConnTimeoutSec: 5,
		},
		Monitor: MonitorConfig{
			Addr: "",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Dir:        "state/logs",
			MaxSizeMB:  20,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
	}
}

// Load reads a YAML config file over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overlays environment variables onto the config. Env wins over
// YAML for secrets and deploy-specific toggles.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		c.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_SECRET_KEY"); v != "" {
		c.Alpaca.SecretKey = v
	}
	if v := os.Getenv("ALPACA_PAPER"); v != "" {
		c.Alpaca.Paper = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("PG_ENABLED"); v != "" {
		c.Postgres.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("PG_DSN"); v != "" {
		c.Postgres.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Cache.RedisAddr = v
		c.Cache.RedisEnabled = true
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Cache.RedisPassword = v
	}
	if v := os.Getenv("FCM_CREDENTIALS"); v != "" {
		c.Alert.FCMCredentialsFile = v
	}
	if v := os.Getenv("FCM_TOPIC"); v != "" {
		c.Alert.FCMTopic = v
	}
	if v := os.Getenv("MONITOR_ADDR"); v != "" {
		c.Monitor.Addr = v
	}
}

// Validate rejects configurations that would otherwise fail mid-session.
// Bad values must surface at Boot, never overnight.
func (c *Config) Validate() error {
	s := c.Strategy
	if s.ExtremeMovePct <= 0 || s.ExtremeMovePct >= 1 {
		return fmt.Errorf("extreme_move_pct %.4f outside (0,1)", s.ExtremeMovePct)
	}
	if s.HardStopPct <= 0 || s.HardStopPct >= 1 {
		return fmt.Errorf("hard_stop_pct %.4f outside (0,1)", s.HardStopPct)
	}
	if s.ProfitCeilingPct <= 0 || s.ProfitCeilingPct >= 1 {
		return fmt.Errorf("profit_ceiling_pct %.4f outside (0,1)", s.ProfitCeilingPct)
	}
	if s.ProfitExitMaxSpreadPct < 0 {
		return fmt.Errorf("profit_exit_max_spread_pct %.4f negative", s.ProfitExitMaxSpreadPct)
	}
	if s.ProfitExitMinVolume < 0 {
		return fmt.Errorf("profit_exit_min_volume %d negative", s.ProfitExitMinVolume)
	}
	if s.RiskPerTradePct <= 0 || s.RiskPerTradePct >= 1 {
		return fmt.Errorf("risk_per_trade_pct %.4f outside (0,1)", s.RiskPerTradePct)
	}
	if s.MaxConcurrentPositions < 1 {
		return fmt.Errorf("max_concurrent_positions %d < 1", s.MaxConcurrentPositions)
	}
	if s.AssumedFrictionPct < 0 {
		return fmt.Errorf("assumed_friction_pct %.4f negative", s.AssumedFrictionPct)
	}

	sch := c.Schedule
	if _, err := time.LoadLocation(sch.Timezone); err != nil {
		return fmt.Errorf("timezone %q: %w", sch.Timezone, err)
	}
	for _, hm := range []struct {
		name   string
		hour   int
		minute int
	}{
		{"anchor", sch.AnchorHour, sch.AnchorMinute},
		{"monitor_start", sch.MonitorStartHour, sch.MonitorStartMinute},
		{"entry_cutoff", sch.EntryCutoffHour, sch.EntryCutoffMinute},
		{"exit", sch.ExitHour, sch.ExitMinute},
	} {
		if hm.hour < 0 || hm.hour > 23 || hm.minute < 0 || hm.minute > 59 {
			return fmt.Errorf("%s time %02d:%02d out of range", hm.name, hm.hour, hm.minute)
		}
	}
	if sch.LateWindowHour < 0 || sch.LateWindowHour > 23 {
		return fmt.Errorf("late_window_hour %d out of range", sch.LateWindowHour)
	}
	if sch.ExitWindowMinutes <= 0 {
		return fmt.Errorf("exit_window_minutes %d <= 0", sch.ExitWindowMinutes)
	}
	if sch.MonitorIntervalSec <= 0 || sch.ManageIntervalSec <= 0 {
		return fmt.Errorf("polling intervals must be positive (monitor=%d manage=%d)",
			sch.MonitorIntervalSec, sch.ManageIntervalSec)
	}

	if c.Data.RequestTimeoutSec <= 0 {
		return fmt.Errorf("request_timeout_sec %d <= 0", c.Data.RequestTimeoutSec)
	}
	if c.Data.RetryAttempts < 1 {
		return fmt.Errorf("retry_attempts %d < 1", c.Data.RetryAttempts)
	}
	if c.Data.ProviderRPS <= 0 || c.Data.ProviderBurst < 1 {
		return fmt.Errorf("provider rate limit invalid (rps=%.1f burst=%d)",
			c.Data.ProviderRPS, c.Data.ProviderBurst)
	}
	if c.Postgres.Enabled && c.Postgres.DSN == "" {
		return fmt.Errorf("postgres enabled but dsn empty")
	}
	if c.StateDir == "" {
		return fmt.Errorf("state_dir empty")
	}
	return nil
}

// RequireCredentials checks that brokerage credentials are present.
// Called at Boot for live/once runs; status and report skip it.
func (c *Config) RequireCredentials() error {
	if c.Alpaca.APIKey == "" || c.Alpaca.SecretKey == "" {
		return fmt.Errorf("alpaca credentials missing (set ALPACA_API_KEY / ALPACA_SECRET_KEY)")
	}
	return nil
}

// Location resolves the configured session timezone. Validate has already
// proven it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// MonitorInterval returns the Monitor-phase polling cadence.
func (c *Config) MonitorInterval() time.Duration {
	return time.Duration(c.Schedule.MonitorIntervalSec) * time.Second
}

// ManageInterval returns the overnight Manage-phase polling cadence.
func (c *Config) ManageInterval() time.Duration {
	return time.Duration(c.Schedule.ManageIntervalSec) * time.Second
}

// RequestTimeout returns the per-call collaborator timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Data.RequestTimeoutSec) * time.Second
}

// RetryBackoff returns the base backoff between transient retries.
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.Data.RetryBackoffMs) * time.Millisecond
}

// QuoteTTL returns the quote cache entry lifetime.
func (c *Config) QuoteTTL() time.Duration {
	return time.Duration(c.Cache.QuoteTTLSec) * time.Second
}
