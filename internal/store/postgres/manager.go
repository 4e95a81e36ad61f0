// Package postgres provides the optional trade archive behind the
// store.TradeArchive interface. Tables are provisioned externally; the
// bot only reads and writes rows.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/tradeworks/nightfade/internal/store"
)

// Config holds archive connection settings.
type Config struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
	Enabled         bool          `yaml:"enabled"`
}

// DefaultConfig returns archive defaults: disabled until a DSN is
// configured explicitly.
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 30 * time.Minute,
		QueryTimeout:    5 * time.Second,
		Enabled:         false,
	}
}

// Manager owns the archive connection pool and repository.
type Manager struct {
	db      *sqlx.DB
	config  Config
	archive store.TradeArchive
}

// NewManager opens and pings the archive database, or returns a
// disabled manager when the config says so.
func NewManager(config Config) (*Manager, error) {
	if !config.Enabled {
		return &Manager{config: config}, nil
	}

	if config.DSN == "" {
		return nil, fmt.Errorf("postgres: DSN is required when archive is enabled")
	}

	db, err := sqlx.Open("postgres", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	return &Manager{
		db:      db,
		config:  config,
		archive: NewTradeArchive(db, config.QueryTimeout),
	}, nil
}

// Archive returns the trade archive, or nil when disabled.
func (m *Manager) Archive() store.TradeArchive {
	return m.archive
}

// IsEnabled reports whether the archive is live.
func (m *Manager) IsEnabled() bool {
	return m.config.Enabled && m.db != nil
}

// Ping tests connectivity; a disabled archive always passes.
func (m *Manager) Ping(ctx context.Context) error {
	if m.db == nil {
		return nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, m.config.QueryTimeout)
	defer cancel()
	return m.db.PingContext(pingCtx)
}

// Close releases the connection pool.
func (m *Manager) Close() error {
	if m.db == nil {
		return nil
	}
	return m.db.Close()
}
