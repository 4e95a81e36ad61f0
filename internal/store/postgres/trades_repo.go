package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/tradeworks/nightfade/internal/signal"
	"github.com/tradeworks/nightfade/internal/store"
)

// metricColumns is the column list matching signal.TradeMetrics db tags.
const metricColumns = `symbol, direction, qty, anchor_close, entry_price, exit_price,
	move_4pm_to_entry_pct, raw_pnl_pct, assumed_friction_pct, net_pnl_pct,
	gross_pnl_dollars, net_pnl_dollars, entry_spread_pct, exit_spread_pct,
	max_favorable_excursion, max_adverse_excursion, trigger_window, exit_reason,
	entered_at, closed_at`

// tradeArchive implements store.TradeArchive against the trade_metrics
// table, unique on (session_date, symbol, entered_at).
type tradeArchive struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewTradeArchive creates a PostgreSQL-backed trade archive.
func NewTradeArchive(db *sqlx.DB, timeout time.Duration) store.TradeArchive {
	return &tradeArchive{db: db, timeout: timeout}
}

// InsertTrade records one completed round trip for a session.
func (r *tradeArchive) InsertTrade(ctx context.Context, sessionDate string, m signal.TradeMetrics) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO trade_metrics (session_date, ` + metricColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`

	_, err := r.db.ExecContext(ctx, query,
		sessionDate, m.Symbol, string(m.Direction), m.Qty, m.AnchorClose,
		m.EntryPrice, m.ExitPrice, m.Move4PMToEntryPct, m.RawPnLPct,
		m.AssumedFrictionPct, m.NetPnLPct, m.GrossPnLDollars, m.NetPnLDollars,
		m.EntrySpreadPct, m.ExitSpreadPct, m.MaxFavorableExcursion,
		m.MaxAdverseExcursion, m.TriggerWindow, m.ExitReason,
		m.EnteredAt, m.ClosedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("duplicate trade %s/%s: %w", sessionDate, m.Symbol, err)
		}
		return fmt.Errorf("insert trade metrics: %w", err)
	}
	return nil
}

// ListSession returns a session's trades in entry order.
func (r *tradeArchive) ListSession(ctx context.Context, sessionDate string) ([]signal.TradeMetrics, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT ` + metricColumns + `
		FROM trade_metrics
		WHERE session_date = $1
		ORDER BY entered_at ASC`

	var out []signal.TradeMetrics
	if err := r.db.SelectContext(ctx, &out, query, sessionDate); err != nil {
		return nil, fmt.Errorf("list session trades: %w", err)
	}
	return out, nil
}

// RecentTrades returns the most recently closed trades.
func (r *tradeArchive) RecentTrades(ctx context.Context, limit int) ([]signal.TradeMetrics, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT ` + metricColumns + `
		FROM trade_metrics
		ORDER BY closed_at DESC
		LIMIT $1`

	var out []signal.TradeMetrics
	if err := r.db.SelectContext(ctx, &out, query, limit); err != nil {
		return nil, fmt.Errorf("list recent trades: %w", err)
	}
	return out, nil
}

// IsDuplicate reports whether an insert failed on the uniqueness
// constraint, which happens when a resumed session replays an archive
// write that already landed.
func IsDuplicate(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
