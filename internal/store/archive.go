package store

import (
	"context"

	"github.com/tradeworks/nightfade/internal/signal"
)

// TradeArchive mirrors completed round trips into a queryable database.
// The archive is best-effort: the file journal stays authoritative, so
// archive failures are logged, never fatal.
type TradeArchive interface {
	// InsertTrade records one completed round trip for a session.
	InsertTrade(ctx context.Context, sessionDate string, m signal.TradeMetrics) error

	// ListSession returns a session's trades in entry order.
	ListSession(ctx context.Context, sessionDate string) ([]signal.TradeMetrics, error)

	// RecentTrades returns the most recently closed trades across all
	// sessions.
	RecentTrades(ctx context.Context, limit int) ([]signal.TradeMetrics, error)
}
