// Package store persists session state and trade records. The file
// store is authoritative and always on; the postgres subpackage mirrors
// completed trades into a queryable archive when enabled.
package store

import (
	"github.com/tradeworks/nightfade/internal/ledger"
	"github.com/tradeworks/nightfade/internal/signal"
)

// Store is the durability contract the orchestrator drives. Checkpoint
// must complete before the caller treats any externally-visible action
// as done; that ordering is the crash-safety guarantee.
type Store interface {
	// LoadSession returns the persisted state for a trading date, or
	// (nil, nil) when no session exists for it.
	LoadSession(date string) (*ledger.SessionState, error)

	// Checkpoint durably replaces the live session state.
	Checkpoint(state *ledger.SessionState) error

	// AppendTradeMetrics appends one completed round trip to the
	// metrics journal.
	AppendTradeMetrics(m signal.TradeMetrics) error

	// UpdatePerformance folds a finished session's trades into the
	// running cross-session totals and returns the updated view.
	UpdatePerformance(sessionDate string, trades []signal.TradeMetrics) (Performance, error)

	// LoadPerformance returns the running totals without modifying
	// them.
	LoadPerformance() (Performance, error)

	// ArchiveSession moves a finished session out of the live slot so
	// the next night boots fresh.
	ArchiveSession(state *ledger.SessionState) error
}
