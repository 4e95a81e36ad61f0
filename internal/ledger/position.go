package ledger

import (
	"time"

	"github.com/tradeworks/nightfade/internal/signal"
)

// PositionStatus tracks where a position sits in its lifecycle. The
// pending→open transition happens on fill confirmation, open→closing on
// exit submission, and closing positions leave the ledger entirely once
// the exit is confirmed.
type PositionStatus string

const (
	StatusPending PositionStatus = "pending" // entry order submitted, fill unconfirmed
	StatusOpen    PositionStatus = "open"    // entry fill confirmed
	StatusClosing PositionStatus = "closing" // exit order submitted, fill unconfirmed
	StatusClosed  PositionStatus = "closed"  // terminal, only seen on archived copies
)

// Position is one tracked overnight fade. The ledger owns the canonical
// copy; callers always receive and submit value copies.
type Position struct {
	Symbol            string           `json:"symbol"`
	Direction         signal.Direction `json:"direction"`
	Qty               int64            `json:"qty"`
	Status            PositionStatus   `json:"status"`
	AnchorClose       float64          `json:"anchor_close"`
	LimitPrice        float64          `json:"limit_price"`
	EntryPrice        float64          `json:"entry_price"`
	EntrySpreadPct    float64          `json:"entry_spread_pct"`
	HardStop          float64          `json:"hard_stop"`
	ProfitCeiling     float64          `json:"profit_ceiling"`
	EntryOrderID      string           `json:"entry_order_id"`
	ClientOrderID     string           `json:"client_order_id"`
	ExitOrderID       string           `json:"exit_order_id,omitempty"`
	ExitClientOrderID string           `json:"exit_client_order_id,omitempty"`
	TriggerWindow     string           `json:"trigger_window"`
	SubmittedAt       time.Time        `json:"submitted_at"`
	EnteredAt         time.Time        `json:"entered_at,omitempty"`
	MaxFavorablePct   float64          `json:"max_favorable_pnl"`
	MaxAdversePct     float64          `json:"max_adverse_pnl"`
	ExitReason        string           `json:"exit_reason,omitempty"`
	ExitSpreadPct     float64          `json:"exit_spread_pct,omitempty"`
	ExitPrice         float64          `json:"exit_price,omitempty"`
	ClosedAt          time.Time        `json:"closed_at,omitempty"`
}

// Active reports whether the position still occupies a concurrency slot.
func (p Position) Active() bool {
	return p.Status == StatusPending || p.Status == StatusOpen || p.Status == StatusClosing
}

// TradeEvent is one row of the session's rolling trade history.
type TradeEvent struct {
	At        time.Time        `json:"timestamp"`
	Action    string           `json:"action"`
	Symbol    string           `json:"symbol"`
	Direction signal.Direction `json:"direction,omitempty"`
	Qty       int64            `json:"qty"`
	Price     float64          `json:"price"`
	Reason    string           `json:"reason,omitempty"`
}

// Trade history actions.
const (
	EventEntrySubmitted = "entry_submitted"
	EventEntryFilled    = "entry_filled"
	EventEntryCanceled  = "entry_canceled"
	EventExitSubmitted  = "exit_submitted"
	EventExitFilled     = "exit_filled"
	EventLedgerRepaired = "ledger_repaired"
)
