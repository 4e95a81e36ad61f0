package session

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tradeworks/nightfade/internal/ledger"
	"github.com/tradeworks/nightfade/internal/signal"
)

// Status is the observation document served by the monitor endpoint
// and rendered by the status subcommand. Built from a single state
// snapshot, so every field is consistent with one checkpoint.
type Status struct {
	SessionDate     string              `json:"session_date"`
	Phase           string              `json:"phase"`
	PhaseEnteredAt  time.Time           `json:"phase_entered_at"`
	SessionStart    time.Time           `json:"session_start"`
	LastRun         time.Time           `json:"last_run"`
	Checkpoint      uint64              `json:"checkpoint"`
	Equity          float64             `json:"equity"`
	Cash            float64             `json:"cash"`
	WatchedSymbols  int                 `json:"watched_symbols"`
	AnchoredSymbols int                 `json:"anchored_symbols"`
	ExtremeMovers   []MoverStatus       `json:"extreme_movers,omitempty"`
	Positions       []PositionStatus    `json:"positions,omitempty"`
	ClosedTrades    int                 `json:"closed_trades"`
	NetPnLPct       float64             `json:"net_pnl_pct"`
	NetPnLDollars   float64             `json:"net_pnl_usd"`
	RecentEvents    []ledger.TradeEvent `json:"recent_events,omitempty"`
}

// MoverStatus is a watchlist symbol currently outside the move band.
type MoverStatus struct {
	Symbol      string    `json:"symbol"`
	AnchorClose float64   `json:"anchor_close"`
	LastPrice   float64   `json:"last_price"`
	MovePct     float64   `json:"move_pct"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PositionStatus is one tracked position with P&L at the last observed
// price.
type PositionStatus struct {
	Symbol        string  `json:"symbol"`
	Direction     string  `json:"direction"`
	Qty           int64   `json:"qty"`
	Status        string  `json:"status"`
	EntryPrice    float64 `json:"entry_price,omitempty"`
	LastPrice     float64 `json:"last_price,omitempty"`
	PnLPct        float64 `json:"pnl_pct"`
	HardStop      float64 `json:"hard_stop,omitempty"`
	ProfitCeiling float64 `json:"profit_ceiling,omitempty"`
	TriggerWindow string  `json:"trigger_window,omitempty"`
	ExitReason    string  `json:"exit_reason,omitempty"`
}

// statusEventTail bounds the event list in the status document.
const statusEventTail = 10

// BuildStatus summarizes a session snapshot. extremePct is the move
// band used to pick out movers worth listing.
func BuildStatus(state *ledger.SessionState, extremePct float64) Status {
	st := Status{
		SessionDate:    state.SessionDate,
		Phase:          string(state.Phase),
		PhaseEnteredAt: state.PhaseEnteredAt,
		SessionStart:   state.SessionStart,
		LastRun:        state.LastRun,
		Checkpoint:     state.Checkpoint,
		Equity:         state.Equity,
		Cash:           state.Cash,
		WatchedSymbols: len(state.Watch),
		ClosedTrades:   len(state.ClosedTrades),
	}

	for _, w := range state.Watch {
		if w.AnchorClose > 0 {
			st.AnchoredSymbols++
		}
		if w.LastPrice <= 0 {
			continue
		}
		if w.MovePct >= extremePct || w.MovePct <= -extremePct {
			st.ExtremeMovers = append(st.ExtremeMovers, MoverStatus{
				Symbol:      w.Symbol,
				AnchorClose: w.AnchorClose,
				LastPrice:   w.LastPrice,
				MovePct:     w.MovePct,
				UpdatedAt:   w.UpdatedAt,
			})
		}
	}
	sort.Slice(st.ExtremeMovers, func(i, j int) bool {
		a, b := st.ExtremeMovers[i], st.ExtremeMovers[j]
		if aa, bb := abs(a.MovePct), abs(b.MovePct); aa != bb {
			return aa > bb
		}
		return a.Symbol < b.Symbol
	})

	for _, p := range state.Positions {
		ps := PositionStatus{
			Symbol:        p.Symbol,
			Direction:     string(p.Direction),
			Qty:           p.Qty,
			Status:        string(p.Status),
			EntryPrice:    p.EntryPrice,
			HardStop:      p.HardStop,
			ProfitCeiling: p.ProfitCeiling,
			TriggerWindow: p.TriggerWindow,
			ExitReason:    p.ExitReason,
		}
		if w, ok := state.Watch[p.Symbol]; ok && w.LastPrice > 0 {
			ps.LastPrice = w.LastPrice
			if p.Status != ledger.StatusPending && p.EntryPrice > 0 {
				ps.PnLPct = signal.PnLPct(p.Direction, p.EntryPrice, w.LastPrice)
			}
		}
		st.Positions = append(st.Positions, ps)
	}
	sort.Slice(st.Positions, func(i, j int) bool {
		return st.Positions[i].Symbol < st.Positions[j].Symbol
	})

	for _, m := range state.ClosedTrades {
		st.NetPnLPct += m.NetPnLPct
		st.NetPnLDollars += m.NetPnLDollars
	}

	if n := len(state.History); n > 0 {
		start := n - statusEventTail
		if start < 0 {
			start = 0
		}
		st.RecentEvents = append(st.RecentEvents, state.History[start:]...)
	}
	return st
}

// Status summarizes the live session for concurrent readers.
func (o *Orchestrator) Status() Status {
	return BuildStatus(o.ledger.Snapshot(), o.params.ExtremeMovePct)
}

// Format renders the status for a terminal.
func (s Status) Format() string {
	rule := strings.Repeat("═", 60)

	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\n", rule)
	fmt.Fprintf(&b, "  SESSION %s  [%s]\n", s.SessionDate, s.Phase)
	fmt.Fprintf(&b, "%s\n", rule)
	fmt.Fprintf(&b, "  Phase since:  %s\n", formatInstant(s.PhaseEnteredAt))
	fmt.Fprintf(&b, "  Last run:     %s\n", formatInstant(s.LastRun))
	fmt.Fprintf(&b, "  Checkpoint:   #%d\n", s.Checkpoint)
	fmt.Fprintf(&b, "  Account:      $%.2f equity, $%.2f cash\n", s.Equity, s.Cash)
	fmt.Fprintf(&b, "  Watchlist:    %d symbols, %d anchored\n\n", s.WatchedSymbols, s.AnchoredSymbols)

	if len(s.ExtremeMovers) > 0 {
		fmt.Fprintf(&b, "  EXTREME MOVERS\n")
		for _, m := range s.ExtremeMovers {
			fmt.Fprintf(&b, "    %-6s %+.2f%%  (close %.2f → %.2f)\n",
				m.Symbol, m.MovePct*100, m.AnchorClose, m.LastPrice)
		}
		b.WriteString("\n")
	}

	if len(s.Positions) > 0 {
		fmt.Fprintf(&b, "  POSITIONS\n")
		for _, p := range s.Positions {
			fmt.Fprintf(&b, "    %-6s %-5s %4d @ %.2f  [%s]", p.Symbol, p.Direction, p.Qty, p.EntryPrice, p.Status)
			if p.LastPrice > 0 && p.Status != string(ledger.StatusPending) {
				fmt.Fprintf(&b, "  now %.2f (%+.2f%%)", p.LastPrice, p.PnLPct*100)
			}
			if p.ExitReason != "" {
				fmt.Fprintf(&b, "  exit: %s", p.ExitReason)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	} else {
		fmt.Fprintf(&b, "  No tracked positions.\n\n")
	}

	fmt.Fprintf(&b, "  Closed:       %d trades, %+.2f%% ($%+.2f)\n", s.ClosedTrades, s.NetPnLPct*100, s.NetPnLDollars)

	if len(s.RecentEvents) > 0 {
		fmt.Fprintf(&b, "\n  RECENT EVENTS\n")
		for _, e := range s.RecentEvents {
			fmt.Fprintf(&b, "    %s  %-15s %-6s", e.At.Format("01-02 15:04:05"), e.Action, e.Symbol)
			if e.Price > 0 {
				fmt.Fprintf(&b, " %4d @ %.2f", e.Qty, e.Price)
			}
			if e.Reason != "" {
				fmt.Fprintf(&b, "  (%s)", e.Reason)
			}
			b.WriteString("\n")
		}
	}
	fmt.Fprintf(&b, "%s\n", rule)
	return b.String()
}

func formatInstant(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05 MST")
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
