// Package ledger owns the per-session bookkeeping: anchor closes, live
// observations, tracked positions and their lifecycle, and the rolling
// trade history. All mutation goes through the Ledger so a checkpoint
// snapshot is always internally consistent.
package ledger

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tradeworks/nightfade/internal/signal"
)

// maxHistoryEvents bounds the rolling trade history kept in state.
const maxHistoryEvents = 500

// Ledger serializes access to one session's state. The orchestrator is
// the only writer; the status endpoint and CLI read snapshots
// concurrently.
type Ledger struct {
	mu    sync.RWMutex
	state *SessionState
}

// New creates a ledger around a fresh Boot-phase session.
func New(sessionDate string, now time.Time) *Ledger {
	return &Ledger{state: NewSessionState(sessionDate, now)}
}

// Resume wraps a rehydrated state loaded from the store.
func Resume(state *SessionState) *Ledger {
	state.normalize()
	return &Ledger{state: state}
}

// SessionDate returns the trading date this ledger belongs to.
func (l *Ledger) SessionDate() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.SessionDate
}

// Phase returns the current orchestrator phase.
func (l *Ledger) Phase() Phase {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.Phase
}

// SetPhase advances the state machine.
func (l *Ledger) SetPhase(phase Phase, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.Phase = phase
	l.state.PhaseEnteredAt = at
}

// SeedWatchlist registers the session's tradable symbols. Symbols
// already present (from a resumed session) keep their recorded anchors.
func (l *Ledger) SeedWatchlist(symbols []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, sym := range symbols {
		if _, ok := l.state.Watch[sym]; !ok {
			l.state.Watch[sym] = &WatchedSymbol{Symbol: sym}
		}
	}
}

// SetAnchor records a symbol's 4 PM official close. The first write
// wins; later calls leave the stored anchor untouched and report false.
func (l *Ledger) SetAnchor(symbol string, price float64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.state.Watch[symbol]
	if !ok {
		w = &WatchedSymbol{Symbol: symbol}
		l.state.Watch[symbol] = w
	}
	if w.AnchorClose > 0 {
		return false
	}
	w.AnchorClose = price
	return true
}

// Anchor returns the recorded anchor close for a symbol.
func (l *Ledger) Anchor(symbol string) (float64, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	w, ok := l.state.Watch[symbol]
	if !ok || w.AnchorClose <= 0 {
		return 0, false
	}
	return w.AnchorClose, true
}

// AnchorCount returns how many watched symbols have anchors recorded.
func (l *Ledger) AnchorCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for _, w := range l.state.Watch {
		if w.AnchorClose > 0 {
			n++
		}
	}
	return n
}

// ObservePrice stores a live observation and returns the computed move
// off the anchor (zero when no anchor is recorded yet).
func (l *Ledger) ObservePrice(symbol string, price float64, at time.Time) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.state.Watch[symbol]
	if !ok {
		w = &WatchedSymbol{Symbol: symbol}
		l.state.Watch[symbol] = w
	}
	w.LastPrice = price
	w.UpdatedAt = at
	if w.AnchorClose > 0 {
		w.MovePct = signal.MovePct(w.AnchorClose, price)
	}
	return w.MovePct
}

// WatchSymbols returns the watch entries in symbol order.
func (l *Ledger) WatchSymbols() []WatchedSymbol {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]WatchedSymbol, 0, len(l.state.Watch))
	for _, w := range l.state.Watch {
		out = append(out, *w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// OpenPosition registers a freshly submitted entry. Exactly one active
// position per symbol is allowed.
func (l *Ledger) OpenPosition(p Position) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.state.Positions[p.Symbol]; ok && existing.Active() {
		return fmt.Errorf("ledger: %s already has an active %s position", p.Symbol, existing.Status)
	}
	if p.Qty <= 0 {
		return fmt.Errorf("ledger: %s position qty must be positive, got %d", p.Symbol, p.Qty)
	}
	if p.Status == "" {
		p.Status = StatusPending
	}
	cp := p
	l.state.Positions[p.Symbol] = &cp
	return nil
}

// MarkOpen confirms an entry fill, promoting pending→open. A positive
// fillPrice replaces the optimistic limit price.
func (l *Ledger) MarkOpen(symbol string, fillPrice float64, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.state.Positions[symbol]
	if !ok {
		return fmt.Errorf("ledger: no tracked position for %s", symbol)
	}
	if p.Status != StatusPending && p.Status != StatusOpen {
		return fmt.Errorf("ledger: cannot open %s position in status %s", symbol, p.Status)
	}
	p.Status = StatusOpen
	if fillPrice > 0 {
		p.EntryPrice = fillPrice
	} else if p.EntryPrice == 0 {
		p.EntryPrice = p.LimitPrice
	}
	p.EnteredAt = at
	return nil
}

// SetEntryOrder records the brokerage order id once a submit response
// arrives.
func (l *Ledger) SetEntryOrder(symbol, orderID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.state.Positions[symbol]
	if !ok {
		return fmt.Errorf("ledger: no tracked position for %s", symbol)
	}
	p.EntryOrderID = orderID
	return nil
}

// MarkClosing records the intent to exit, keyed by the client order id
// assigned before submission. The id is persisted ahead of the submit
// call so a crash in between can be reconciled by looking the order up;
// a retry after a dead attempt passes a fresh id, which clears the
// stale brokerage order id. spreadPct is the quoted spread at decision
// time, zero when no quote backed the exit.
func (l *Ledger) MarkClosing(symbol, clientOrderID, reason string, spreadPct float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.state.Positions[symbol]
	if !ok {
		return fmt.Errorf("ledger: no tracked position for %s", symbol)
	}
	p.Status = StatusClosing
	p.ExitClientOrderID = clientOrderID
	p.ExitOrderID = ""
	p.ExitReason = reason
	p.ExitSpreadPct = spreadPct
	return nil
}

// SetExitOrder records the brokerage order id for a submitted exit.
func (l *Ledger) SetExitOrder(symbol, orderID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.state.Positions[symbol]
	if !ok {
		return fmt.Errorf("ledger: no tracked position for %s", symbol)
	}
	p.ExitOrderID = orderID
	return nil
}

// ClosePosition confirms the exit fill, removes the position from the
// active set and returns the final archived copy.
func (l *Ledger) ClosePosition(symbol string, exitPrice float64, at time.Time) (Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.state.Positions[symbol]
	if !ok {
		return Position{}, fmt.Errorf("ledger: no tracked position for %s", symbol)
	}
	final := *p
	final.Status = StatusClosed
	final.ExitPrice = exitPrice
	final.ClosedAt = at
	delete(l.state.Positions, symbol)
	return final, nil
}

// DropPosition discards a position whose entry never filled (canceled
// or rejected), freeing its slot without producing trade metrics.
func (l *Ledger) DropPosition(symbol string) (Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.state.Positions[symbol]
	if !ok {
		return Position{}, fmt.Errorf("ledger: no tracked position for %s", symbol)
	}
	dropped := *p
	delete(l.state.Positions, symbol)
	return dropped, nil
}

// UpdateExcursions folds a fresh P&L observation into the position's
// running extremes. Favorable only ratchets up, adverse only down.
func (l *Ledger) UpdateExcursions(symbol string, pnlPct float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.state.Positions[symbol]
	if !ok {
		return fmt.Errorf("ledger: no tracked position for %s", symbol)
	}
	if pnlPct > p.MaxFavorablePct {
		p.MaxFavorablePct = pnlPct
	}
	if pnlPct < p.MaxAdversePct {
		p.MaxAdversePct = pnlPct
	}
	return nil
}

// Position returns a copy of the tracked position for a symbol.
func (l *Ledger) Position(symbol string) (Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.state.Positions[symbol]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// HasPosition reports whether a symbol occupies a slot.
func (l *Ledger) HasPosition(symbol string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.state.Positions[symbol]
	return ok
}

// OpenPositions returns active positions in symbol order so per-cycle
// processing is deterministic.
func (l *Ledger) OpenPositions() []Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Position, 0, len(l.state.Positions))
	for _, p := range l.state.Positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// OpenCount returns how many concurrency slots are occupied. Pending
// and closing positions count: a slot frees only on confirmed exit.
func (l *Ledger) OpenCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.state.Positions)
}

// RecordEvent appends to the rolling trade history.
func (l *Ledger) RecordEvent(ev TradeEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.History = append(l.state.History, ev)
	if n := len(l.state.History); n > maxHistoryEvents {
		l.state.History = append([]TradeEvent(nil), l.state.History[n-maxHistoryEvents:]...)
	}
}

// RecordClosedTrade archives a completed round trip's metrics on the
// session so the end-of-night performance rollup survives restarts.
func (l *Ledger) RecordClosedTrade(m signal.TradeMetrics) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.ClosedTrades = append(l.state.ClosedTrades, m)
}

// ClosedTrades returns the round trips completed this session.
func (l *Ledger) ClosedTrades() []signal.TradeMetrics {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]signal.TradeMetrics(nil), l.state.ClosedTrades...)
}

// SetAccount stores the latest brokerage account snapshot for status
// reporting.
func (l *Ledger) SetAccount(equity, cash float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.Equity = equity
	l.state.Cash = cash
}

// Account returns the stored equity and remaining available cash.
func (l *Ledger) Account() (equity, cash float64) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.Equity, l.state.Cash
}

// SpendCash reduces available cash after a long entry claims it, never
// below zero. Shorts are margin-backed and do not call this.
func (l *Ledger) SpendCash(amount float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.Cash -= amount
	if l.state.Cash < 0 {
		l.state.Cash = 0
	}
}

// BumpCheckpoint advances the monotone checkpoint marker after a
// successful durable write and returns the new value.
func (l *Ledger) BumpCheckpoint(at time.Time) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.Checkpoint++
	l.state.LastRun = at
	return l.state.Checkpoint
}

// Snapshot returns a deep copy of the session state, safe to serialize
// or inspect while the orchestrator keeps mutating.
func (l *Ledger) Snapshot() *SessionState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.clone()
}
