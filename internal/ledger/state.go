package ledger

import (
	"time"

	"github.com/tradeworks/nightfade/internal/signal"
)

// Phase is the orchestrator's position in the nightly state machine.
// Phases advance linearly; the only backward movement is resume after a
// crash, which re-enters the persisted phase.
type Phase string

const (
	PhaseBoot    Phase = "boot"
	PhaseAnchor  Phase = "anchor"
	PhaseMonitor Phase = "monitor"
	PhaseEntry   Phase = "entry"
	PhaseManage  Phase = "manage"
	PhaseExit    Phase = "exit"
	PhaseDone    Phase = "done"
)

// WatchedSymbol is one watchlist ticker's view for the session: the 4 PM
// anchor close plus the most recent observation against it.
type WatchedSymbol struct {
	Symbol      string    `json:"symbol"`
	AnchorClose float64   `json:"anchor_close,omitempty"`
	LastPrice   float64   `json:"last_price,omitempty"`
	MovePct     float64   `json:"move_pct"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// SessionState is everything one trading night needs to survive a
// restart. It serializes to the checkpoint file as-is, so every field
// carries a JSON tag and no field holds live handles.
type SessionState struct {
	SessionDate    string                    `json:"session_date"` // "YYYY-MM-DD" in exchange time
	Phase          Phase                     `json:"phase"`
	PhaseEnteredAt time.Time                 `json:"phase_entered_at"`
	SessionStart   time.Time                 `json:"session_start"`
	LastRun        time.Time                 `json:"last_run"`
	Checkpoint     uint64                    `json:"checkpoint"`
	Equity         float64                   `json:"equity,omitempty"`
	Cash           float64                   `json:"cash,omitempty"`
	Watch          map[string]*WatchedSymbol `json:"watch"`
	Positions      map[string]*Position      `json:"positions"`
	ClosedTrades   []signal.TradeMetrics     `json:"closed_trades,omitempty"`
	History        []TradeEvent              `json:"trade_history,omitempty"`
}

// NewSessionState builds a fresh Boot-phase state for the given trading
// date.
func NewSessionState(sessionDate string, now time.Time) *SessionState {
	return &SessionState{
		SessionDate:    sessionDate,
		Phase:          PhaseBoot,
		PhaseEnteredAt: now,
		SessionStart:   now,
		LastRun:        now,
		Watch:          make(map[string]*WatchedSymbol),
		Positions:      make(map[string]*Position),
	}
}

// normalize repairs nil maps after JSON rehydration so callers never
// need nil checks.
func (s *SessionState) normalize() {
	if s.Watch == nil {
		s.Watch = make(map[string]*WatchedSymbol)
	}
	if s.Positions == nil {
		s.Positions = make(map[string]*Position)
	}
}

// clone deep-copies the state so snapshots never alias ledger-owned
// maps.
func (s *SessionState) clone() *SessionState {
	out := *s
	out.Watch = make(map[string]*WatchedSymbol, len(s.Watch))
	for sym, w := range s.Watch {
		cw := *w
		out.Watch[sym] = &cw
	}
	out.Positions = make(map[string]*Position, len(s.Positions))
	for sym, p := range s.Positions {
		cp := *p
		out.Positions[sym] = &cp
	}
	out.ClosedTrades = append([]signal.TradeMetrics(nil), s.ClosedTrades...)
	out.History = append([]TradeEvent(nil), s.History...)
	return &out
}
