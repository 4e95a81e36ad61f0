package signal

import "fmt"

// ExitReason identifies why a position is being closed, ordered by
// precedence: the forced market-open close-out overrides the hard stop,
// which overrides the profit ceiling.
type ExitReason int

const (
	ExitNone ExitReason = iota
	ExitMarketOpen
	ExitHardStop
	ExitProfitCeiling
)

func (r ExitReason) String() string {
	switch r {
	case ExitMarketOpen:
		return "market_open_closeout"
	case ExitHardStop:
		return "hard_stop"
	case ExitProfitCeiling:
		return "profit_ceiling"
	default:
		return "none"
	}
}

// ExitInputs is one open position's observation at evaluation time.
// HasSpread/HasVolume distinguish "observed" from "unknown": unknown
// microstructure never blocks a profit exit, matching the behavior of
// quote sources that omit those fields overnight.
type ExitInputs struct {
	Symbol       string    `json:"symbol"`
	Direction    Direction `json:"direction"`
	EntryPrice   float64   `json:"entry_price"`
	CurrentPrice float64   `json:"current_price"`
	HasSpread    bool      `json:"has_spread"`
	SpreadPct    float64   `json:"spread_pct"`
	HasVolume    bool      `json:"has_volume"`
	RecentVolume int64     `json:"recent_volume"`
	InExitWindow bool      `json:"in_exit_window"`
}

// ExitResult is the outcome of exit evaluation.
type ExitResult struct {
	ShouldExit  bool       `json:"should_exit"`
	Reason      ExitReason `json:"reason"`
	PnLPct      float64    `json:"pnl_pct"`
	Description string     `json:"description"`
}

// ExitEvaluator applies the overnight exit rules. It never opens
// positions: entry count cannot grow through this path.
type ExitEvaluator struct {
	params Params
}

// NewExitEvaluator creates an exit evaluator with the given parameters.
func NewExitEvaluator(params Params) *ExitEvaluator {
	return &ExitEvaluator{params: params}
}

// Evaluate checks exit conditions in precedence order and returns the
// first that fires.
func (e *ExitEvaluator) Evaluate(in ExitInputs) ExitResult {
	result := ExitResult{Reason: ExitNone}
	if in.EntryPrice <= 0 {
		result.Description = "no entry price"
		return result
	}
	pnl := PnLPct(in.Direction, in.EntryPrice, in.CurrentPrice)
	result.PnLPct = pnl

	// 1. Forced close-out once the market-open exit window is reached.
	// Fires regardless of price, spread or volume.
	if in.InExitWindow {
		result.ShouldExit = true
		result.Reason = ExitMarketOpen
		result.Description = fmt.Sprintf("session end exit: %+.2f%%", pnl*100)
		return result
	}

	// 2. Hard stop. Never conditioned on quote quality.
	if pnl <= -e.params.HardStopPct {
		result.ShouldExit = true
		result.Reason = ExitHardStop
		result.Description = fmt.Sprintf("HARD STOP: %+.2f%% (limit -%.1f%%)",
			pnl*100, e.params.HardStopPct*100)
		return result
	}

	// 3. Profit ceiling, conditional on a fillable market. A wide spread
	// or a dead tape means the printed profit is not realizable; hold
	// and let the morning close-out capture it instead.
	if pnl >= e.params.ProfitCeilingPct {
		if in.HasSpread && in.SpreadPct > e.params.ProfitExitMaxSpreadPct {
			result.Description = fmt.Sprintf("TP reached (%+.2f%%) but spread %.2f%% > %.2f%%, waiting for open",
				pnl*100, in.SpreadPct*100, e.params.ProfitExitMaxSpreadPct*100)
			return result
		}
		if in.HasVolume && in.RecentVolume < e.params.ProfitExitMinVolume {
			result.Description = fmt.Sprintf("TP reached (%+.2f%%) but volume %d < %d, waiting for open",
				pnl*100, in.RecentVolume, e.params.ProfitExitMinVolume)
			return result
		}
		result.ShouldExit = true
		result.Reason = ExitProfitCeiling
		result.Description = fmt.Sprintf("PROFIT CEILING: %+.2f%%, conditions met for exit", pnl*100)
		return result
	}

	result.Description = fmt.Sprintf("P&L %+.2f%% inside bands", pnl*100)
	return result
}
