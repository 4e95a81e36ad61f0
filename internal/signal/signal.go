// Package signal implements the fade-strategy decision engine: entry
// qualification, position sizing, protective levels, exit evaluation and
// per-trade metrics. Every function here is deterministic and does no
// I/O. The clock, the calendar day and all market observations arrive
// as inputs, which is what makes the engine exhaustively unit-testable.
package signal

// Direction is the side of a fade position.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// Opposite returns the closing side for a direction.
func (d Direction) Opposite() Direction {
	if d == DirectionLong {
		return DirectionShort
	}
	return DirectionLong
}

// Params holds the strategy constants. Zero values are never valid;
// construct with DefaultParams and override from configuration.
type Params struct {
	// ExtremeMovePct is the |move| entry threshold, e.g. 0.07 for ±7%.
	ExtremeMovePct float64
	// HardStopPct is the adverse move from entry that forces an exit.
	HardStopPct float64
	// ProfitCeilingPct is the favorable move that arms the profit exit.
	ProfitCeilingPct float64
	// ProfitExitMaxSpreadPct gates profit exits on quote quality.
	ProfitExitMaxSpreadPct float64
	// ProfitExitMinVolume gates profit exits on recent trading activity.
	ProfitExitMinVolume int64
	// RiskPerTradePct of account equity at risk if the stop is hit.
	RiskPerTradePct float64
	// MaxConcurrentPositions caps simultaneous open fades.
	MaxConcurrentPositions int
	// AssumedFrictionPct is the round-trip cost charged against gross P&L.
	AssumedFrictionPct float64
}

// DefaultParams returns the stock fade parameters.
func DefaultParams() Params {
	return Params{
		ExtremeMovePct:         0.07,  // ±7% from the 4 PM anchor
		HardStopPct:            0.05,  // -5% adverse from entry
		ProfitCeilingPct:       0.025, // +2.5% favorable from entry
		ProfitExitMaxSpreadPct: 0.004, // spread ≤ 0.40% to take profit early
		ProfitExitMinVolume:    100,   // shares traded recently
		RiskPerTradePct:        0.02,  // 2% of equity per trade
		MaxConcurrentPositions: 3,
		AssumedFrictionPct:     0.005, // 0.5% assumed round-trip cost
	}
}

// MovePct computes the fractional move of price from anchor.
// Returns 0 for a non-positive anchor so callers can gate on it.
func MovePct(anchor, price float64) float64 {
	if anchor <= 0 {
		return 0
	}
	return (price - anchor) / anchor
}

// PnLPct computes direction-aware unrealized P&L as a fraction of entry.
func PnLPct(direction Direction, entryPrice, currentPrice float64) float64 {
	if entryPrice <= 0 {
		return 0
	}
	if direction == DirectionLong {
		return (currentPrice - entryPrice) / entryPrice
	}
	return (entryPrice - currentPrice) / entryPrice
}

func round2(v float64) float64 {
	return roundTo(v, 100)
}

func round4(v float64) float64 {
	return roundTo(v, 10000)
}

func roundTo(v float64, scale float64) float64 {
	if v >= 0 {
		return float64(int64(v*scale+0.5)) / scale
	}
	return float64(int64(v*scale-0.5)) / scale
}
