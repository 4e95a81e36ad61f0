package signal

import "math"

// Levels are the protective prices attached to a new position,
// direction-aware: the hard stop sits adverse of entry, the profit
// ceiling favorable.
type Levels struct {
	HardStop      float64 `json:"hard_stop"`
	ProfitCeiling float64 `json:"profit_ceiling"`
}

// ProtectiveLevels computes the hard-stop and profit-ceiling prices for
// a fill at entryPrice.
func ProtectiveLevels(entryPrice float64, direction Direction, p Params) Levels {
	if direction == DirectionLong {
		return Levels{
			HardStop:      round2(entryPrice * (1 - p.HardStopPct)),
			ProfitCeiling: round2(entryPrice * (1 + p.ProfitCeilingPct)),
		}
	}
	return Levels{
		HardStop:      round2(entryPrice * (1 + p.HardStopPct)),
		ProfitCeiling: round2(entryPrice * (1 - p.ProfitCeilingPct)),
	}
}

// SizingInputs feed the two-constraint position sizer.
type SizingInputs struct {
	Equity         float64   `json:"equity"`
	ReferencePrice float64   `json:"reference_price"`
	Direction      Direction `json:"direction"`
	AvailableCash  float64   `json:"available_cash"`
	SlotsRemaining int       `json:"slots_remaining"`
}

// ComputeQuantity sizes a position under two constraints and takes the
// smaller:
//
//	risk: a move to the hard stop loses ≈ RiskPerTradePct of equity
//	cash (longs only): available cash split evenly across open slots
//
// Shorts are margin-backed, so only the risk constraint applies to them.
// The result is floored to whole shares and never negative.
func ComputeQuantity(in SizingInputs, p Params) int64 {
	if in.ReferencePrice <= 0 || in.Equity <= 0 || in.SlotsRemaining <= 0 {
		return 0
	}

	riskDollars := in.Equity * p.RiskPerTradePct
	maxLossPerShare := in.ReferencePrice * p.HardStopPct
	if maxLossPerShare <= 0 {
		return 0
	}
	qtyRisk := riskDollars / maxLossPerShare

	var qty float64
	if in.Direction == DirectionLong {
		cashPerSlot := in.AvailableCash / float64(in.SlotsRemaining)
		if cashPerSlot <= 0 {
			return 0
		}
		qtyCash := cashPerSlot / in.ReferencePrice
		qty = math.Min(qtyRisk, qtyCash)
	} else {
		qty = qtyRisk
	}

	n := int64(qty)
	if n < 0 {
		return 0
	}
	return n
}
