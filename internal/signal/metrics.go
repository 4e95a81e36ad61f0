package signal

import "time"

// MetricsInputs carry everything a completed round trip needs for its
// final accounting. Excursions arrive from the position's running
// tracking; timestamps come from the caller, not from a clock read.
type MetricsInputs struct {
	Symbol          string
	Direction       Direction
	Qty             int64
	AnchorClose     float64
	EntryPrice      float64
	ExitPrice       float64
	EntrySpreadPct  float64
	ExitSpreadPct   float64
	MaxFavorablePct float64
	MaxAdversePct   float64
	TriggerWindow   string
	ExitReason      string
	EnteredAt       time.Time
	ClosedAt        time.Time
}

// TradeMetrics is the durable record of one completed round trip.
type TradeMetrics struct {
	Symbol                string    `json:"symbol" db:"symbol"`
	Direction             Direction `json:"direction" db:"direction"`
	Qty                   int64     `json:"qty" db:"qty"`
	AnchorClose           float64   `json:"anchor_close" db:"anchor_close"`
	EntryPrice            float64   `json:"entry_price" db:"entry_price"`
	ExitPrice             float64   `json:"exit_price" db:"exit_price"`
	Move4PMToEntryPct     float64   `json:"move_4pm_to_entry_pct" db:"move_4pm_to_entry_pct"`
	RawPnLPct             float64   `json:"raw_pnl_pct" db:"raw_pnl_pct"`
	AssumedFrictionPct    float64   `json:"assumed_friction_pct" db:"assumed_friction_pct"`
	NetPnLPct             float64   `json:"net_pnl_pct" db:"net_pnl_pct"`
	GrossPnLDollars       float64   `json:"gross_pnl_dollars" db:"gross_pnl_dollars"`
	NetPnLDollars         float64   `json:"net_pnl_dollars" db:"net_pnl_dollars"`
	EntrySpreadPct        float64   `json:"entry_spread_pct" db:"entry_spread_pct"`
	ExitSpreadPct         float64   `json:"exit_spread_pct" db:"exit_spread_pct"`
	MaxFavorableExcursion float64   `json:"max_favorable_excursion" db:"max_favorable_excursion"`
	MaxAdverseExcursion   float64   `json:"max_adverse_excursion" db:"max_adverse_excursion"`
	TriggerWindow         string    `json:"trigger_window" db:"trigger_window"`
	ExitReason            string    `json:"exit_reason" db:"exit_reason"`
	EnteredAt             time.Time `json:"entered_at" db:"entered_at"`
	ClosedAt              time.Time `json:"closed_at" db:"closed_at"`
}

// ComputeTradeMetrics produces the final accounting for a round trip.
// Net figures charge the assumed round-trip friction against gross:
// net P&L % = raw − friction, net dollars = gross − friction × notional.
func ComputeTradeMetrics(in MetricsInputs, p Params) TradeMetrics {
	raw := PnLPct(in.Direction, in.EntryPrice, in.ExitPrice)
	moveToEntry := MovePct(in.AnchorClose, in.EntryPrice)
	notional := in.EntryPrice * float64(in.Qty)

	var grossDollars float64
	if in.Direction == DirectionLong {
		grossDollars = (in.ExitPrice - in.EntryPrice) * float64(in.Qty)
	} else {
		grossDollars = (in.EntryPrice - in.ExitPrice) * float64(in.Qty)
	}

	return TradeMetrics{
		Symbol:                in.Symbol,
		Direction:             in.Direction,
		Qty:                   in.Qty,
		AnchorClose:           round2(in.AnchorClose),
		EntryPrice:            round2(in.EntryPrice),
		ExitPrice:             round2(in.ExitPrice),
		Move4PMToEntryPct:     round4(moveToEntry),
		RawPnLPct:             round4(raw),
		AssumedFrictionPct:    p.AssumedFrictionPct,
		NetPnLPct:             round4(raw - p.AssumedFrictionPct),
		GrossPnLDollars:       grossDollars,
		NetPnLDollars:         grossDollars - p.AssumedFrictionPct*notional,
		EntrySpreadPct:        round4(in.EntrySpreadPct),
		ExitSpreadPct:         round4(in.ExitSpreadPct),
		MaxFavorableExcursion: round4(in.MaxFavorablePct),
		MaxAdverseExcursion:   round4(in.MaxAdversePct),
		TriggerWindow:         in.TriggerWindow,
		ExitReason:            in.ExitReason,
		EnteredAt:             in.EnteredAt,
		ClosedAt:              in.ClosedAt,
	}
}
