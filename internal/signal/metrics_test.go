package signal

import (
	"testing"
	"time"
)

func TestComputeTradeMetrics_LongRoundTrip(t *testing.T) {
	p := DefaultParams()
	entered := time.Date(2025, 3, 10, 16, 5, 0, 0, time.UTC)
	closed := time.Date(2025, 3, 11, 9, 40, 0, 0, time.UTC)

	m := ComputeTradeMetrics(MetricsInputs{
		Symbol:          "AAPL",
		Direction:       DirectionLong,
		Qty:             100,
		AnchorClose:     100,
		EntryPrice:      93,
		ExitPrice:       95,
		EntrySpreadPct:  0.0012,
		ExitSpreadPct:   0.0008,
		MaxFavorablePct: 0.024,
		MaxAdversePct:   -0.011,
		TriggerWindow:   "post_4pm",
		ExitReason:      "market_open_closeout",
		EnteredAt:       entered,
		ClosedAt:        closed,
	}, p)

	if m.Move4PMToEntryPct != -0.07 {
		t.Errorf("move to entry = %v, want -0.07", m.Move4PMToEntryPct)
	}
	if m.RawPnLPct != 0.0215 {
		t.Errorf("raw pnl = %v, want 0.0215", m.RawPnLPct)
	}
	if m.NetPnLPct != 0.0165 {
		t.Errorf("net pnl = %v, want 0.0165", m.NetPnLPct)
	}
	if m.GrossPnLDollars != 200 {
		t.Errorf("gross dollars = %v, want 200", m.GrossPnLDollars)
	}
	// Friction charges 0.5% of the entry notional ($9300) against gross.
	if m.NetPnLDollars != 153.5 {
		t.Errorf("net dollars = %v, want 153.50", m.NetPnLDollars)
	}
	if m.AssumedFrictionPct != p.AssumedFrictionPct {
		t.Errorf("friction = %v, want %v", m.AssumedFrictionPct, p.AssumedFrictionPct)
	}
	if m.TriggerWindow != "post_4pm" || m.ExitReason != "market_open_closeout" {
		t.Errorf("window/reason passthrough broken: %q %q", m.TriggerWindow, m.ExitReason)
	}
	if !m.EnteredAt.Equal(entered) || !m.ClosedAt.Equal(closed) {
		t.Errorf("timestamps not preserved")
	}
}

func TestComputeTradeMetrics_ShortRoundTrip(t *testing.T) {
	p := DefaultParams()

	m := ComputeTradeMetrics(MetricsInputs{
		Symbol:      "TSLA",
		Direction:   DirectionShort,
		Qty:         100,
		AnchorClose: 100,
		EntryPrice:  107,
		ExitPrice:   104,
		ExitReason:  "profit_ceiling",
	}, p)

	if m.Move4PMToEntryPct != 0.07 {
		t.Errorf("move to entry = %v, want 0.07", m.Move4PMToEntryPct)
	}
	// Short gains when price falls: (107-104)/107 = 2.80%.
	if m.RawPnLPct != 0.028 {
		t.Errorf("raw pnl = %v, want 0.028", m.RawPnLPct)
	}
	if m.NetPnLPct != 0.023 {
		t.Errorf("net pnl = %v, want 0.023", m.NetPnLPct)
	}
	if m.GrossPnLDollars != 300 {
		t.Errorf("gross dollars = %v, want 300", m.GrossPnLDollars)
	}
	if m.NetPnLDollars != 246.5 {
		t.Errorf("net dollars = %v, want 246.50", m.NetPnLDollars)
	}
}

func TestComputeTradeMetrics_FrictionChargedOnLosses(t *testing.T) {
	p := DefaultParams()

	m := ComputeTradeMetrics(MetricsInputs{
		Symbol:      "AMD",
		Direction:   DirectionLong,
		Qty:         10,
		AnchorClose: 107.5,
		EntryPrice:  100,
		ExitPrice:   95,
		ExitReason:  "hard_stop",
	}, p)

	if m.RawPnLPct != -0.05 {
		t.Errorf("raw pnl = %v, want -0.05", m.RawPnLPct)
	}
	if m.NetPnLPct != -0.055 {
		t.Errorf("net pnl = %v, want -0.055", m.NetPnLPct)
	}
	if m.GrossPnLDollars != -50 {
		t.Errorf("gross dollars = %v, want -50", m.GrossPnLDollars)
	}
	if m.NetPnLDollars != -55 {
		t.Errorf("net dollars = %v, want -55", m.NetPnLDollars)
	}
}

func TestComputeTradeMetrics_Rounding(t *testing.T) {
	m := ComputeTradeMetrics(MetricsInputs{
		Symbol:          "NVDA",
		Direction:       DirectionLong,
		Qty:             7,
		AnchorClose:     131.238901,
		EntryPrice:      123.456789,
		ExitPrice:       125.121212,
		EntrySpreadPct:  0.00123456,
		MaxFavorablePct: 0.0187654,
		MaxAdversePct:   -0.0054321,
	}, DefaultParams())

	if m.AnchorClose != 131.24 || m.EntryPrice != 123.46 || m.ExitPrice != 125.12 {
		t.Errorf("prices not rounded to cents: %v %v %v", m.AnchorClose, m.EntryPrice, m.ExitPrice)
	}
	if m.EntrySpreadPct != 0.0012 {
		t.Errorf("entry spread = %v, want 0.0012", m.EntrySpreadPct)
	}
	if m.MaxFavorableExcursion != 0.0188 || m.MaxAdverseExcursion != -0.0054 {
		t.Errorf("excursions not rounded: %v %v", m.MaxFavorableExcursion, m.MaxAdverseExcursion)
	}
}
