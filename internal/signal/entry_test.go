package signal

import (
	"testing"
	"time"
)

func TestEntryEvaluate_WeekdayThresholds(t *testing.T) {
	eval := NewEntryEvaluator(DefaultParams())
	weekdays := []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday}

	tests := []struct {
		name          string
		anchor        float64
		price         float64
		wantQualified bool
		wantDirection Direction
	}{
		{"exact_up_7pct", 100.0, 107.0, true, DirectionShort},
		{"exact_down_7pct", 100.0, 93.0, true, DirectionLong},
		{"up_6_99pct", 100.0, 106.99, false, ""},
		{"down_6_99pct", 100.0, 93.01, false, ""},
		{"up_10pct", 200.0, 220.0, true, DirectionShort},
		{"down_12pct", 50.0, 44.0, true, DirectionLong},
		{"flat", 100.0, 100.0, false, ""},
	}

	for _, day := range weekdays {
		for _, tt := range tests {
			t.Run(day.String()+"_"+tt.name, func(t *testing.T) {
				decision := eval.Evaluate(EntryInputs{
					Symbol:       "AAPL",
					AnchorClose:  tt.anchor,
					CurrentPrice: tt.price,
					Weekday:      day,
				})
				if decision.Qualified != tt.wantQualified {
					t.Fatalf("qualified = %v, want %v (%s)", decision.Qualified, tt.wantQualified, decision.Reason)
				}
				if decision.Qualified && decision.Direction != tt.wantDirection {
					t.Errorf("direction = %s, want %s", decision.Direction, tt.wantDirection)
				}
				if decision.Qualified && decision.ReferencePrice != tt.price {
					t.Errorf("reference price = %.2f, want %.2f", decision.ReferencePrice, tt.price)
				}
			})
		}
	}
}

func TestEntryEvaluate_FridayLongOnly(t *testing.T) {
	eval := NewEntryEvaluator(DefaultParams())

	up := eval.Evaluate(EntryInputs{
		Symbol:       "TSLA",
		AnchorClose:  100.0,
		CurrentPrice: 107.5,
		Weekday:      time.Friday,
	})
	if up.Qualified {
		t.Fatalf("Friday +7.5%% move should not qualify, got direction %s", up.Direction)
	}
	check, ok := up.GateResults["weekend_risk"]
	if !ok || check.Passed {
		t.Errorf("weekend_risk gate should have failed: %+v", check)
	}

	down := eval.Evaluate(EntryInputs{
		Symbol:       "TSLA",
		AnchorClose:  100.0,
		CurrentPrice: 92.5,
		Weekday:      time.Friday,
	})
	if !down.Qualified || down.Direction != DirectionLong {
		t.Fatalf("Friday -7.5%% move should qualify long, got qualified=%v direction=%s",
			down.Qualified, down.Direction)
	}
}

func TestEntryEvaluate_SlotGate(t *testing.T) {
	params := DefaultParams()
	eval := NewEntryEvaluator(params)

	full := eval.Evaluate(EntryInputs{
		Symbol:        "NVDA",
		AnchorClose:   100.0,
		CurrentPrice:  110.0,
		Weekday:       time.Tuesday,
		OpenPositions: params.MaxConcurrentPositions,
	})
	if full.Qualified {
		t.Fatal("entry should be rejected with all slots occupied")
	}

	open := eval.Evaluate(EntryInputs{
		Symbol:        "NVDA",
		AnchorClose:   100.0,
		CurrentPrice:  110.0,
		Weekday:       time.Tuesday,
		OpenPositions: params.MaxConcurrentPositions - 1,
	})
	if !open.Qualified {
		t.Fatalf("entry should qualify with a free slot: %s", open.Reason)
	}
}

func TestEntryEvaluate_CutoffGate(t *testing.T) {
	eval := NewEntryEvaluator(DefaultParams())

	decision := eval.Evaluate(EntryInputs{
		Symbol:       "AMD",
		AnchorClose:  100.0,
		CurrentPrice: 92.0,
		Weekday:      time.Wednesday,
		PastCutoff:   true,
	})
	if decision.Qualified {
		t.Fatal("entry past cutoff should not qualify")
	}
	if check := decision.GateResults["entry_window"]; check.Passed {
		t.Errorf("entry_window gate should have failed")
	}
}

func TestEntryEvaluate_InvalidPrices(t *testing.T) {
	eval := NewEntryEvaluator(DefaultParams())

	for _, in := range []EntryInputs{
		{Symbol: "X", AnchorClose: 0, CurrentPrice: 100, Weekday: time.Monday},
		{Symbol: "X", AnchorClose: 100, CurrentPrice: 0, Weekday: time.Monday},
		{Symbol: "X", AnchorClose: -5, CurrentPrice: 100, Weekday: time.Monday},
	} {
		decision := eval.Evaluate(in)
		if decision.Qualified {
			t.Errorf("invalid prices should not qualify: %+v", in)
		}
		if decision.Reason != "invalid price data" {
			t.Errorf("reason = %q, want invalid price data", decision.Reason)
		}
	}
}

func TestEntryDecision_GateSummary(t *testing.T) {
	eval := NewEntryEvaluator(DefaultParams())
	decision := eval.Evaluate(EntryInputs{
		Symbol:       "MSFT",
		AnchorClose:  100.0,
		CurrentPrice: 108.0,
		Weekday:      time.Monday,
	})
	summary := decision.GateSummary()
	if summary == "" {
		t.Fatal("gate summary should not be empty")
	}
}
