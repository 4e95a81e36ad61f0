package signal

import "testing"

func TestExitEvaluate_HardStopBoundary(t *testing.T) {
	eval := NewExitEvaluator(DefaultParams())

	tests := []struct {
		name       string
		direction  Direction
		entry      float64
		current    float64
		wantExit   bool
		wantReason ExitReason
	}{
		{"long_exactly_at_stop", DirectionLong, 100.0, 95.0, true, ExitHardStop},
		{"long_just_above_stop", DirectionLong, 100.0, 95.1, false, ExitNone},
		{"long_below_stop", DirectionLong, 100.0, 90.0, true, ExitHardStop},
		{"short_exactly_at_stop", DirectionShort, 100.0, 105.0, true, ExitHardStop},
		{"short_just_inside_stop", DirectionShort, 100.0, 104.9, false, ExitNone},
		{"short_beyond_stop", DirectionShort, 100.0, 112.0, true, ExitHardStop},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := eval.Evaluate(ExitInputs{
				Symbol:       "AAPL",
				Direction:    tt.direction,
				EntryPrice:   tt.entry,
				CurrentPrice: tt.current,
			})
			if result.ShouldExit != tt.wantExit {
				t.Fatalf("shouldExit = %v, want %v (%s)", result.ShouldExit, tt.wantExit, result.Description)
			}
			if result.Reason != tt.wantReason {
				t.Errorf("reason = %s, want %s", result.Reason, tt.wantReason)
			}
		})
	}
}

func TestExitEvaluate_ProfitCeilingConditions(t *testing.T) {
	eval := NewExitEvaluator(DefaultParams())

	base := ExitInputs{
		Symbol:       "NVDA",
		Direction:    DirectionLong,
		EntryPrice:   100.0,
		CurrentPrice: 102.5, // exactly at the +2.5% ceiling
	}

	t.Run("wide_spread_holds", func(t *testing.T) {
		in := base
		in.HasSpread = true
		in.SpreadPct = 0.005 // 0.50% > 0.40% limit
		in.HasVolume = true
		in.RecentVolume = 5000
		result := eval.Evaluate(in)
		if result.ShouldExit {
			t.Fatalf("profit exit should hold on 0.50%% spread: %s", result.Description)
		}
	})

	t.Run("tight_spread_exits", func(t *testing.T) {
		in := base
		in.HasSpread = true
		in.SpreadPct = 0.003 // 0.30% <= 0.40% limit
		in.HasVolume = true
		in.RecentVolume = 5000
		result := eval.Evaluate(in)
		if !result.ShouldExit || result.Reason != ExitProfitCeiling {
			t.Fatalf("profit exit should fire on 0.30%% spread: %+v", result)
		}
	})

	t.Run("thin_volume_holds", func(t *testing.T) {
		in := base
		in.HasSpread = true
		in.SpreadPct = 0.001
		in.HasVolume = true
		in.RecentVolume = 50 // below the 100-share floor
		result := eval.Evaluate(in)
		if result.ShouldExit {
			t.Fatalf("profit exit should hold on thin volume: %s", result.Description)
		}
	})

	t.Run("unknown_microstructure_exits", func(t *testing.T) {
		// A source that omits spread/volume never blocks the exit.
		result := eval.Evaluate(base)
		if !result.ShouldExit || result.Reason != ExitProfitCeiling {
			t.Fatalf("profit exit should fire with unknown spread/volume: %+v", result)
		}
	})

	t.Run("below_ceiling_holds", func(t *testing.T) {
		in := base
		in.CurrentPrice = 102.0 // +2.0%, under the ceiling
		in.HasSpread = true
		in.SpreadPct = 0.001
		result := eval.Evaluate(in)
		if result.ShouldExit {
			t.Fatalf("no exit expected under the ceiling: %s", result.Description)
		}
	})

	t.Run("short_side_ceiling", func(t *testing.T) {
		in := ExitInputs{
			Symbol:       "NVDA",
			Direction:    DirectionShort,
			EntryPrice:   100.0,
			CurrentPrice: 97.5,
			HasSpread:    true,
			SpreadPct:    0.002,
			HasVolume:    true,
			RecentVolume: 1000,
		}
		result := eval.Evaluate(in)
		if !result.ShouldExit || result.Reason != ExitProfitCeiling {
			t.Fatalf("short profit exit should fire at -2.5%% price move: %+v", result)
		}
	})
}

func TestExitEvaluate_MarketOpenOverridesEverything(t *testing.T) {
	eval := NewExitEvaluator(DefaultParams())

	tests := []struct {
		name    string
		current float64
		spread  float64
	}{
		{"deep_loss", 80.0, 0.02},
		{"flat", 100.0, 0.02},
		{"at_profit_with_terrible_spread", 103.0, 0.05},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := eval.Evaluate(ExitInputs{
				Symbol:       "AMD",
				Direction:    DirectionLong,
				EntryPrice:   100.0,
				CurrentPrice: tt.current,
				HasSpread:    true,
				SpreadPct:    tt.spread,
				HasVolume:    true,
				RecentVolume: 0,
				InExitWindow: true,
			})
			if !result.ShouldExit {
				t.Fatalf("forced exit must fire in the exit window: %s", result.Description)
			}
			if result.Reason != ExitMarketOpen {
				t.Errorf("reason = %s, want %s", result.Reason, ExitMarketOpen)
			}
		})
	}
}

func TestExitEvaluate_NoEntryPrice(t *testing.T) {
	eval := NewExitEvaluator(DefaultParams())
	result := eval.Evaluate(ExitInputs{Symbol: "X", Direction: DirectionLong, CurrentPrice: 50})
	if result.ShouldExit {
		t.Fatal("no exit without an entry price")
	}
}

func TestExitReason_String(t *testing.T) {
	cases := map[ExitReason]string{
		ExitNone:          "none",
		ExitMarketOpen:    "market_open_closeout",
		ExitHardStop:      "hard_stop",
		ExitProfitCeiling: "profit_ceiling",
	}
	for reason, want := range cases {
		if got := reason.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", reason, got, want)
		}
	}
}
