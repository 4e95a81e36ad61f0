package signal

import (
	"fmt"
	"strings"
	"time"
)

// EntryInputs is one symbol's observation at evaluation time.
type EntryInputs struct {
	Symbol        string       `json:"symbol"`
	AnchorClose   float64      `json:"anchor_close"`
	CurrentPrice  float64      `json:"current_price"`
	Weekday       time.Weekday `json:"weekday"`
	PastCutoff    bool         `json:"past_cutoff"`
	OpenPositions int          `json:"open_positions"`
}

// GateCheck records a single entry gate evaluation.
type GateCheck struct {
	Name        string      `json:"name"`
	Passed      bool        `json:"passed"`
	Value       interface{} `json:"value"`
	Threshold   interface{} `json:"threshold"`
	Description string      `json:"description"`
}

// EntryDecision is the full outcome of entry evaluation for one symbol.
// Qualified is true only when every gate passed; Direction and
// ReferencePrice are meaningful only then.
type EntryDecision struct {
	Symbol         string               `json:"symbol"`
	Qualified      bool                 `json:"qualified"`
	Direction      Direction            `json:"direction,omitempty"`
	ReferencePrice float64              `json:"reference_price"`
	MovePct        float64              `json:"move_pct"`
	Reason         string               `json:"reason"`
	GateResults    map[string]GateCheck `json:"gate_results"`
	PassedGates    []string             `json:"passed_gates"`
	FailureReasons []string             `json:"failure_reasons"`
}

// entryGateOrder fixes the reporting order of gates.
var entryGateOrder = []string{"price_data", "slot_available", "entry_window", "extreme_move", "weekend_risk"}

// EntryEvaluator applies the fade entry gates.
type EntryEvaluator struct {
	params Params
}

// NewEntryEvaluator creates an entry evaluator with the given parameters.
func NewEntryEvaluator(params Params) *EntryEvaluator {
	return &EntryEvaluator{params: params}
}

// Evaluate runs all entry gates for one symbol. Mon–Thu both fade
// directions qualify; Friday only the long side does, so no short is
// carried into a weekend.
func (e *EntryEvaluator) Evaluate(in EntryInputs) EntryDecision {
	result := EntryDecision{
		Symbol:         in.Symbol,
		ReferencePrice: in.CurrentPrice,
		GateResults:    make(map[string]GateCheck),
		PassedGates:    []string{},
		FailureReasons: []string{},
	}

	// Gate 1: price data sanity. Everything downstream divides by anchor.
	dataCheck := GateCheck{
		Name:        "price_data",
		Passed:      in.AnchorClose > 0 && in.CurrentPrice > 0,
		Value:       in.CurrentPrice,
		Threshold:   0.0,
		Description: fmt.Sprintf("anchor=%.2f price=%.2f", in.AnchorClose, in.CurrentPrice),
	}
	result.GateResults["price_data"] = dataCheck
	if !dataCheck.Passed {
		result.FailureReasons = append(result.FailureReasons, "invalid price data")
		result.Reason = "invalid price data"
		return result
	}
	result.PassedGates = append(result.PassedGates, "price_data")

	move := MovePct(in.AnchorClose, in.CurrentPrice)
	result.MovePct = move

	// Gate 2: concurrency slot.
	slotCheck := GateCheck{
		Name:        "slot_available",
		Passed:      in.OpenPositions < e.params.MaxConcurrentPositions,
		Value:       in.OpenPositions,
		Threshold:   e.params.MaxConcurrentPositions,
		Description: fmt.Sprintf("%d of %d slots occupied", in.OpenPositions, e.params.MaxConcurrentPositions),
	}
	result.GateResults["slot_available"] = slotCheck
	if slotCheck.Passed {
		result.PassedGates = append(result.PassedGates, "slot_available")
	} else {
		result.FailureReasons = append(result.FailureReasons,
			fmt.Sprintf("max %d concurrent positions reached", e.params.MaxConcurrentPositions))
	}

	// Gate 3: entry window.
	windowCheck := GateCheck{
		Name:        "entry_window",
		Passed:      !in.PastCutoff,
		Value:       in.PastCutoff,
		Threshold:   false,
		Description: "no new entries after the cutoff",
	}
	result.GateResults["entry_window"] = windowCheck
	if windowCheck.Passed {
		result.PassedGates = append(result.PassedGates, "entry_window")
	} else {
		result.FailureReasons = append(result.FailureReasons, "past entry cutoff")
	}

	// Gate 4: extreme move threshold.
	threshold := e.params.ExtremeMovePct
	moveCheck := GateCheck{
		Name:        "extreme_move",
		Passed:      move >= threshold || move <= -threshold,
		Value:       move,
		Threshold:   threshold,
		Description: fmt.Sprintf("move %+.2f%% vs ±%.0f%% band", move*100, threshold*100),
	}
	result.GateResults["extreme_move"] = moveCheck
	if moveCheck.Passed {
		result.PassedGates = append(result.PassedGates, "extreme_move")
	} else {
		result.FailureReasons = append(result.FailureReasons,
			fmt.Sprintf("move %+.2f%% within ±%.0f%% band", move*100, threshold*100))
	}

	// Gate 5: weekend risk. Friday upside fades would hold a short
	// position across the weekend; reject them outright.
	friday := in.Weekday == time.Friday
	weekendCheck := GateCheck{
		Name:        "weekend_risk",
		Passed:      !(friday && move >= threshold),
		Value:       in.Weekday.String(),
		Threshold:   "no Friday shorts",
		Description: "short entries are not held over a weekend",
	}
	result.GateResults["weekend_risk"] = weekendCheck
	if weekendCheck.Passed {
		result.PassedGates = append(result.PassedGates, "weekend_risk")
	} else {
		result.FailureReasons = append(result.FailureReasons,
			fmt.Sprintf("Friday: move %+.2f%% would open a weekend short", move*100))
	}

	result.Qualified = len(result.FailureReasons) == 0
	if !result.Qualified {
		result.Reason = strings.Join(result.FailureReasons, "; ")
		return result
	}

	if move >= threshold {
		result.Direction = DirectionShort
		result.Reason = fmt.Sprintf("fade up: %+.2f%% from close", move*100)
	} else {
		result.Direction = DirectionLong
		if friday {
			result.Reason = fmt.Sprintf("Friday dip fade: %+.2f%% from close", move*100)
		} else {
			result.Reason = fmt.Sprintf("fade down: %+.2f%% from close", move*100)
		}
	}
	return result
}

// GateSummary renders a compact pass/fail line for logs.
func (d *EntryDecision) GateSummary() string {
	parts := make([]string, 0, len(entryGateOrder))
	for _, name := range entryGateOrder {
		check, ok := d.GateResults[name]
		if !ok {
			continue
		}
		mark := "✓"
		if !check.Passed {
			mark = "✗"
		}
		parts = append(parts, mark+name)
	}
	return strings.Join(parts, " ")
}
