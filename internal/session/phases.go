package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tradeworks/nightfade/internal/alert"
	"github.com/tradeworks/nightfade/internal/broker"
	"github.com/tradeworks/nightfade/internal/ledger"
	"github.com/tradeworks/nightfade/internal/market"
	"github.com/tradeworks/nightfade/internal/signal"
)

// entryCandidate pairs a qualified entry decision with the quote that
// produced it.
type entryCandidate struct {
	decision signal.EntryDecision
	quote    market.Quote
}

// phaseAnchor waits for the closing bell, samples official closes for
// the whole watchlist and hands off to monitoring.
func (o *Orchestrator) phaseAnchor(ctx context.Context) error {
	if err := o.transition(ledger.PhaseAnchor, o.now()); err != nil {
		return err
	}
	anchorAt := o.sched.AnchorAt(o.sessionDay())
	if o.now().Before(anchorAt) {
		log.Info().Time("anchor_at", anchorAt).Msg("waiting for the closing bell")
		if err := o.sleepUntil(ctx, anchorAt); err != nil {
			return err
		}
	}
	if err := o.recordAnchors(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Symbols without an anchor cannot signal; the session carries
		// on with whatever was sampled.
		o.metrics.RecordDataError("official_closes")
		log.Error().Err(err).Msg("anchor sampling failed")
	}
	return o.transition(ledger.PhaseMonitor, o.now())
}

// recordAnchors fetches the day's official closes and records them
// first-write-wins, so a restart never moves an anchor.
func (o *Orchestrator) recordAnchors(ctx context.Context) error {
	date := o.ledger.SessionDate()
	var closes map[string]float64
	err := o.withRetry(ctx, "official_closes", func() error {
		var cerr error
		closes, cerr = o.data.OfficialCloses(ctx, o.watch, date)
		return cerr
	})
	if err != nil {
		return err
	}
	var missing []string
	for _, sym := range o.watch {
		price, ok := closes[sym]
		if !ok || price <= 0 {
			missing = append(missing, sym)
			continue
		}
		o.ledger.SetAnchor(sym, price)
	}
	log.Info().
		Str("date", date).
		Int("anchored", o.ledger.AnchorCount()).
		Int("missing", len(missing)).
		Msg("anchor closes recorded")
	if len(missing) > 0 {
		log.Warn().Strs("symbols", missing).Msg("no official close, symbols inactive tonight")
	}
	return o.checkpoint()
}

// phaseMonitor polls the watchlist until the entry cutoff passes or
// every slot is filled, whichever comes first.
func (o *Orchestrator) phaseMonitor(ctx context.Context) error {
	day := o.sessionDay()
	if start := o.sched.MonitorStartAt(day); o.now().Before(start) {
		log.Info().Time("monitor_at", start).Msg("waiting for the after-hours window")
		if err := o.sleepUntil(ctx, start); err != nil {
			return err
		}
	}
	if err := o.transition(ledger.PhaseMonitor, o.now()); err != nil {
		return err
	}
	cutoff := o.sched.EntryCutoffAt(day)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		now := o.now()
		if !now.Before(cutoff) {
			log.Info().Msg("entry window closed")
			break
		}
		if o.ledger.OpenCount() >= o.params.MaxConcurrentPositions {
			log.Info().Int("positions", o.ledger.OpenCount()).Msg("all slots filled, moving to management")
			break
		}
		started := time.Now()
		err := o.monitorCycle(ctx, now)
		o.observeCycle("monitor", started, err)
		if err != nil {
			return err
		}
		o.publishGauges()
		if err := o.sleepUntil(ctx, now.Add(o.cfg.MonitorInterval())); err != nil {
			return err
		}
	}
	return o.transition(ledger.PhaseManage, o.now())
}

// monitorCycle samples the watchlist once: settle outstanding entry
// orders, refresh prices, then submit for any symbol whose move
// qualifies.
func (o *Orchestrator) monitorCycle(ctx context.Context, now time.Time) error {
	if err := o.resolvePending(ctx, now); err != nil {
		return err
	}

	var quotes map[string]market.Quote
	err := o.withRetry(ctx, "latest_quotes", func() error {
		var qerr error
		quotes, qerr = o.data.LatestQuotes(ctx, o.watch)
		return qerr
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		o.metrics.RecordDataError("latest_quotes")
		log.Warn().Err(err).Msg("no quotes this cycle")
		return nil
	}

	cutoff := o.sched.EntryCutoffAt(o.sessionDay())
	weekday := now.In(o.sched.Location()).Weekday()
	var candidates []entryCandidate
	for _, sym := range o.watch {
		if err := ctx.Err(); err != nil {
			return err
		}
		q, ok := quotes[sym]
		if !ok || q.Price <= 0 {
			continue
		}
		move := o.ledger.ObservePrice(sym, q.Price, now)
		o.noteExtreme(sym, move)
		if o.ledger.HasPosition(sym) {
			continue
		}
		anchor, ok := o.ledger.Anchor(sym)
		if !ok {
			continue
		}
		dec := o.entries.Evaluate(signal.EntryInputs{
			Symbol:        sym,
			AnchorClose:   anchor,
			CurrentPrice:  q.Price,
			Weekday:       weekday,
			PastCutoff:    !now.Before(cutoff),
			OpenPositions: o.ledger.OpenCount(),
		})
		if !dec.Qualified {
			if dec.MovePct >= o.params.ExtremeMovePct || dec.MovePct <= -o.params.ExtremeMovePct {
				log.Debug().
					Str("symbol", sym).
					Str("gates", dec.GateSummary()).
					Str("reason", dec.Reason).
					Msg("extreme move rejected")
			}
			continue
		}
		candidates = append(candidates, entryCandidate{decision: dec, quote: q})
	}
	if len(candidates) > 0 {
		if err := o.enterCandidates(ctx, candidates, now); err != nil {
			return err
		}
	}
	return o.checkpoint()
}

// noteExtreme logs a band crossing once per excursion, with a note when
// the move reverts back inside.
func (o *Orchestrator) noteExtreme(symbol string, move float64) {
	extreme := move >= o.params.ExtremeMovePct || move <= -o.params.ExtremeMovePct
	switch {
	case extreme && !o.seenExtreme[symbol]:
		o.seenExtreme[symbol] = true
		log.Info().Str("symbol", symbol).Float64("move_pct", move*100).Msg("extreme move detected")
	case !extreme && o.seenExtreme[symbol]:
		delete(o.seenExtreme, symbol)
		log.Info().Str("symbol", symbol).Float64("move_pct", move*100).Msg("move reverted inside the band")
	}
}

// enterCandidates runs one entry pass. Brokerage-reported positions are
// re-verified first so the concurrency cap holds even after external
// intervention, then candidates submit until the slots run out.
func (o *Orchestrator) enterCandidates(ctx context.Context, candidates []entryCandidate, now time.Time) error {
	if err := o.transition(ledger.PhaseEntry, now); err != nil {
		return err
	}
	if err := o.reconcilePositions(ctx, now); err != nil {
		o.metrics.RecordBrokerError("positions")
		log.Warn().Err(err).Msg("cannot verify brokerage positions, skipping entries this cycle")
		return o.transition(ledger.PhaseMonitor, o.now())
	}
	for _, cand := range candidates {
		if err := ctx.Err(); err != nil {
			return err
		}
		if o.ledger.OpenCount() >= o.params.MaxConcurrentPositions {
			log.Info().Msg("concurrency limit reached, remaining candidates pass")
			break
		}
		if o.ledger.HasPosition(cand.decision.Symbol) {
			continue
		}
		if err := o.submitEntry(ctx, cand, now); err != nil {
			return err
		}
	}
	return o.transition(ledger.PhaseMonitor, o.now())
}

// submitEntry sizes one qualified fade and places it. The pending
// position and its client order id are durable before the order leaves
// the process; a crash from there reconciles instead of resubmitting.
func (o *Orchestrator) submitEntry(ctx context.Context, cand entryCandidate, now time.Time) error {
	dec := cand.decision
	equity, cash := o.ledger.Account()
	qty := signal.ComputeQuantity(signal.SizingInputs{
		Equity:         equity,
		ReferencePrice: dec.ReferencePrice,
		Direction:      dec.Direction,
		AvailableCash:  cash,
		SlotsRemaining: o.params.MaxConcurrentPositions - o.ledger.OpenCount(),
	}, o.params)
	if qty <= 0 {
		log.Warn().
			Str("symbol", dec.Symbol).
			Float64("price", dec.ReferencePrice).
			Float64("cash", cash).
			Msg("sizing produced zero shares, passing")
		return nil
	}
	levels := signal.ProtectiveLevels(dec.ReferencePrice, dec.Direction, o.params)
	anchor, _ := o.ledger.Anchor(dec.Symbol)
	var spread float64
	if cand.quote.HasSpread {
		spread = cand.quote.SpreadPct
	}
	pos := ledger.Position{
		Symbol:         dec.Symbol,
		Direction:      dec.Direction,
		Qty:            qty,
		Status:         ledger.StatusPending,
		AnchorClose:    anchor,
		LimitPrice:     dec.ReferencePrice,
		EntrySpreadPct: spread,
		HardStop:       levels.HardStop,
		ProfitCeiling:  levels.ProfitCeiling,
		ClientOrderID:  entryClientID(),
		TriggerWindow:  o.sched.TriggerWindow(now),
		SubmittedAt:    now,
	}
	if err := o.ledger.OpenPosition(pos); err != nil {
		log.Warn().Err(err).Str("symbol", dec.Symbol).Msg("slot refused")
		return nil
	}
	o.ledger.RecordEvent(ledger.TradeEvent{
		At:        now,
		Action:    ledger.EventEntrySubmitted,
		Symbol:    dec.Symbol,
		Direction: dec.Direction,
		Qty:       qty,
		Price:     dec.ReferencePrice,
		Reason:    dec.Reason,
	})
	if err := o.checkpoint(); err != nil {
		return err
	}
	if dec.Direction == signal.DirectionLong {
		o.ledger.SpendCash(dec.ReferencePrice * float64(qty))
	}

	side := broker.SideBuy
	if dec.Direction == signal.DirectionShort {
		side = broker.SideSell
	}
	log.Info().
		Str("symbol", dec.Symbol).
		Str("direction", string(dec.Direction)).
		Int64("qty", qty).
		Float64("limit", dec.ReferencePrice).
		Str("window", pos.TriggerWindow).
		Str("reason", dec.Reason).
		Msg("submitting entry")
	ord, err := o.broker.SubmitExtendedHoursLimitOrder(ctx, broker.OrderRequest{
		Symbol:        dec.Symbol,
		Side:          side,
		Qty:           qty,
		LimitPrice:    dec.ReferencePrice,
		ClientOrderID: pos.ClientOrderID,
	})
	if err != nil {
		o.metrics.RecordBrokerError("submit_entry")
		log.Warn().Err(err).Str("symbol", dec.Symbol).Msg("entry submit failed, reconciling by client order id")
		found, lerr := o.broker.FindOrderByClientID(ctx, pos.ClientOrderID)
		if lerr != nil {
			if errors.Is(lerr, broker.ErrOrderNotFound) {
				// The order never reached the book; release the slot.
				return o.cancelPending(pos, "submit failed", now)
			}
			// Ambiguous twice over. Keep the slot occupied; the next
			// cycle's order resolution settles it.
			log.Warn().Err(lerr).Str("symbol", dec.Symbol).Msg("entry reconcile inconclusive, keeping pending")
			return o.checkpoint()
		}
		ord = found
	}
	o.ledger.SetEntryOrder(dec.Symbol, ord.ID)
	switch {
	case ord.Status.Filled():
		return o.markEntryFilled(dec.Symbol, ord, now)
	case ord.Status.Terminal():
		log.Warn().
			Str("symbol", dec.Symbol).
			Str("status", string(ord.Status)).
			Msg("entry order dead on arrival")
		return o.cancelPending(pos, string(ord.Status), now)
	default:
		return o.checkpoint()
	}
}

// phaseManage holds overnight: resolve orders, ratchet excursions and
// evaluate exits every cycle until the morning close-out instant.
func (o *Orchestrator) phaseManage(ctx context.Context) error {
	exitAt, err := o.sched.ExitFor(o.ledger.SessionDate())
	if err != nil {
		return err
	}
	log.Info().
		Time("exit_at", exitAt).
		Int("positions", o.ledger.OpenCount()).
		Msg("managing positions overnight")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		now := o.now()
		if !now.Before(exitAt) {
			break
		}
		if !o.sched.IsWeekday(now) || (o.sched.IsFriday(now) && o.sched.PastEntryCutoff(now)) {
			// Nothing trades until the next weekday morning; skip the
			// dead air in one sleep.
			target := o.sched.NextWeekdayAt(now, o.cfg.Schedule.ExitHour, o.cfg.Schedule.ExitMinute).Add(-5 * time.Minute)
			if target.After(exitAt) {
				target = exitAt
			}
			log.Info().Time("until", target).Msg("market closed, sleeping through the weekend")
			if err := o.sleepUntil(ctx, target); err != nil {
				return err
			}
			continue
		}
		started := time.Now()
		cerr := o.manageCycle(ctx, now)
		o.observeCycle("manage", started, cerr)
		if cerr != nil {
			return cerr
		}
		o.publishGauges()
		if err := o.sleepUntil(ctx, now.Add(o.cfg.ManageInterval())); err != nil {
			return err
		}
	}
	return o.transition(ledger.PhaseExit, o.now())
}

// manageCycle runs one pass over the book: settle in-flight orders,
// refresh snapshots, ratchet excursions and act on any exit decision.
func (o *Orchestrator) manageCycle(ctx context.Context, now time.Time) error {
	if err := o.resolvePending(ctx, now); err != nil {
		return err
	}
	if err := o.resolveClosing(ctx, now); err != nil {
		return err
	}

	open := o.ledger.OpenPositions()
	if len(open) == 0 {
		return nil
	}
	symbols := make([]string, 0, len(open))
	for _, p := range open {
		symbols = append(symbols, p.Symbol)
	}
	var quotes map[string]market.Quote
	err := o.withRetry(ctx, "snapshots", func() error {
		var qerr error
		quotes, qerr = o.data.Snapshots(ctx, symbols)
		return qerr
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		o.metrics.RecordDataError("snapshots")
		log.Warn().Err(err).Msg("no snapshots this cycle, holding positions")
		return nil
	}

	exitAt, err := o.sched.ExitFor(o.ledger.SessionDate())
	if err != nil {
		return err
	}
	for _, p := range open {
		if err := ctx.Err(); err != nil {
			return err
		}
		q, hasQuote := quotes[p.Symbol]
		switch p.Status {
		case ledger.StatusClosing:
			if p.ExitOrderID == "" && hasQuote && q.Price > 0 {
				// A previous attempt never got an order on the book;
				// try again at the current price.
				if err := o.submitExitOrder(ctx, p.Symbol, p.ExitClientOrderID, q.Price, p.ExitReason, now); err != nil {
					return err
				}
			}
			continue
		case ledger.StatusOpen:
		default:
			continue
		}
		if !hasQuote || q.Price <= 0 {
			log.Warn().Str("symbol", p.Symbol).Msg("no quote for open position this cycle")
			continue
		}
		pnl := signal.PnLPct(p.Direction, p.EntryPrice, q.Price)
		o.ledger.UpdateExcursions(p.Symbol, pnl)
		res := o.exits.Evaluate(signal.ExitInputs{
			Symbol:       p.Symbol,
			Direction:    p.Direction,
			EntryPrice:   p.EntryPrice,
			CurrentPrice: q.Price,
			HasSpread:    q.HasSpread,
			SpreadPct:    q.SpreadPct,
			HasVolume:    q.HasVolume,
			RecentVolume: q.RecentVolume,
			InExitWindow: !now.Before(exitAt),
		})
		log.Debug().
			Str("symbol", p.Symbol).
			Float64("price", q.Price).
			Float64("pnl_pct", res.PnLPct*100).
			Str("note", res.Description).
			Msg("position check")
		if !res.ShouldExit {
			continue
		}
		log.Info().
			Str("symbol", p.Symbol).
			Str("reason", res.Reason.String()).
			Str("detail", res.Description).
			Msg("exit triggered")
		var spread float64
		if q.HasSpread {
			spread = q.SpreadPct
		}
		if err := o.submitExit(ctx, p.Symbol, q.Price, res.Reason.String(), spread, now); err != nil {
			return err
		}
	}
	return o.checkpoint()
}

// submitExit durably records the closing intent, then places the exit
// as an extended-hours limit at the observed price.
func (o *Orchestrator) submitExit(ctx context.Context, symbol string, price float64, reason string, spreadPct float64, now time.Time) error {
	p, ok := o.ledger.Position(symbol)
	if !ok {
		return nil
	}
	clientID := exitClientID()
	if err := o.ledger.MarkClosing(symbol, clientID, reason, spreadPct); err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("cannot mark closing")
		return nil
	}
	o.ledger.RecordEvent(ledger.TradeEvent{
		At:        now,
		Action:    ledger.EventExitSubmitted,
		Symbol:    symbol,
		Direction: p.Direction,
		Qty:       p.Qty,
		Price:     price,
		Reason:    reason,
	})
	if err := o.checkpoint(); err != nil {
		return err
	}
	return o.submitExitOrder(ctx, symbol, clientID, price, reason, now)
}

// submitExitOrder places (or re-places) the exit order under a known
// client id and advances on the brokerage response.
func (o *Orchestrator) submitExitOrder(ctx context.Context, symbol, clientID string, price float64, reason string, now time.Time) error {
	p, ok := o.ledger.Position(symbol)
	if !ok {
		return nil
	}
	side := broker.SideSell
	if p.Direction == signal.DirectionShort {
		side = broker.SideBuy
	}
	ord, err := o.broker.SubmitExtendedHoursLimitOrder(ctx, broker.OrderRequest{
		Symbol:        symbol,
		Side:          side,
		Qty:           p.Qty,
		LimitPrice:    price,
		ClientOrderID: clientID,
	})
	if err != nil {
		o.metrics.RecordBrokerError("submit_exit")
		// The submit may have landed anyway; the id is the tiebreaker.
		found, lerr := o.broker.FindOrderByClientID(ctx, clientID)
		if lerr != nil {
			o.escalateExitFailure(ctx, symbol, reason, err)
			return nil
		}
		ord = found
	}
	o.ledger.SetExitOrder(symbol, ord.ID)
	if err := o.checkpoint(); err != nil {
		return err
	}
	return o.handleExitOrder(ctx, symbol, ord, now)
}

// escalateExitFailure decides how loudly a failed exit submission
// complains. Protective exits page once per position and keep retrying
// every cycle; a missed profit exit just waits for the next pass.
func (o *Orchestrator) escalateExitFailure(ctx context.Context, symbol, reason string, cause error) {
	protective := reason == signal.ExitHardStop.String() || reason == signal.ExitMarketOpen.String()
	if !protective {
		log.Warn().Err(cause).Str("symbol", symbol).Str("reason", reason).Msg("exit submission failed, retrying next cycle")
		return
	}
	log.Error().Err(cause).Str("symbol", symbol).Str("reason", reason).Msg("protective exit failed")
	if o.escalated[symbol] {
		return
	}
	o.escalated[symbol] = true
	o.notifier.Notify(ctx, alert.Critical(
		"protective exit failed",
		fmt.Sprintf("%s %s exit could not be placed: %v", symbol, reason, cause),
		symbol,
	))
}

// phaseExit force-closes everything inside the morning window. The
// sweep repeats until the book is flat or the deadline passes, and a
// deadline breach escalates instead of silently carrying risk.
func (o *Orchestrator) phaseExit(ctx context.Context) error {
	exitAt, err := o.sched.ExitFor(o.ledger.SessionDate())
	if err != nil {
		return err
	}
	if o.now().Before(exitAt) {
		log.Info().Time("exit_at", exitAt).Msg("waiting for the market-open close-out")
		if err := o.sleepUntil(ctx, exitAt.Add(exitSettleDelay)); err != nil {
			return err
		}
	}
	deadline := exitAt.Add(time.Duration(o.cfg.Schedule.ExitWindowMinutes) * time.Minute)
	o.cancelWorkingOrders(ctx)

	for o.ledger.OpenCount() > 0 {
		now := o.now()
		if !now.Before(deadline) {
			break
		}
		started := time.Now()
		err := o.exitSweep(ctx, now)
		o.observeCycle("exit", started, err)
		if err != nil {
			return err
		}
		if o.ledger.OpenCount() == 0 {
			break
		}
		if err := o.sleepUntil(ctx, now.Add(exitPollInterval)); err != nil {
			return err
		}
	}
	o.publishGauges()

	if remaining := o.ledger.OpenPositions(); len(remaining) > 0 {
		symbols := make([]string, 0, len(remaining))
		for _, p := range remaining {
			symbols = append(symbols, p.Symbol)
		}
		log.Error().Strs("symbols", symbols).Msg("positions unresolved at the close-out deadline")
		o.notifier.Notify(ctx, alert.Critical(
			"unresolved positions at close-out deadline",
			strings.Join(symbols, ", ")+" still on the book; manual intervention required",
			"",
		))
		return ErrUnresolvedPositions
	}
	return o.finishSession(ctx)
}

// cancelWorkingOrders clears resting orders on tracked symbols so the
// close-out cannot race a stale limit.
func (o *Orchestrator) cancelWorkingOrders(ctx context.Context) {
	orders, err := o.broker.ListOpenOrders(ctx)
	if err != nil {
		o.metrics.RecordBrokerError("list_orders")
		log.Warn().Err(err).Msg("cannot list working orders before close-out")
		return
	}
	for _, ord := range orders {
		if !o.ledger.HasPosition(ord.Symbol) {
			continue
		}
		if err := o.broker.CancelOrder(ctx, ord.ID); err != nil {
			log.Warn().Err(err).Str("symbol", ord.Symbol).Str("order_id", ord.ID).Msg("cancel failed")
			continue
		}
		log.Info().Str("symbol", ord.Symbol).Str("order_id", ord.ID).Msg("canceled working order before close-out")
	}
}

// exitSweep walks everything still tracked: entries that never filled
// are released, live positions are flattened through the brokerage
// close endpoint and their fills confirmed. Safe to repeat; whatever is
// already flat falls out of the loop.
func (o *Orchestrator) exitSweep(ctx context.Context, now time.Time) error {
	if err := o.resolvePending(ctx, now); err != nil {
		return err
	}
	if err := o.resolveClosing(ctx, now); err != nil {
		return err
	}

	live, err := o.broker.GetOpenPositions(ctx)
	if err != nil {
		o.metrics.RecordBrokerError("positions")
		log.Warn().Err(err).Msg("cannot list brokerage positions, retrying")
		return nil
	}
	liveBySymbol := make(map[string]broker.Position, len(live))
	for _, bp := range live {
		liveBySymbol[bp.Symbol] = bp
	}

	reason := signal.ExitMarketOpen.String()
	for _, p := range o.ledger.OpenPositions() {
		if err := ctx.Err(); err != nil {
			return err
		}
		bp, onBook := liveBySymbol[p.Symbol]
		if p.Status == ledger.StatusPending {
			if !onBook {
				if p.EntryOrderID != "" {
					if err := o.broker.CancelOrder(ctx, p.EntryOrderID); err != nil && !errors.Is(err, broker.ErrOrderNotFound) {
						log.Warn().Err(err).Str("symbol", p.Symbol).Msg("cancel of unfilled entry failed")
					}
				}
				log.Info().Str("symbol", p.Symbol).Msg("releasing unfilled entry at close-out")
				if err := o.cancelPending(p, reason, now); err != nil {
					return err
				}
				continue
			}
			// The unresolved entry actually filled; take the fill so
			// the close below applies to a tracked open position.
			if err := o.markEntryFilledFromPosition(p.Symbol, bp, now); err != nil {
				return err
			}
		}
		if p.Status == ledger.StatusClosing && p.ExitOrderID != "" {
			// A close order is already working; the poll at the top of
			// the next sweep confirms or rearms it.
			continue
		}
		if !onBook {
			log.Warn().Str("symbol", p.Symbol).Msg("tracked position missing at the brokerage during close-out")
			if _, derr := o.ledger.DropPosition(p.Symbol); derr == nil {
				o.ledger.RecordEvent(ledger.TradeEvent{
					At:        now,
					Action:    ledger.EventLedgerRepaired,
					Symbol:    p.Symbol,
					Direction: p.Direction,
					Qty:       p.Qty,
					Reason:    "missing at brokerage",
				})
				if err := o.checkpoint(); err != nil {
					return err
				}
			}
			continue
		}

		ord, cerr := o.broker.ClosePosition(ctx, p.Symbol)
		if cerr != nil {
			o.metrics.RecordBrokerError("close_position")
			o.escalateExitFailure(ctx, p.Symbol, reason, cerr)
			continue
		}
		clientID := ord.ClientOrderID
		if clientID == "" {
			clientID = ord.ID
		}
		o.ledger.MarkClosing(p.Symbol, clientID, reason, 0)
		o.ledger.SetExitOrder(p.Symbol, ord.ID)
		o.ledger.RecordEvent(ledger.TradeEvent{
			At:        now,
			Action:    ledger.EventExitSubmitted,
			Symbol:    p.Symbol,
			Direction: p.Direction,
			Qty:       p.Qty,
			Price:     ord.FilledAvgPrice,
			Reason:    reason,
		})
		if err := o.checkpoint(); err != nil {
			return err
		}
		if ord.Status.Filled() {
			if err := o.confirmExit(ctx, p.Symbol, ord, now); err != nil {
				return err
			}
		}
	}
	return nil
}

// markEntryFilledFromPosition promotes a pending entry using the
// brokerage position list itself as fill evidence, for when the order
// lookup could not.
func (o *Orchestrator) markEntryFilledFromPosition(symbol string, bp broker.Position, now time.Time) error {
	if err := o.ledger.MarkOpen(symbol, bp.AvgEntryPrice, now); err != nil {
		return nil
	}
	p, _ := o.ledger.Position(symbol)
	o.ledger.RecordEvent(ledger.TradeEvent{
		At:        now,
		Action:    ledger.EventEntryFilled,
		Symbol:    symbol,
		Direction: p.Direction,
		Qty:       p.Qty,
		Price:     p.EntryPrice,
	})
	o.metrics.RecordEntry(string(p.Direction), p.TriggerWindow)
	log.Info().Str("symbol", symbol).Float64("fill", p.EntryPrice).Msg("entry fill confirmed from the position list")
	return o.checkpoint()
}

// finishSession marks the night complete and runs finalization.
func (o *Orchestrator) finishSession(ctx context.Context) error {
	if err := o.transition(ledger.PhaseDone, o.now()); err != nil {
		return err
	}
	return o.finalize()
}

// finalize folds the night's trades into the running totals and moves
// the state file to the archive. Safe to run again after a crash: the
// totals skip a date they have already absorbed.
func (o *Orchestrator) finalize() error {
	date := o.ledger.SessionDate()
	trades := o.ledger.ClosedTrades()
	perf, err := o.store.UpdatePerformance(date, trades)
	if err != nil {
		return fmt.Errorf("session: update performance: %w", err)
	}
	var net float64
	for _, m := range trades {
		net += m.NetPnLDollars
	}
	log.Info().
		Str("session", date).
		Int("trades", len(trades)).
		Float64("session_net_usd", net).
		Int("total_trades", perf.TotalTrades).
		Float64("win_rate", perf.WinRate()).
		Float64("total_net_usd", perf.TotalNetPnLDollars).
		Msg("session complete")
	if err := o.store.ArchiveSession(o.ledger.Snapshot()); err != nil {
		return fmt.Errorf("session: archive: %w", err)
	}
	return nil
}
