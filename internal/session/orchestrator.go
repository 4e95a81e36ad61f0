// Package session drives the overnight fade loop: anchor sampling at
// the bell, after-hours monitoring and entry, overnight management and
// the forced morning close-out. Durable state is checkpointed around
// every externally-visible action so a crash at any instant resumes
// without duplicating orders.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tradeworks/nightfade/internal/alert"
	"github.com/tradeworks/nightfade/internal/broker"
	"github.com/tradeworks/nightfade/internal/config"
	"github.com/tradeworks/nightfade/internal/ledger"
	"github.com/tradeworks/nightfade/internal/market"
	"github.com/tradeworks/nightfade/internal/metrics"
	"github.com/tradeworks/nightfade/internal/signal"
	"github.com/tradeworks/nightfade/internal/store"
)

// ErrUnresolvedPositions is returned by Run when the close-out deadline
// passed with positions still on the book. The process maps it to a
// distinct exit code so supervision can page instead of restarting.
var ErrUnresolvedPositions = errors.New("session: positions unresolved at exit deadline")

const (
	// exitSettleDelay pads the close-out start past the opening bell so
	// the brokerage accepts regular-session market orders.
	exitSettleDelay = 5 * time.Second
	// exitPollInterval spaces close-out sweeps inside the exit window.
	exitPollInterval = 15 * time.Second
)

// DataProvider is the market data surface the session consumes,
// satisfied by the provider chain.
type DataProvider interface {
	// LatestQuotes returns last-trade prices for the watchlist.
	LatestQuotes(ctx context.Context, symbols []string) (map[string]market.Quote, error)
	// Snapshots returns prices with spread and volume detail for open
	// position management.
	Snapshots(ctx context.Context, symbols []string) (map[string]market.Quote, error)
	// OfficialCloses returns the official closing prices for a date.
	OfficialCloses(ctx context.Context, symbols []string, date string) (map[string]float64, error)
}

// Deps wires the orchestrator's collaborators. Store, Broker and Data
// are required; Notifier, Metrics and Now default when nil, and Archive
// is optional.
type Deps struct {
	Config    *config.Config
	Watchlist []string
	Store     store.Store
	Broker    broker.Client
	Data      DataProvider
	Notifier  alert.Notifier
	Metrics   *metrics.Registry
	Archive   store.TradeArchive
	Now       func() time.Time
	DryRun    bool
}

// Orchestrator owns one overnight session from boot to archive.
type Orchestrator struct {
	cfg      *config.Config
	params   signal.Params
	sched    *Schedule
	watch    []string
	watchSet map[string]bool
	dryRun   bool

	store    store.Store
	broker   broker.Client
	data     DataProvider
	notifier alert.Notifier
	metrics  *metrics.Registry
	archive  store.TradeArchive

	entries *signal.EntryEvaluator
	exits   *signal.ExitEvaluator
	now     func() time.Time

	ledger *ledger.Ledger

	// seenExtreme tracks which symbols are currently outside the move
	// band, so each excursion logs once instead of every cycle.
	seenExtreme map[string]bool
	// escalated tracks positions already paged for a failed protective
	// exit, one page per position per attempt wave.
	escalated map[string]bool
}

// New validates the wiring and builds an orchestrator.
func New(deps Deps) (*Orchestrator, error) {
	if deps.Config == nil {
		return nil, errors.New("session: config is required")
	}
	if deps.Store == nil || deps.Broker == nil || deps.Data == nil {
		return nil, errors.New("session: store, broker and data dependencies are required")
	}
	if len(deps.Watchlist) == 0 {
		return nil, errors.New("session: watchlist is empty")
	}
	sched, err := NewSchedule(deps.Config.Schedule)
	if err != nil {
		return nil, err
	}
	if deps.Notifier == nil {
		deps.Notifier = alert.NewLogNotifier()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewRegistry()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	params := strategyParams(deps.Config.Strategy)
	watchSet := make(map[string]bool, len(deps.Watchlist))
	for _, sym := range deps.Watchlist {
		watchSet[sym] = true
	}
	return &Orchestrator{
		cfg:         deps.Config,
		params:      params,
		sched:       sched,
		watch:       deps.Watchlist,
		watchSet:    watchSet,
		dryRun:      deps.DryRun,
		store:       deps.Store,
		broker:      deps.Broker,
		data:        deps.Data,
		notifier:    deps.Notifier,
		metrics:     deps.Metrics,
		archive:     deps.Archive,
		entries:     signal.NewEntryEvaluator(params),
		exits:       signal.NewExitEvaluator(params),
		now:         deps.Now,
		seenExtreme: make(map[string]bool),
		escalated:   make(map[string]bool),
	}, nil
}

// strategyParams maps the config block onto the signal engine's knobs.
func strategyParams(s config.StrategyConfig) signal.Params {
	return signal.Params{
		ExtremeMovePct:         s.ExtremeMovePct,
		HardStopPct:            s.HardStopPct,
		ProfitCeilingPct:       s.ProfitCeilingPct,
		ProfitExitMaxSpreadPct: s.ProfitExitMaxSpreadPct,
		ProfitExitMinVolume:    s.ProfitExitMinVolume,
		RiskPerTradePct:        s.RiskPerTradePct,
		MaxConcurrentPositions: s.MaxConcurrentPositions,
		AssumedFrictionPct:     s.AssumedFrictionPct,
	}
}

func entryClientID() string { return "nf-" + uuid.New().String() }
func exitClientID() string  { return "nf-x-" + uuid.New().String() }

// Run executes the session to completion: resume or start, then walk
// the phases until the morning close-out finishes and the session is
// archived. Returns nil on a clean night, ErrUnresolvedPositions when
// the close-out deadline passed with positions still on the book, and
// the underlying error for anything fatal.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.boot(ctx, o.now()); err != nil {
		return err
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch phase := o.ledger.Phase(); phase {
		case ledger.PhaseBoot, ledger.PhaseAnchor:
			if err := o.phaseAnchor(ctx); err != nil {
				return err
			}
		case ledger.PhaseMonitor, ledger.PhaseEntry:
			if err := o.phaseMonitor(ctx); err != nil {
				return err
			}
		case ledger.PhaseManage:
			if err := o.phaseManage(ctx); err != nil {
				return err
			}
		case ledger.PhaseExit:
			return o.phaseExit(ctx)
		case ledger.PhaseDone:
			return o.finalize()
		default:
			return fmt.Errorf("session: unknown phase %q", phase)
		}
	}
}

// RunOnce boots against the stored session (or starts a fresh one) and
// runs a single management cycle, for exercising the pipeline outside
// the schedule.
func (o *Orchestrator) RunOnce(ctx context.Context) error {
	now := o.now()
	if err := o.boot(ctx, now); err != nil {
		return err
	}
	if err := o.manageCycle(ctx, now); err != nil {
		return err
	}
	o.publishGauges()
	return o.checkpoint()
}

// boot resumes a live session from the checkpoint file or starts a
// fresh one. Both the current trading date and the one before are
// probed: a session whose morning close-out was missed entirely still
// lives under the previous date.
func (o *Orchestrator) boot(ctx context.Context, now time.Time) error {
	date := o.sched.SessionDateFor(now)
	state, err := o.store.LoadSession(date)
	if err != nil {
		return fmt.Errorf("session: load state: %w", err)
	}
	if state == nil {
		prev, perr := o.sched.PrevTradingDate(date)
		if perr != nil {
			return perr
		}
		prevState, lerr := o.store.LoadSession(prev)
		if lerr != nil {
			return fmt.Errorf("session: load state: %w", lerr)
		}
		if prevState != nil && prevState.Phase != ledger.PhaseDone {
			state = prevState
		}
	}

	if state != nil {
		o.ledger = ledger.Resume(state)
		o.metrics.RecordPhaseTransition(string(ledger.PhaseBoot), string(state.Phase))
		log.Info().
			Str("session", state.SessionDate).
			Str("phase", string(state.Phase)).
			Int("positions", o.ledger.OpenCount()).
			Uint64("checkpoint", state.Checkpoint).
			Msg("resuming unfinished session")
		if state.Phase != ledger.PhaseDone {
			o.ledger.SeedWatchlist(o.watch)
			if err := o.reconcile(ctx, now); err != nil {
				return err
			}
		}
		return o.checkpoint()
	}

	o.ledger = ledger.New(date, now)
	o.ledger.SeedWatchlist(o.watch)
	var acct broker.Account
	err = o.withRetry(ctx, "account", func() error {
		var aerr error
		acct, aerr = o.broker.GetAccount(ctx)
		return aerr
	})
	if err != nil {
		return fmt.Errorf("session: account snapshot: %w", err)
	}
	o.ledger.SetAccount(acct.Equity, acct.Cash)
	log.Info().
		Str("session", date).
		Int("watchlist", len(o.watch)).
		Float64("equity", acct.Equity).
		Float64("cash", acct.Cash).
		Bool("dry_run", o.dryRun).
		Msg("session started")
	return o.checkpoint()
}

// reconcile re-derives order and position truth from the brokerage
// after a restart. In-flight orders are looked up rather than assumed,
// and the brokerage's position list is ground truth for repairs.
func (o *Orchestrator) reconcile(ctx context.Context, now time.Time) error {
	if err := o.resolvePending(ctx, now); err != nil {
		return err
	}
	if err := o.resolveClosing(ctx, now); err != nil {
		return err
	}
	return o.reconcilePositions(ctx, now)
}

// resolvePending settles entries whose submit outcome is unknown: a
// crash between checkpoint and response, or an order still working
// from a previous cycle.
func (o *Orchestrator) resolvePending(ctx context.Context, now time.Time) error {
	for _, p := range o.ledger.OpenPositions() {
		if p.Status != ledger.StatusPending {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		var ord broker.Order
		var err error
		if p.EntryOrderID != "" {
			ord, err = o.broker.GetOrderStatus(ctx, p.EntryOrderID)
		} else {
			ord, err = o.broker.FindOrderByClientID(ctx, p.ClientOrderID)
		}
		if errors.Is(err, broker.ErrOrderNotFound) {
			log.Warn().Str("symbol", p.Symbol).Msg("pending entry unknown to the brokerage, releasing slot")
			if err := o.cancelPending(p, "order not found", now); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			o.metrics.RecordBrokerError("order_status")
			log.Warn().Err(err).Str("symbol", p.Symbol).Msg("entry order lookup failed")
			continue
		}
		switch {
		case ord.Status.Filled():
			if err := o.markEntryFilled(p.Symbol, ord, now); err != nil {
				return err
			}
		case ord.Status.Terminal():
			log.Info().
				Str("symbol", p.Symbol).
				Str("status", string(ord.Status)).
				Msg("entry order died unfilled, releasing slot")
			if err := o.cancelPending(p, string(ord.Status), now); err != nil {
				return err
			}
		default:
			if p.EntryOrderID == "" {
				o.ledger.SetEntryOrder(p.Symbol, ord.ID)
				if err := o.checkpoint(); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// cancelPending releases the slot of an entry that will never fill.
func (o *Orchestrator) cancelPending(p ledger.Position, reason string, now time.Time) error {
	if _, err := o.ledger.DropPosition(p.Symbol); err != nil {
		return nil
	}
	o.ledger.RecordEvent(ledger.TradeEvent{
		At:        now,
		Action:    ledger.EventEntryCanceled,
		Symbol:    p.Symbol,
		Direction: p.Direction,
		Qty:       p.Qty,
		Price:     p.LimitPrice,
		Reason:    reason,
	})
	return o.checkpoint()
}

// markEntryFilled promotes a pending entry to an open position at the
// actual fill price.
func (o *Orchestrator) markEntryFilled(symbol string, ord broker.Order, now time.Time) error {
	fill := ord.FilledAvgPrice
	if fill <= 0 {
		fill = ord.LimitPrice
	}
	at := ord.FilledAt
	if at.IsZero() {
		at = now
	}
	if err := o.ledger.MarkOpen(symbol, fill, at); err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("cannot mark entry filled")
		return nil
	}
	if ord.ID != "" {
		o.ledger.SetEntryOrder(symbol, ord.ID)
	}
	p, _ := o.ledger.Position(symbol)
	o.ledger.RecordEvent(ledger.TradeEvent{
		At:        at,
		Action:    ledger.EventEntryFilled,
		Symbol:    symbol,
		Direction: p.Direction,
		Qty:       p.Qty,
		Price:     p.EntryPrice,
	})
	o.metrics.RecordEntry(string(p.Direction), p.TriggerWindow)
	log.Info().
		Str("symbol", symbol).
		Str("direction", string(p.Direction)).
		Int64("qty", p.Qty).
		Float64("fill", p.EntryPrice).
		Float64("hard_stop", p.HardStop).
		Float64("profit_ceiling", p.ProfitCeiling).
		Msg("entry filled")
	return o.checkpoint()
}

// resolveClosing polls exit orders to confirmation. A closing position
// whose order died unfilled is rearmed with a fresh client id so the
// next cycle can submit again.
func (o *Orchestrator) resolveClosing(ctx context.Context, now time.Time) error {
	for _, p := range o.ledger.OpenPositions() {
		if p.Status != ledger.StatusClosing {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		var ord broker.Order
		var err error
		if p.ExitOrderID != "" {
			ord, err = o.broker.GetOrderStatus(ctx, p.ExitOrderID)
		} else {
			ord, err = o.broker.FindOrderByClientID(ctx, p.ExitClientOrderID)
		}
		if errors.Is(err, broker.ErrOrderNotFound) {
			// Nothing on the book under this id, the submit never
			// landed. The next cycle resubmits.
			continue
		}
		if err != nil {
			o.metrics.RecordBrokerError("order_status")
			log.Warn().Err(err).Str("symbol", p.Symbol).Msg("exit order lookup failed")
			continue
		}
		if p.ExitOrderID == "" {
			o.ledger.SetExitOrder(p.Symbol, ord.ID)
			if err := o.checkpoint(); err != nil {
				return err
			}
		}
		if err := o.handleExitOrder(ctx, p.Symbol, ord, now); err != nil {
			return err
		}
	}
	return nil
}

// handleExitOrder advances one closing position given its exit order's
// current state.
func (o *Orchestrator) handleExitOrder(ctx context.Context, symbol string, ord broker.Order, now time.Time) error {
	switch {
	case ord.Status.Filled():
		return o.confirmExit(ctx, symbol, ord, now)
	case ord.Status.Terminal():
		p, ok := o.ledger.Position(symbol)
		if !ok {
			return nil
		}
		// The dead order consumed its client id; rearm with a fresh one
		// so the retry is distinguishable on the brokerage side.
		log.Warn().
			Str("symbol", symbol).
			Str("status", string(ord.Status)).
			Str("reason", p.ExitReason).
			Msg("exit order died unfilled, rearming")
		o.ledger.MarkClosing(symbol, exitClientID(), p.ExitReason, p.ExitSpreadPct)
		return o.checkpoint()
	default:
		return nil
	}
}

// confirmExit retires a filled exit: the slot frees, the round trip is
// journaled and mirrored to the archive when one is wired.
func (o *Orchestrator) confirmExit(ctx context.Context, symbol string, ord broker.Order, now time.Time) error {
	p, ok := o.ledger.Position(symbol)
	if !ok {
		return nil
	}
	exitPrice := ord.FilledAvgPrice
	if exitPrice <= 0 {
		exitPrice = ord.LimitPrice
	}
	if exitPrice <= 0 {
		exitPrice = p.EntryPrice
	}
	at := ord.FilledAt
	if at.IsZero() {
		at = now
	}
	final, err := o.ledger.ClosePosition(symbol, exitPrice, at)
	if err != nil {
		return nil
	}
	m := signal.ComputeTradeMetrics(signal.MetricsInputs{
		Symbol:          final.Symbol,
		Direction:       final.Direction,
		Qty:             final.Qty,
		AnchorClose:     final.AnchorClose,
		EntryPrice:      final.EntryPrice,
		ExitPrice:       final.ExitPrice,
		EntrySpreadPct:  final.EntrySpreadPct,
		ExitSpreadPct:   final.ExitSpreadPct,
		MaxFavorablePct: final.MaxFavorablePct,
		MaxAdversePct:   final.MaxAdversePct,
		TriggerWindow:   final.TriggerWindow,
		ExitReason:      final.ExitReason,
		EnteredAt:       final.EnteredAt,
		ClosedAt:        at,
	}, o.params)
	o.ledger.RecordClosedTrade(m)
	o.ledger.RecordEvent(ledger.TradeEvent{
		At:        at,
		Action:    ledger.EventExitFilled,
		Symbol:    symbol,
		Direction: final.Direction,
		Qty:       final.Qty,
		Price:     exitPrice,
		Reason:    final.ExitReason,
	})
	o.metrics.RecordExit(final.ExitReason)
	if err := o.store.AppendTradeMetrics(m); err != nil {
		log.Error().Err(err).Str("symbol", symbol).Msg("trade journal write failed")
	}
	if o.archive != nil {
		if err := o.archive.InsertTrade(ctx, o.ledger.SessionDate(), m); err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("trade archive insert failed")
		}
	}
	delete(o.escalated, symbol)
	log.Info().
		Str("symbol", symbol).
		Str("reason", final.ExitReason).
		Float64("exit", exitPrice).
		Float64("net_pnl_pct", m.NetPnLPct).
		Float64("net_pnl_usd", m.NetPnLDollars).
		Msg("position closed")
	return o.checkpoint()
}

// reconcilePositions repairs ledger/brokerage drift in both directions.
// The brokerage is ground truth: positions it reports that the ledger
// does not track are adopted, tracked positions it no longer holds are
// dropped.
func (o *Orchestrator) reconcilePositions(ctx context.Context, now time.Time) error {
	live, err := o.broker.GetOpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("session: list brokerage positions: %w", err)
	}
	liveBySymbol := make(map[string]broker.Position, len(live))
	for _, bp := range live {
		liveBySymbol[bp.Symbol] = bp
	}

	for _, bp := range live {
		if o.ledger.HasPosition(bp.Symbol) {
			continue
		}
		if !o.watchSet[bp.Symbol] {
			// Off-watchlist holdings belong to someone else's book.
			log.Debug().Str("symbol", bp.Symbol).Msg("ignoring off-watchlist brokerage position")
			continue
		}
		if err := o.adoptPosition(bp, now); err != nil {
			return err
		}
	}

	for _, p := range o.ledger.OpenPositions() {
		if _, ok := liveBySymbol[p.Symbol]; ok {
			continue
		}
		switch p.Status {
		case ledger.StatusPending:
			// The entry may simply not have filled yet.
			continue
		case ledger.StatusClosing:
			if p.ExitOrderID != "" {
				// Likely filled moments ago; the order poll confirms it.
				continue
			}
		}
		log.Warn().
			Str("symbol", p.Symbol).
			Str("status", string(p.Status)).
			Msg("tracked position missing at the brokerage, dropping")
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
	}
	return nil
}

// adoptPosition brings a brokerage position the ledger does not know
// under management, with protective levels derived from its entry.
func (o *Orchestrator) adoptPosition(bp broker.Position, now time.Time) error {
	direction := signal.DirectionLong
	if bp.Side == "short" {
		direction = signal.DirectionShort
	}
	qty := int64(bp.Qty)
	if qty <= 0 {
		return nil
	}
	levels := signal.ProtectiveLevels(bp.AvgEntryPrice, direction, o.params)
	anchor, _ := o.ledger.Anchor(bp.Symbol)
	pos := ledger.Position{
		Symbol:        bp.Symbol,
		Direction:     direction,
		Qty:           qty,
		Status:        ledger.StatusOpen,
		AnchorClose:   anchor,
		LimitPrice:    bp.AvgEntryPrice,
		EntryPrice:    bp.AvgEntryPrice,
		HardStop:      levels.HardStop,
		ProfitCeiling: levels.ProfitCeiling,
		ClientOrderID: entryClientID(),
		TriggerWindow: o.sched.TriggerWindow(now),
		SubmittedAt:   now,
		EnteredAt:     now,
	}
	if err := o.ledger.OpenPosition(pos); err != nil {
		return nil
	}
	o.ledger.RecordEvent(ledger.TradeEvent{
		At:        now,
		Action:    ledger.EventLedgerRepaired,
		Symbol:    bp.Symbol,
		Direction: direction,
		Qty:       qty,
		Price:     bp.AvgEntryPrice,
		Reason:    "adopted from brokerage",
	})
	log.Warn().
		Str("symbol", bp.Symbol).
		Str("direction", string(direction)).
		Int64("qty", qty).
		Float64("entry", bp.AvgEntryPrice).
		Msg("adopted brokerage position unknown to the ledger")
	return o.checkpoint()
}

// checkpoint writes the full session state durably. Submission paths
// call it before and after the brokerage call; a persistent write
// failure is fatal because continuing would risk duplicate orders on
// the next restart.
func (o *Orchestrator) checkpoint() error {
	snap := o.ledger.Snapshot()
	attempts := o.cfg.Data.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = o.store.Checkpoint(snap); err == nil {
			o.ledger.BumpCheckpoint(o.now())
			o.metrics.RecordCheckpoint()
			return nil
		}
		time.Sleep(o.cfg.RetryBackoff())
	}
	return fmt.Errorf("session: checkpoint: %w", err)
}

// transition moves the session to a new phase and checkpoints it.
func (o *Orchestrator) transition(phase ledger.Phase, now time.Time) error {
	from := o.ledger.Phase()
	if from == phase {
		return nil
	}
	o.ledger.SetPhase(phase, now)
	o.metrics.RecordPhaseTransition(string(from), string(phase))
	log.Info().Str("from", string(from)).Str("to", string(phase)).Msg("phase transition")
	return o.checkpoint()
}

// withRetry runs fn with bounded exponential backoff. Cancellation cuts
// the wait short.
func (o *Orchestrator) withRetry(ctx context.Context, op string, fn func() error) error {
	attempts := o.cfg.Data.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := o.cfg.RetryBackoff()
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Msg("transient failure, backing off")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}

// sleepUntil blocks until target or cancellation. The session only
// sleeps between cycles, never mid-update.
func (o *Orchestrator) sleepUntil(ctx context.Context, target time.Time) error {
	d := target.Sub(o.now())
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// sessionDay is midnight of the session's trading date in exchange
// time, the base for every absolute schedule instant.
func (o *Orchestrator) sessionDay() time.Time {
	day, err := time.ParseInLocation(sessionDateLayout, o.ledger.SessionDate(), o.sched.Location())
	if err != nil {
		return o.now().In(o.sched.Location())
	}
	return day
}

func (o *Orchestrator) publishGauges() {
	o.metrics.OpenPositions.Set(float64(o.ledger.OpenCount()))
	o.metrics.WatchedSymbols.Set(float64(o.ledger.AnchorCount()))
	equity, _ := o.ledger.Account()
	o.metrics.AccountEquity.Set(equity)
	var net float64
	for _, m := range o.ledger.ClosedTrades() {
		net += m.NetPnLDollars
	}
	o.metrics.SessionNetPnL.Set(net)
}

// observeCycle records one poll cycle's duration against its phase.
func (o *Orchestrator) observeCycle(phase string, started time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	o.metrics.CycleDuration.WithLabelValues(phase, result).Observe(time.Since(started).Seconds())
}
