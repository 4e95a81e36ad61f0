package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeworks/nightfade/internal/alert"
	"github.com/tradeworks/nightfade/internal/broker"
	"github.com/tradeworks/nightfade/internal/config"
	"github.com/tradeworks/nightfade/internal/ledger"
	"github.com/tradeworks/nightfade/internal/market"
	"github.com/tradeworks/nightfade/internal/signal"
	"github.com/tradeworks/nightfade/internal/store"
)

var testWatch = []string{"AAPL", "AMD", "NVDA", "TSLA"}

// fakeStore keeps checkpoints in memory. Each Checkpoint call receives
// a fresh snapshot from the ledger, so stored states are immutable.
type fakeStore struct {
	mu       sync.Mutex
	sessions map[string]*ledger.SessionState
	writes   int
	journal  []signal.TradeMetrics
	perfFor  []string
	archived []*ledger.SessionState
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: make(map[string]*ledger.SessionState)}
}

func (f *fakeStore) LoadSession(date string) (*ledger.SessionState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[date], nil
}

func (f *fakeStore) Checkpoint(state *ledger.SessionState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	f.sessions[state.SessionDate] = state
	return nil
}

func (f *fakeStore) AppendTradeMetrics(m signal.TradeMetrics) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.journal = append(f.journal, m)
	return nil
}

func (f *fakeStore) UpdatePerformance(sessionDate string, trades []signal.TradeMetrics) (store.Performance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.perfFor = append(f.perfFor, sessionDate)
	return store.Performance{TotalSessions: 1, TotalTrades: len(trades)}, nil
}

func (f *fakeStore) LoadPerformance() (store.Performance, error) {
	return store.Performance{}, nil
}

func (f *fakeStore) ArchiveSession(state *ledger.SessionState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.archived = append(f.archived, state)
	delete(f.sessions, state.SessionDate)
	return nil
}

// checkpointed returns a position as of the latest checkpoint for date.
func (f *fakeStore) checkpointed(date, symbol string) (ledger.Position, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.sessions[date]
	if !ok {
		return ledger.Position{}, false
	}
	p, ok := state.Positions[symbol]
	if !ok {
		return ledger.Position{}, false
	}
	return *p, true
}

// fakeBroker scripts the brokerage: submitted orders land in lookup
// maps so reconciliation paths behave like the real API.
type fakeBroker struct {
	mu        sync.Mutex
	account   broker.Account
	positions []broker.Position
	orders    map[string]broker.Order
	byClient  map[string]broker.Order
	working   []broker.Order

	submits []broker.OrderRequest
	cancels []string
	closes  []string

	fillOnSubmit bool
	submitErr    error
	closeErr     error
	closeFill    map[string]float64
	onSubmit     func(req broker.OrderRequest)

	seq int
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		account:   broker.Account{Equity: 50000, Cash: 30000},
		orders:    make(map[string]broker.Order),
		byClient:  make(map[string]broker.Order),
		closeFill: make(map[string]float64),
	}
}

func (f *fakeBroker) GetAccount(ctx context.Context) (broker.Account, error) {
	return f.account, nil
}

func (f *fakeBroker) GetOpenPositions(ctx context.Context) ([]broker.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]broker.Position, len(f.positions))
	copy(out, f.positions)
	return out, nil
}

func (f *fakeBroker) GetOrderStatus(ctx context.Context, id string) (broker.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ord, ok := f.orders[id]
	if !ok {
		return broker.Order{}, fmt.Errorf("fake: order %s: %w", id, broker.ErrOrderNotFound)
	}
	return ord, nil
}

func (f *fakeBroker) FindOrderByClientID(ctx context.Context, clientOrderID string) (broker.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ord, ok := f.byClient[clientOrderID]
	if !ok {
		return broker.Order{}, fmt.Errorf("fake: client order %s: %w", clientOrderID, broker.ErrOrderNotFound)
	}
	return ord, nil
}

func (f *fakeBroker) SubmitExtendedHoursLimitOrder(ctx context.Context, req broker.OrderRequest) (broker.Order, error) {
	if f.onSubmit != nil {
		f.onSubmit(req)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits = append(f.submits, req)
	if f.submitErr != nil {
		return broker.Order{}, f.submitErr
	}
	f.seq++
	ord := broker.Order{
		ID:            fmt.Sprintf("ord-%d", f.seq),
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Qty:           float64(req.Qty),
		LimitPrice:    req.LimitPrice,
		Status:        broker.OrderAccepted,
	}
	if f.fillOnSubmit {
		ord.Status = broker.OrderFilled
		ord.FilledQty = ord.Qty
		ord.FilledAvgPrice = req.LimitPrice
	}
	f.orders[ord.ID] = ord
	f.byClient[ord.ClientOrderID] = ord
	return ord, nil
}

func (f *fakeBroker) ClosePosition(ctx context.Context, symbol string) (broker.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes = append(f.closes, symbol)
	if f.closeErr != nil {
		return broker.Order{}, f.closeErr
	}
	var bp broker.Position
	found := false
	rest := f.positions[:0]
	for _, p := range f.positions {
		if p.Symbol == symbol && !found {
			bp = p
			found = true
			continue
		}
		rest = append(rest, p)
	}
	f.positions = rest
	if !found {
		return broker.Order{}, fmt.Errorf("fake: no position %s", symbol)
	}
	fill := f.closeFill[symbol]
	if fill <= 0 {
		fill = bp.AvgEntryPrice
	}
	side := broker.SideSell
	if bp.Side == "short" {
		side = broker.SideBuy
	}
	f.seq++
	ord := broker.Order{
		ID:             fmt.Sprintf("ord-%d", f.seq),
		ClientOrderID:  fmt.Sprintf("close-%d", f.seq),
		Symbol:         symbol,
		Side:           side,
		Qty:            bp.Qty,
		Status:         broker.OrderFilled,
		FilledQty:      bp.Qty,
		FilledAvgPrice: fill,
	}
	f.orders[ord.ID] = ord
	f.byClient[ord.ClientOrderID] = ord
	return ord, nil
}

func (f *fakeBroker) CancelOrder(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, id)
	if ord, ok := f.orders[id]; ok {
		ord.Status = broker.OrderCanceled
		f.orders[id] = ord
		f.byClient[ord.ClientOrderID] = ord
	}
	return nil
}

func (f *fakeBroker) ListOpenOrders(ctx context.Context) ([]broker.Order, error) {
	return f.working, nil
}

func (f *fakeBroker) GetClock(ctx context.Context) (broker.Clock, error) {
	return broker.Clock{}, nil
}

func (f *fakeBroker) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submits)
}

// fakeData serves fixed quote maps.
type fakeData struct {
	quotes map[string]market.Quote
	closes map[string]float64
}

func newFakeData() *fakeData {
	return &fakeData{quotes: make(map[string]market.Quote), closes: make(map[string]float64)}
}

func (f *fakeData) LatestQuotes(ctx context.Context, symbols []string) (map[string]market.Quote, error) {
	return f.quotes, nil
}

func (f *fakeData) Snapshots(ctx context.Context, symbols []string) (map[string]market.Quote, error) {
	return f.quotes, nil
}

func (f *fakeData) OfficialCloses(ctx context.Context, symbols []string, date string) (map[string]float64, error) {
	return f.closes, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	alerts []alert.Alert
}

func (f *fakeNotifier) Notify(ctx context.Context, a alert.Alert) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, a)
}

func (f *fakeNotifier) Close() error { return nil }

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.alerts)
}

func newTestOrchestrator(t *testing.T, st *fakeStore, br *fakeBroker, data *fakeData, now func() time.Time) (*Orchestrator, *fakeNotifier) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Data.RetryAttempts = 1
	cfg.Data.RetryBackoffMs = 1
	notif := &fakeNotifier{}
	o, err := New(Deps{
		Config:    cfg,
		Watchlist: testWatch,
		Store:     st,
		Broker:    br,
		Data:      data,
		Notifier:  notif,
		Now:       now,
	})
	require.NoError(t, err)
	return o, notif
}

func fixed(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

// seedState builds a stored session the way a crashed process would
// have left it.
func seedState(t *testing.T, date string, phase ledger.Phase, at time.Time, build func(l *ledger.Ledger)) *ledger.SessionState {
	t.Helper()
	l := ledger.New(date, at)
	l.SeedWatchlist(testWatch)
	l.SetAccount(50000, 30000)
	if build != nil {
		build(l)
	}
	l.SetPhase(phase, at)
	return l.Snapshot()
}

func TestBootStartsFreshSession(t *testing.T) {
	st := newFakeStore()
	br := newFakeBroker()
	o, _ := newTestOrchestrator(t, st, br, newFakeData(), fixed(nyc(t, "2025-03-10 15:30:00")))

	require.NoError(t, o.boot(context.Background(), o.now()))

	assert.Equal(t, "2025-03-10", o.ledger.SessionDate())
	assert.Equal(t, ledger.PhaseBoot, o.ledger.Phase())
	equity, cash := o.ledger.Account()
	assert.Equal(t, 50000.0, equity)
	assert.Equal(t, 30000.0, cash)
	assert.Greater(t, st.writes, 0, "fresh session must be checkpointed")
}

func TestBootAdoptsUnfinishedPreviousSession(t *testing.T) {
	st := newFakeStore()
	seeded := nyc(t, "2025-03-10 17:00:00")
	st.sessions["2025-03-10"] = seedState(t, "2025-03-10", ledger.PhaseManage, seeded, nil)

	// Tuesday afternoon: the morning close-out never ran, so the live
	// session still belongs to Monday.
	o, _ := newTestOrchestrator(t, st, newFakeBroker(), newFakeData(), fixed(nyc(t, "2025-03-11 15:00:00")))
	require.NoError(t, o.boot(context.Background(), o.now()))

	assert.Equal(t, "2025-03-10", o.ledger.SessionDate())
	assert.Equal(t, ledger.PhaseManage, o.ledger.Phase())
}

func TestBootResolvesPendingEntryFill(t *testing.T) {
	st := newFakeStore()
	seeded := nyc(t, "2025-03-10 17:20:00")
	st.sessions["2025-03-10"] = seedState(t, "2025-03-10", ledger.PhaseMonitor, seeded, func(l *ledger.Ledger) {
		l.SetAnchor("AAPL", 100)
		require.NoError(t, l.OpenPosition(ledger.Position{
			Symbol:        "AAPL",
			Direction:     signal.DirectionLong,
			Qty:           10,
			Status:        ledger.StatusPending,
			AnchorClose:   100,
			LimitPrice:    92.8,
			ClientOrderID: "nf-crash",
			TriggerWindow: WindowPost4PM,
			SubmittedAt:   seeded,
		}))
		l.SetEntryOrder("AAPL", "ord-crash")
	})
	br := newFakeBroker()
	br.orders["ord-crash"] = broker.Order{
		ID:             "ord-crash",
		ClientOrderID:  "nf-crash",
		Symbol:         "AAPL",
		Status:         broker.OrderFilled,
		FilledAvgPrice: 92.5,
		FilledAt:       seeded.Add(time.Minute),
	}
	br.positions = []broker.Position{{Symbol: "AAPL", Qty: 10, Side: "long", AvgEntryPrice: 92.5}}

	o, _ := newTestOrchestrator(t, st, br, newFakeData(), fixed(nyc(t, "2025-03-10 18:00:00")))
	require.NoError(t, o.boot(context.Background(), o.now()))

	p, ok := o.ledger.Position("AAPL")
	require.True(t, ok)
	assert.Equal(t, ledger.StatusOpen, p.Status)
	assert.Equal(t, 92.5, p.EntryPrice)
	assert.Equal(t, 0, br.submitCount(), "resume must not resubmit the entry")
}

func TestBootReleasesUnknownPendingEntry(t *testing.T) {
	st := newFakeStore()
	seeded := nyc(t, "2025-03-10 17:20:00")
	st.sessions["2025-03-10"] = seedState(t, "2025-03-10", ledger.PhaseMonitor, seeded, func(l *ledger.Ledger) {
		l.SetAnchor("AAPL", 100)
		require.NoError(t, l.OpenPosition(ledger.Position{
			Symbol:        "AAPL",
			Direction:     signal.DirectionLong,
			Qty:           10,
			Status:        ledger.StatusPending,
			LimitPrice:    92.8,
			ClientOrderID: "nf-lost",
			SubmittedAt:   seeded,
		}))
	})

	// The brokerage has no record under the client id: the submit never
	// landed, so the slot frees.
	o, _ := newTestOrchestrator(t, st, newFakeBroker(), newFakeData(), fixed(nyc(t, "2025-03-10 18:00:00")))
	require.NoError(t, o.boot(context.Background(), o.now()))

	assert.False(t, o.ledger.HasPosition("AAPL"))
	snap := o.ledger.Snapshot()
	require.NotEmpty(t, snap.History)
	assert.Equal(t, ledger.EventEntryCanceled, snap.History[len(snap.History)-1].Action)
}

func TestMonitorCycleSubmitsQualifiedFade(t *testing.T) {
	st := newFakeStore()
	br := newFakeBroker()
	br.fillOnSubmit = true
	data := newFakeData()
	data.quotes["AAPL"] = market.Quote{Symbol: "AAPL", Price: 108, HasSpread: true, SpreadPct: 0.002}
	data.quotes["NVDA"] = market.Quote{Symbol: "NVDA", Price: 101}

	now := nyc(t, "2025-03-10 17:00:00")
	o, _ := newTestOrchestrator(t, st, br, data, fixed(now))
	require.NoError(t, o.boot(context.Background(), now))
	o.ledger.SetAnchor("AAPL", 100)
	o.ledger.SetAnchor("NVDA", 100)

	// The pending position and its client id must be durable before the
	// order goes out, or a crash in between could double-submit.
	var durableBeforeSubmit bool
	br.onSubmit = func(req broker.OrderRequest) {
		if p, ok := st.checkpointed("2025-03-10", req.Symbol); ok {
			durableBeforeSubmit = p.Status == ledger.StatusPending && p.ClientOrderID == req.ClientOrderID
		}
	}

	require.NoError(t, o.monitorCycle(context.Background(), now))

	require.Equal(t, 1, br.submitCount())
	req := br.submits[0]
	assert.Equal(t, "AAPL", req.Symbol)
	assert.Equal(t, broker.SideSell, req.Side, "an up move fades short")
	assert.Equal(t, 108.0, req.LimitPrice)
	assert.True(t, strings.HasPrefix(req.ClientOrderID, "nf-"))
	assert.True(t, durableBeforeSubmit, "checkpoint must precede the submit")

	p, ok := o.ledger.Position("AAPL")
	require.True(t, ok)
	assert.Equal(t, ledger.StatusOpen, p.Status)
	assert.Equal(t, signal.DirectionShort, p.Direction)
	assert.Equal(t, WindowPost4PM, p.TriggerWindow)
	assert.Greater(t, p.Qty, int64(0))
}

func TestMonitorCycleCapsConcurrentEntries(t *testing.T) {
	st := newFakeStore()
	br := newFakeBroker()
	br.fillOnSubmit = true
	data := newFakeData()
	data.quotes["TSLA"] = market.Quote{Symbol: "TSLA", Price: 108}
	data.quotes["AMD"] = market.Quote{Symbol: "AMD", Price: 92}

	now := nyc(t, "2025-03-10 17:30:00")
	o, _ := newTestOrchestrator(t, st, br, data, fixed(now))
	require.NoError(t, o.boot(context.Background(), now))
	for _, sym := range testWatch {
		o.ledger.SetAnchor(sym, 100)
	}
	for _, sym := range []string{"AAPL", "NVDA"} {
		require.NoError(t, o.ledger.OpenPosition(ledger.Position{
			Symbol: sym, Direction: signal.DirectionLong, Qty: 5,
			Status: ledger.StatusPending, LimitPrice: 100,
			ClientOrderID: "nf-" + sym, SubmittedAt: now,
		}))
		require.NoError(t, o.ledger.MarkOpen(sym, 100, now))
		br.positions = append(br.positions, broker.Position{Symbol: sym, Qty: 5, Side: "long", AvgEntryPrice: 100})
		br.orders["ord-"+sym] = broker.Order{ID: "ord-" + sym, Status: broker.OrderFilled, FilledAvgPrice: 100}
		o.ledger.SetEntryOrder(sym, "ord-"+sym)
	}

	// Two fresh candidates, one free slot: only the first submits.
	require.NoError(t, o.monitorCycle(context.Background(), now))

	assert.Equal(t, 1, br.submitCount())
	assert.Equal(t, 3, o.ledger.OpenCount())
}

func TestManageCycleHardStopExit(t *testing.T) {
	st := newFakeStore()
	br := newFakeBroker()
	br.fillOnSubmit = true
	data := newFakeData()
	data.quotes["AAPL"] = market.Quote{Symbol: "AAPL", Price: 94.5, HasSpread: true, SpreadPct: 0.001}

	now := nyc(t, "2025-03-10 21:00:00")
	o, _ := newTestOrchestrator(t, st, br, data, fixed(now))
	require.NoError(t, o.boot(context.Background(), now))
	o.ledger.SetAnchor("AAPL", 108)
	require.NoError(t, o.ledger.OpenPosition(ledger.Position{
		Symbol: "AAPL", Direction: signal.DirectionLong, Qty: 10,
		Status: ledger.StatusPending, AnchorClose: 108, LimitPrice: 100,
		ClientOrderID: "nf-e1", TriggerWindow: WindowPost4PM, SubmittedAt: now,
	}))
	require.NoError(t, o.ledger.MarkOpen("AAPL", 100, now))
	br.positions = []broker.Position{{Symbol: "AAPL", Qty: 10, Side: "long", AvgEntryPrice: 100}}

	require.NoError(t, o.manageCycle(context.Background(), now))

	assert.Equal(t, 0, o.ledger.OpenCount())
	require.Equal(t, 1, br.submitCount())
	req := br.submits[0]
	assert.Equal(t, broker.SideSell, req.Side)
	assert.True(t, strings.HasPrefix(req.ClientOrderID, "nf-x-"))

	trades := o.ledger.ClosedTrades()
	require.Len(t, trades, 1)
	assert.Equal(t, signal.ExitHardStop.String(), trades[0].ExitReason)
	assert.Equal(t, 94.5, trades[0].ExitPrice)
	require.Len(t, st.journal, 1)
}

func TestManageCycleHoldsProfitOnWideSpread(t *testing.T) {
	st := newFakeStore()
	br := newFakeBroker()
	data := newFakeData()
	data.quotes["AAPL"] = market.Quote{Symbol: "AAPL", Price: 102.6, HasSpread: true, SpreadPct: 0.01}

	now := nyc(t, "2025-03-10 21:00:00")
	o, _ := newTestOrchestrator(t, st, br, data, fixed(now))
	require.NoError(t, o.boot(context.Background(), now))
	o.ledger.SetAnchor("AAPL", 93)
	require.NoError(t, o.ledger.OpenPosition(ledger.Position{
		Symbol: "AAPL", Direction: signal.DirectionLong, Qty: 10,
		Status: ledger.StatusPending, LimitPrice: 100,
		ClientOrderID: "nf-e1", SubmittedAt: now,
	}))
	require.NoError(t, o.ledger.MarkOpen("AAPL", 100, now))
	br.positions = []broker.Position{{Symbol: "AAPL", Qty: 10, Side: "long", AvgEntryPrice: 100}}

	require.NoError(t, o.manageCycle(context.Background(), now))

	// Profit printed but not realizable; the position holds for the open.
	assert.Equal(t, 0, br.submitCount())
	p, ok := o.ledger.Position("AAPL")
	require.True(t, ok)
	assert.Equal(t, ledger.StatusOpen, p.Status)
	assert.InDelta(t, 0.026, p.MaxFavorablePct, 1e-9)
}

func TestManageCycleResubmitsStrandedClosing(t *testing.T) {
	st := newFakeStore()
	br := newFakeBroker()
	br.fillOnSubmit = true
	data := newFakeData()
	data.quotes["AAPL"] = market.Quote{Symbol: "AAPL", Price: 94.2}

	now := nyc(t, "2025-03-10 22:00:00")
	o, _ := newTestOrchestrator(t, st, br, data, fixed(now))
	require.NoError(t, o.boot(context.Background(), now))
	o.ledger.SetAnchor("AAPL", 108)
	require.NoError(t, o.ledger.OpenPosition(ledger.Position{
		Symbol: "AAPL", Direction: signal.DirectionLong, Qty: 10,
		Status: ledger.StatusPending, LimitPrice: 100,
		ClientOrderID: "nf-e1", SubmittedAt: now,
	}))
	require.NoError(t, o.ledger.MarkOpen("AAPL", 100, now))
	require.NoError(t, o.ledger.MarkClosing("AAPL", "nf-x-stranded", signal.ExitHardStop.String(), 0.001))
	br.positions = []broker.Position{{Symbol: "AAPL", Qty: 10, Side: "long", AvgEntryPrice: 100}}

	require.NoError(t, o.manageCycle(context.Background(), now))

	// The stored client id is reused so the brokerage can dedupe.
	require.Equal(t, 1, br.submitCount())
	assert.Equal(t, "nf-x-stranded", br.submits[0].ClientOrderID)
	assert.Equal(t, 0, o.ledger.OpenCount())
}

func TestResolveClosingRearmsDeadExitOrder(t *testing.T) {
	st := newFakeStore()
	br := newFakeBroker()

	now := nyc(t, "2025-03-10 22:00:00")
	o, _ := newTestOrchestrator(t, st, br, newFakeData(), fixed(now))
	require.NoError(t, o.boot(context.Background(), now))
	require.NoError(t, o.ledger.OpenPosition(ledger.Position{
		Symbol: "AAPL", Direction: signal.DirectionLong, Qty: 10,
		Status: ledger.StatusPending, LimitPrice: 100,
		ClientOrderID: "nf-e1", SubmittedAt: now,
	}))
	require.NoError(t, o.ledger.MarkOpen("AAPL", 100, now))
	require.NoError(t, o.ledger.MarkClosing("AAPL", "nf-x-dead", signal.ExitHardStop.String(), 0))
	o.ledger.SetExitOrder("AAPL", "ord-dead")
	br.orders["ord-dead"] = broker.Order{ID: "ord-dead", ClientOrderID: "nf-x-dead", Status: broker.OrderCanceled}

	require.NoError(t, o.resolveClosing(context.Background(), now))

	p, ok := o.ledger.Position("AAPL")
	require.True(t, ok)
	assert.Equal(t, ledger.StatusClosing, p.Status)
	assert.Empty(t, p.ExitOrderID)
	assert.NotEqual(t, "nf-x-dead", p.ExitClientOrderID, "a dead order's client id is spent")
	assert.Equal(t, signal.ExitHardStop.String(), p.ExitReason)
}

func TestReconcileAdoptsAndDrops(t *testing.T) {
	st := newFakeStore()
	br := newFakeBroker()
	br.positions = []broker.Position{
		{Symbol: "NVDA", Qty: 15, Side: "long", AvgEntryPrice: 210},
		{Symbol: "XYZ", Qty: 99, Side: "long", AvgEntryPrice: 10},
	}

	now := nyc(t, "2025-03-10 19:00:00")
	o, _ := newTestOrchestrator(t, st, br, newFakeData(), fixed(now))
	require.NoError(t, o.boot(context.Background(), now))
	require.NoError(t, o.ledger.OpenPosition(ledger.Position{
		Symbol: "AAPL", Direction: signal.DirectionLong, Qty: 10,
		Status: ledger.StatusPending, LimitPrice: 100,
		ClientOrderID: "nf-e1", SubmittedAt: now,
	}))
	require.NoError(t, o.ledger.MarkOpen("AAPL", 100, now))

	require.NoError(t, o.reconcilePositions(context.Background(), now))

	// Tracked but flat at the brokerage: dropped.
	assert.False(t, o.ledger.HasPosition("AAPL"))
	// Held at the brokerage but untracked and on the watchlist: adopted.
	p, ok := o.ledger.Position("NVDA")
	require.True(t, ok)
	assert.Equal(t, ledger.StatusOpen, p.Status)
	assert.Equal(t, int64(15), p.Qty)
	assert.Equal(t, 210.0, p.EntryPrice)
	assert.Greater(t, p.HardStop, 210.0*0.9)
	// Off-watchlist holdings are not ours to manage.
	assert.False(t, o.ledger.HasPosition("XYZ"))
}

func TestExitSweepForcedCloseAndRelease(t *testing.T) {
	st := newFakeStore()
	br := newFakeBroker()
	br.closeFill["AAPL"] = 101.2
	br.positions = []broker.Position{{Symbol: "AAPL", Qty: 10, Side: "long", AvgEntryPrice: 100}}
	br.orders["ord-tsla"] = broker.Order{ID: "ord-tsla", ClientOrderID: "nf-tsla", Status: broker.OrderAccepted}
	br.byClient["nf-tsla"] = br.orders["ord-tsla"]

	now := nyc(t, "2025-03-11 09:31:00")
	o, _ := newTestOrchestrator(t, st, br, newFakeData(), fixed(now))
	entered := nyc(t, "2025-03-10 17:00:00")
	st.sessions["2025-03-10"] = seedState(t, "2025-03-10", ledger.PhaseExit, entered, func(l *ledger.Ledger) {
		l.SetAnchor("AAPL", 108)
		require.NoError(t, l.OpenPosition(ledger.Position{
			Symbol: "AAPL", Direction: signal.DirectionLong, Qty: 10,
			Status: ledger.StatusPending, AnchorClose: 108, LimitPrice: 100,
			ClientOrderID: "nf-aapl", TriggerWindow: WindowPost4PM, SubmittedAt: entered,
		}))
		require.NoError(t, l.MarkOpen("AAPL", 100, entered))
		require.NoError(t, l.OpenPosition(ledger.Position{
			Symbol: "TSLA", Direction: signal.DirectionShort, Qty: 5,
			Status: ledger.StatusPending, LimitPrice: 300,
			ClientOrderID: "nf-tsla", SubmittedAt: entered,
		}))
		l.SetEntryOrder("TSLA", "ord-tsla")
	})
	require.NoError(t, o.boot(context.Background(), o.now()))

	require.NoError(t, o.exitSweep(context.Background(), o.now()))

	assert.Equal(t, 0, o.ledger.OpenCount())
	assert.Contains(t, br.closes, "AAPL")
	assert.Contains(t, br.cancels, "ord-tsla", "the unfilled entry is canceled, not closed")

	trades := o.ledger.ClosedTrades()
	require.Len(t, trades, 1)
	assert.Equal(t, signal.ExitMarketOpen.String(), trades[0].ExitReason)
	assert.Equal(t, 101.2, trades[0].ExitPrice)
}

func TestExitSweepEscalatesProtectiveFailureOnce(t *testing.T) {
	st := newFakeStore()
	br := newFakeBroker()
	br.closeErr = errors.New("upstream 503")
	br.positions = []broker.Position{{Symbol: "AAPL", Qty: 10, Side: "long", AvgEntryPrice: 100}}

	now := nyc(t, "2025-03-11 09:31:00")
	o, notif := newTestOrchestrator(t, st, br, newFakeData(), fixed(now))
	require.NoError(t, o.boot(context.Background(), now))
	require.NoError(t, o.ledger.OpenPosition(ledger.Position{
		Symbol: "AAPL", Direction: signal.DirectionLong, Qty: 10,
		Status: ledger.StatusPending, LimitPrice: 100,
		ClientOrderID: "nf-e1", SubmittedAt: now,
	}))
	require.NoError(t, o.ledger.MarkOpen("AAPL", 100, now))

	require.NoError(t, o.exitSweep(context.Background(), now))
	require.NoError(t, o.exitSweep(context.Background(), now))

	assert.Equal(t, 1, o.ledger.OpenCount(), "position stays tracked until flattened")
	assert.GreaterOrEqual(t, len(br.closes), 2, "the sweep keeps retrying")
	assert.Equal(t, 1, notif.count(), "one page per position, not one per retry")
	assert.Equal(t, alert.SeverityCritical, notif.alerts[0].Severity)
}

func TestPhaseExitDeadlineReturnsSentinel(t *testing.T) {
	st := newFakeStore()
	br := newFakeBroker()
	br.closeErr = errors.New("upstream 503")
	br.positions = []broker.Position{{Symbol: "AAPL", Qty: 10, Side: "long", AvgEntryPrice: 100}}

	// Past the close-out deadline with the book still carrying risk.
	now := nyc(t, "2025-03-11 09:41:00")
	o, notif := newTestOrchestrator(t, st, br, newFakeData(), fixed(now))
	entered := nyc(t, "2025-03-10 17:00:00")
	st.sessions["2025-03-10"] = seedState(t, "2025-03-10", ledger.PhaseExit, entered, func(l *ledger.Ledger) {
		require.NoError(t, l.OpenPosition(ledger.Position{
			Symbol: "AAPL", Direction: signal.DirectionLong, Qty: 10,
			Status: ledger.StatusPending, LimitPrice: 100,
			ClientOrderID: "nf-e1", SubmittedAt: entered,
		}))
		require.NoError(t, l.MarkOpen("AAPL", 100, entered))
	})
	require.NoError(t, o.boot(context.Background(), o.now()))

	err := o.phaseExit(context.Background())

	require.ErrorIs(t, err, ErrUnresolvedPositions)
	require.GreaterOrEqual(t, notif.count(), 1)
	last := notif.alerts[notif.count()-1]
	assert.Equal(t, alert.SeverityCritical, last.Severity)
	assert.Contains(t, last.Body, "AAPL")
}

func TestRunFinalizesDoneSession(t *testing.T) {
	st := newFakeStore()
	closed := nyc(t, "2025-03-10 21:15:00")
	st.sessions["2025-03-10"] = seedState(t, "2025-03-10", ledger.PhaseDone, closed, func(l *ledger.Ledger) {
		l.RecordClosedTrade(signal.TradeMetrics{
			Symbol: "AAPL", Direction: signal.DirectionShort, Qty: 20,
			EntryPrice: 108, ExitPrice: 105, NetPnLPct: 0.0228, NetPnLDollars: 49.2,
			ExitReason: signal.ExitProfitCeiling.String(), ClosedAt: closed,
		})
	})

	o, _ := newTestOrchestrator(t, st, newFakeBroker(), newFakeData(), fixed(nyc(t, "2025-03-10 21:30:00")))
	require.NoError(t, o.Run(context.Background()))

	require.Equal(t, []string{"2025-03-10"}, st.perfFor)
	require.Len(t, st.archived, 1)
	assert.Equal(t, "2025-03-10", st.archived[0].SessionDate)
}

func TestStatusReflectsLedger(t *testing.T) {
	st := newFakeStore()
	br := newFakeBroker()
	now := nyc(t, "2025-03-10 18:30:00")
	o, _ := newTestOrchestrator(t, st, br, newFakeData(), fixed(now))
	require.NoError(t, o.boot(context.Background(), now))
	o.ledger.SetAnchor("AAPL", 100)
	o.ledger.ObservePrice("AAPL", 108.5, now)
	require.NoError(t, o.ledger.OpenPosition(ledger.Position{
		Symbol: "AAPL", Direction: signal.DirectionShort, Qty: 20,
		Status: ledger.StatusPending, LimitPrice: 108.5,
		ClientOrderID: "nf-e1", SubmittedAt: now,
	}))
	require.NoError(t, o.ledger.MarkOpen("AAPL", 108.5, now))

	status := o.Status()

	assert.Equal(t, "2025-03-10", status.SessionDate)
	assert.Equal(t, 1, status.AnchoredSymbols)
	require.Len(t, status.ExtremeMovers, 1)
	assert.Equal(t, "AAPL", status.ExtremeMovers[0].Symbol)
	assert.InDelta(t, 0.085, status.ExtremeMovers[0].MovePct, 1e-9)
	require.Len(t, status.Positions, 1)
	assert.Equal(t, "short", status.Positions[0].Direction)

	out := status.Format()
	assert.Contains(t, out, "SESSION 2025-03-10")
	assert.Contains(t, out, "AAPL")
}
