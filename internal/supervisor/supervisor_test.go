package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/domain/models"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/domain/repository"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/emergency"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/health"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/persistence"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/strategy"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/pkg/config"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/pkg/logger"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/pkg/metrics"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/pkg/retry"
)

// --- fakes -----------------------------------------------------------------

type fakeMarket struct{ bars []models.Bar }

func (f *fakeMarket) FetchBars(ctx context.Context, symbol, interval string, limit int) ([]models.Bar, error) {
	return f.bars, nil
}

type fakeFeed struct {
	events    chan models.BarEvent
	errs      chan error
	closeOnce sync.Once
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{events: make(chan models.BarEvent, 16), errs: make(chan error, 1)}
}

func (f *fakeFeed) Events() <-chan models.BarEvent { return f.events }
func (f *fakeFeed) Err() <-chan error              { return f.errs }
func (f *fakeFeed) Close() error {
	f.closeOnce.Do(func() { close(f.events) })
	return nil
}

type fakeDialer struct {
	mu    sync.Mutex
	feeds []*fakeFeed
}

func (d *fakeDialer) Dial(ctx context.Context, symbol, interval string) (repository.BarFeed, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f := newFakeFeed()
	d.feeds = append(d.feeds, f)
	return f, nil
}

func (d *fakeDialer) latest() *fakeFeed {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.feeds) == 0 {
		return nil
	}
	return d.feeds[len(d.feeds)-1]
}

type fakeGateway struct {
	mu     sync.Mutex
	placed int
	closed int
	fail   error
}

func (g *fakeGateway) PlaceOrder(ctx context.Context, symbol string, side models.SignalAction, quantity float64) (*models.OrderFill, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail != nil {
		return nil, g.fail
	}
	g.placed++
	return &models.OrderFill{OrderID: fmt.Sprintf("ord-%d", g.placed), FillPrice: 100, FilledQuantity: quantity, Timestamp: time.Now()}, nil
}

func (g *fakeGateway) CloseOrder(ctx context.Context, symbol string, side models.SignalAction, quantity float64) (*models.OrderFill, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed++
	return &models.OrderFill{OrderID: "close", FillPrice: 100, FilledQuantity: quantity, Timestamp: time.Now()}, nil
}

func (g *fakeGateway) counts() (int, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.placed, g.closed
}

// flipOracle agrees with every proposed direction until an error is armed.
type flipOracle struct {
	mu  sync.Mutex
	err error
}

func (o *flipOracle) Confirm(ctx context.Context, symbol string, recent []models.Bar, proposed models.SignalAction) (*repository.Confirmation, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	return &repository.Confirmation{Direction: proposed, Confidence: 80}, nil
}

func (o *flipOracle) arm(err error) {
	o.mu.Lock()
	o.err = err
	o.mu.Unlock()
}

// markLast annotates the final bar with a buy signal on every evaluation.
type markLast struct{}

func (markLast) Name() string { return "mark-last" }
func (markLast) Evaluate(bars []models.Bar) ([]repository.Evaluated, error) {
	evs := make([]repository.Evaluated, len(bars))
	for i, b := range bars {
		evs[i] = repository.Evaluated{Bar: b}
	}
	evs[len(evs)-1].BuySignal = bars[len(bars)-1].Close
	return evs, nil
}

type memStore struct {
	mu sync.Mutex
	m  map[string][]byte
}

func newMemStore() *memStore { return &memStore{m: make(map[string][]byte)} }

func (s *memStore) Save(ctx context.Context, snap *models.Snapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.m[snap.BotID] = b
	s.mu.Unlock()
	return nil
}

func (s *memStore) Load(ctx context.Context, botID string) (*models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.m[botID]
	if !ok {
		return nil, nil
	}
	var snap models.Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *memStore) LoadAll(ctx context.Context) (map[string]*models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*models.Snapshot)
	for id, b := range s.m {
		var snap models.Snapshot
		if err := json.Unmarshal(b, &snap); err != nil {
			out[id] = nil
			continue
		}
		out[id] = &snap
	}
	return out, nil
}

func (s *memStore) Delete(ctx context.Context, botID string) error {
	s.mu.Lock()
	delete(s.m, botID)
	s.mu.Unlock()
	return nil
}

func (s *memStore) Close() error { return nil }

type memArchive struct {
	mu   sync.Mutex
	recs []*models.TradeRecord
}

func (a *memArchive) Archive(ctx context.Context, records []*models.TradeRecord) error {
	a.mu.Lock()
	a.recs = append(a.recs, records...)
	a.mu.Unlock()
	return nil
}

func (a *memArchive) Query(ctx context.Context, botID string, from, to time.Time, limit int) ([]*models.TradeRecord, error) {
	return nil, nil
}
func (a *memArchive) Health(ctx context.Context) error { return nil }
func (a *memArchive) Close() error                     { return nil }

type noopExporter struct{}

func (noopExporter) ExportTrade(context.Context, *models.TradeRecord) error { return nil }
func (noopExporter) ExportAlert(context.Context, *models.Alert) error       { return nil }
func (noopExporter) Close() error                                           { return nil }

// --- harness ---------------------------------------------------------------

func seedBars(n int) []models.Bar {
	bars := make([]models.Bar, n)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		bars[i] = models.Bar{
			Time: base.Add(time.Duration(i) * time.Minute),
			Open: 100, High: 101, Low: 99, Close: 100, Volume: 10,
		}
	}
	return bars
}

type harness struct {
	sup     *Supervisor
	dialer  *fakeDialer
	gateway *fakeGateway
	store   *memStore
	archive *memArchive
	em      *emergency.System
	oracle  *flipOracle
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "console"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}

	cfg := config.Default()
	cfg.Engine.MaxBots = 3
	cfg.Engine.HistoryBars = 60

	reg := strategy.NewRegistry()
	reg.Register("mark-last", func(params json.RawMessage) (repository.Strategy, error) {
		return markLast{}, nil
	})

	store := newMemStore()
	dialer := &fakeDialer{}
	gateway := &fakeGateway{}
	archive := &memArchive{}
	oracle := &flipOracle{}
	emCfg := emergency.DefaultConfig()
	emCfg.AutoResolveWindow = time.Millisecond
	em := emergency.NewSystem(emCfg, metrics.Noop{}, log)

	svc := &Services{
		Cfg:        cfg,
		Market:     &fakeMarket{bars: seedBars(60)},
		Dialer:     dialer,
		Gateway:    gateway,
		Oracle:     oracle,
		Strategies: reg,
		Health:     health.NewMonitor(health.DefaultConfig(), log),
		Emergency:  em,
		Persist:    persistence.NewManager(persistence.DefaultConfig(), store, log),
		Archive:    archive,
		Exporter:   noopExporter{},
		Metrics:    metrics.Noop{},
		Log:        log,
	}
	return &harness{
		sup:     New(svc),
		dialer:  dialer,
		gateway: gateway,
		store:   store,
		archive: archive,
		em:      em,
		oracle:  oracle,
	}
}

func botConfig(id string) *models.BotConfig {
	return &models.BotConfig{
		ID:             id,
		Symbol:         "BTCUSDT",
		Interval:       "1m",
		Strategy:       "mark-last",
		InitialCapital: 1000,
		Leverage:       1,
		TakeProfitPct:  2,
		StopLossPct:    1,
		MinBars:        50,
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

// --- tests -----------------------------------------------------------------

func TestStartOpensPositionOnFreshSignal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id, err := h.sup.Start(ctx, botConfig("bot-1"))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer h.sup.StopAll(ctx)

	waitFor(t, func() bool {
		v, err := h.sup.Get(id)
		return err == nil && v.Status == models.StatusPositionOpen
	}, "worker never opened a position")

	v, _ := h.sup.Get(id)
	if v.Position == nil || v.Position.Side != models.ActionUp {
		t.Fatalf("position = %+v", v.Position)
	}
	if placed, _ := h.gateway.counts(); placed != 1 {
		t.Fatalf("orders placed = %d, want 1", placed)
	}
}

func TestTakeProfitClosesPosition(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id, err := h.sup.Start(ctx, botConfig("bot-1"))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer h.sup.StopAll(ctx)

	waitFor(t, func() bool {
		v, err := h.sup.Get(id)
		return err == nil && v.Status == models.StatusPositionOpen
	}, "no position opened")

	// Entry 100, take profit 102: a 103 tick must close it.
	feed := h.dialer.latest()
	feed.events <- models.BarEvent{
		Symbol: "BTCUSDT", Interval: "1m",
		Bar:      models.Bar{Time: time.Now(), Close: 103},
		IsClosed: false,
	}

	waitFor(t, func() bool {
		_, closed := h.gateway.counts()
		return closed == 1
	}, "take profit never fired")

	waitFor(t, func() bool {
		h.archive.mu.Lock()
		defer h.archive.mu.Unlock()
		return len(h.archive.recs) == 1
	}, "closed trade never archived")

	h.archive.mu.Lock()
	rec := h.archive.recs[0]
	h.archive.mu.Unlock()
	if rec.Reason != models.CloseTakeProfit {
		t.Fatalf("close reason = %s, want take_profit", rec.Reason)
	}
	if rec.Pnl <= 0 {
		t.Fatalf("pnl = %v, want positive", rec.Pnl)
	}
}

func TestOracleAuthFailureDuringOpenPositionHaltsWorker(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	cfg := botConfig("bot-1")
	cfg.UseAI = true
	id, err := h.sup.Start(ctx, cfg)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer h.sup.StopAll(ctx)

	waitFor(t, func() bool {
		v, err := h.sup.Get(id)
		return err == nil && v.Status == models.StatusPositionOpen
	}, "no position opened")

	// The key is revoked while the position is open. The next recheck, driven
	// by a closed bar that stays inside the stop and target, must surface the
	// failure and halt the worker instead of swallowing it.
	h.oracle.arm(retry.Auth(errors.New("status 401: api key rejected")))
	feed := h.dialer.latest()
	feed.events <- models.BarEvent{
		Symbol: "BTCUSDT", Interval: "1m",
		Bar:      models.Bar{Time: time.Now(), Close: 100.5},
		IsClosed: true,
	}

	waitFor(t, func() bool {
		v, err := h.sup.Get(id)
		return err == nil && v.Status == models.StatusError
	}, "auth failure during recheck never reached the error state")

	if _, closed := h.gateway.counts(); closed != 0 {
		t.Fatalf("closed orders = %d, want 0", closed)
	}
}

func TestStopIsSynchronousAndFlushes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id, err := h.sup.Start(ctx, botConfig("bot-1"))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := h.sup.Stop(ctx, id); err != nil {
		t.Fatalf("stop: %v", err)
	}

	// A final snapshot with stopped status must already be durable.
	snap, err := h.store.Load(ctx, id)
	if err != nil || snap == nil {
		t.Fatalf("snapshot after stop: %v %v", snap, err)
	}
	if snap.Runtime.Status != models.StatusStopped {
		t.Fatalf("status = %s, want stopped", snap.Runtime.Status)
	}
	if _, err := h.sup.Get(id); err == nil {
		t.Fatal("stopped worker must be removed")
	}
}

func TestStartRejectsUnknownStrategy(t *testing.T) {
	h := newHarness(t)
	cfg := botConfig("bot-1")
	cfg.Strategy = "does-not-exist"
	if _, err := h.sup.Start(context.Background(), cfg); err == nil {
		t.Fatal("want error for unknown strategy")
	}
}

func TestStartEnforcesBotLimit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	defer h.sup.StopAll(ctx)

	for i := 0; i < 3; i++ {
		if _, err := h.sup.Start(ctx, botConfig(fmt.Sprintf("bot-%d", i))); err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
	}
	if _, err := h.sup.Start(ctx, botConfig("bot-over")); err == nil {
		t.Fatal("want error past the bot limit")
	}
}

func TestEmergencyStopSuspendsAllWorkers(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer h.sup.StopAll(context.Background())

	go h.sup.Run(ctx)

	idA, _ := h.sup.Start(ctx, botConfig("bot-a"))
	idB, _ := h.sup.Start(ctx, botConfig("bot-b"))

	ev := h.sup.EmergencyStopAll("operator kill switch")

	waitFor(t, func() bool {
		a, errA := h.sup.Get(idA)
		b, errB := h.sup.Get(idB)
		return errA == nil && errB == nil && a.Suspended && b.Suspended
	}, "emergency stop did not suspend all workers")

	if !h.em.Active() {
		t.Fatal("emergency system must be active")
	}

	// Resolving the event and sweeping past the quiet window must resume the
	// workers without a manual resume call.
	if err := h.em.Resolve(ev.ID); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	h.em.Sweep()

	waitFor(t, func() bool {
		a, errA := h.sup.Get(idA)
		b, errB := h.sup.Get(idB)
		return errA == nil && errB == nil && !a.Suspended && !b.Suspended
	}, "auto-deactivation never resumed the workers")
	if h.em.Active() {
		t.Fatal("emergency system must be inactive after the sweep")
	}
}

func TestRestoreAllRelaunchesFromSnapshots(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	cfg := botConfig("bot-restored")
	cfg.MaxConsecutiveLosses = 3
	cfg.DailyDrawdownLimit = 10
	cfg.FailurePolicy = models.PolicyCooldown
	cfg.CooldownPeriod = 30 * time.Minute
	cfg.SignalMaxAgeBars = 3
	cfg.RecheckInterval = time.Minute

	snap := &models.Snapshot{
		Version: models.SnapshotVersion,
		BotID:   cfg.ID,
		Config:  *cfg,
		Runtime: models.RuntimeSnapshot{Status: models.StatusAnalyzing, LastActivity: time.Now()},
		Risk:    models.RiskState{ConsecutiveLosses: 2, SessionPnl: -40},
	}
	if err := h.store.Save(ctx, snap); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	// Stopped bots must stay stopped.
	stopped := *snap
	stopped.BotID = "bot-stopped"
	stopped.Config.ID = "bot-stopped"
	stopped.Runtime.Status = models.StatusStopped
	if err := h.store.Save(ctx, &stopped); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	if err := h.sup.RestoreAll(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}
	defer h.sup.StopAll(ctx)

	v, err := h.sup.Get("bot-restored")
	if err != nil {
		t.Fatalf("restored bot missing: %v", err)
	}
	if v.Risk.ConsecutiveLosses != 2 || v.Risk.SessionPnl != -40 {
		t.Fatalf("restored risk = %+v", v.Risk)
	}
	if _, err := h.sup.Get("bot-stopped"); err == nil {
		t.Fatal("stopped bot must not be relaunched")
	}
}

func TestRestartClearsErrorState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id, err := h.sup.Start(ctx, botConfig("bot-1"))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer h.sup.StopAll(ctx)

	if err := h.sup.Restart(ctx, id); err != nil {
		t.Fatalf("restart: %v", err)
	}
	v, err := h.sup.Get(id)
	if err != nil {
		t.Fatalf("get after restart: %v", err)
	}
	if v.Status == models.StatusError || v.Status == models.StatusStopped {
		t.Fatalf("status after restart = %s", v.Status)
	}
}
