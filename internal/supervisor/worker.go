package supervisor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/domain/models"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/domain/repository"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/pipeline"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/risk"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/stream"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/pkg/breaker"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/pkg/logger"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/pkg/retry"
)

// Worker is one sense-decide-act loop for a single symbol/strategy pairing.
// Its loop body is strictly sequential: the single run goroutine is the only
// place cycles execute, so no two analysis cycles ever overlap.
type Worker struct {
	cfg   *models.BotConfig
	strat repository.Strategy
	svc   *Services

	pipe     *pipeline.Pipeline
	guardian *risk.Guardian
	conn     *stream.Connection
	ring     *logger.Ring
	log      *logger.Logger

	onTradeClosed func(*models.TradeRecord)

	mu           sync.Mutex
	status       models.BotStatus
	position     *models.Position
	lastActivity time.Time
	feedLost     bool // terminal feed failure: cycle falls back to REST polling

	suspended atomic.Bool

	cancel context.CancelFunc
	done   chan struct{}
}

func newWorker(cfg *models.BotConfig, strat repository.Strategy, svc *Services, onTradeClosed func(*models.TradeRecord)) *Worker {
	ring := logger.NewRing(svc.Cfg.Logging.RingLen)
	log := svc.Log.With("bot_id", cfg.ID).WithRing(ring)

	observe := func(ch breaker.StateChange) {
		svc.Metrics.RecordBreakerState(ch.Name, int(ch.To))
		log.Warn("breaker state change",
			logger.String("breaker", ch.Name),
			logger.String("from", ch.From.String()),
			logger.String("to", ch.To.String()))
	}
	brCfg := breaker.Config{MaxFailures: svc.Cfg.Breaker.MaxFailures, Cooldown: svc.Cfg.Breaker.Cooldown}
	dataBreaker := breaker.New(cfg.ID+"/data", brCfg, observe)
	oracleBreaker := breaker.New(cfg.ID+"/oracle", brCfg, observe)
	policy := retry.Policy{
		MaxAttempts: svc.Cfg.Retry.MaxAttempts,
		MinDelay:    svc.Cfg.Retry.MinDelay,
		MaxDelay:    svc.Cfg.Retry.MaxDelay,
		Factor:      2,
		Jitter:      true,
	}

	return &Worker{
		cfg:           cfg,
		strat:         strat,
		svc:           svc,
		pipe:          pipeline.New(svc.Market, svc.Oracle, dataBreaker, oracleBreaker, policy, log),
		guardian:      risk.NewGuardian(cfg),
		ring:          ring,
		log:           log,
		onTradeClosed: onTradeClosed,
		status:        models.StatusStopped,
		done:          make(chan struct{}),
	}
}

// restore hydrates risk state and any open position from a snapshot. Must be
// called before start.
func (w *Worker) restore(snap *models.Snapshot) {
	w.guardian.Restore(snap.Risk)
	w.mu.Lock()
	w.position = snap.Runtime.Position
	w.lastActivity = snap.LastActivity
	w.mu.Unlock()
}

// start seeds history, opens the live feed and launches the loop.
func (w *Worker) start(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	w.cancel = cancel

	bars, err := w.pipe.FetchHistory(ctx, w.cfg.Symbol, w.cfg.Interval, w.svc.Cfg.Engine.HistoryBars)
	if err != nil {
		cancel()
		return fmt.Errorf("seed history: %w", err)
	}

	w.conn = stream.New(w.svc.Dialer, w.cfg.Symbol, w.cfg.Interval, stream.Config{
		MaxAttempts:    w.svc.Cfg.Stream.MaxReconnects,
		MinDelay:       w.svc.Cfg.Stream.ReconnectMin,
		MaxDelay:       w.svc.Cfg.Stream.ReconnectMax,
		EventBuffer:    w.svc.Cfg.Stream.EventBuffer,
		SeriesCapacity: w.svc.Cfg.Stream.SeriesCapacity,
	}, w.log)
	w.conn.Seed(bars)

	if err := w.conn.Start(ctx); err != nil {
		// No live feed; the timer path polls over REST instead.
		w.log.Warn("live feed unavailable, polling", logger.Error(err))
		w.mu.Lock()
		w.feedLost = true
		w.mu.Unlock()
	}

	w.svc.Health.Register(w.cfg.ID)
	w.setStatus(models.StatusIdle)
	go w.run(ctx)
	return nil
}

// stop shuts the worker down synchronously: feed closed without reconnect,
// in-flight work cancelled, a final snapshot flushed, resources released.
func (w *Worker) stop(ctx context.Context) {
	w.cancel()
	if w.conn != nil {
		_ = w.conn.Close()
	}
	<-w.done

	w.setStatus(models.StatusStopped)
	if err := w.svc.Persist.SaveNow(ctx, w.snapshot()); err != nil {
		w.log.Error("final snapshot flush failed", logger.Error(err))
	}
	w.svc.Health.Deregister(w.cfg.ID)
	w.log.Info("worker stopped")
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)

	recheck := w.cfg.RecheckInterval
	if recheck <= 0 {
		recheck = time.Minute
	}
	ticker := time.NewTicker(recheck)
	defer ticker.Stop()

	poll := w.svc.Cfg.Engine.PositionPollTick
	if poll <= 0 {
		poll = 30 * time.Second
	}
	posTicker := time.NewTicker(poll)
	defer posTicker.Stop()

	w.cycle(ctx)

	events := w.conn.Events()
	errs := w.conn.Err()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				// Terminal failure or close; Err carries the reason.
				events = nil
				continue
			}
			w.svc.Emergency.ObservePrice(ev.Symbol, ev.Bar.Close)
			w.svc.Health.Touch(w.cfg.ID)
			if pos := w.currentPosition(); pos != nil {
				w.checkPosition(ctx, ev.Bar.Close)
			}
			if ev.IsClosed {
				w.cycle(ctx)
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.log.Error("live feed lost for good, falling back to polling", logger.Error(err))
			w.mu.Lock()
			w.feedLost = true
			w.mu.Unlock()
			w.svc.Health.SetConnected(w.cfg.ID, false)
			w.svc.Health.RecordError(w.cfg.ID)
			w.svc.Emergency.ReportError(models.ErrCatNetwork)

		case <-posTicker.C:
			// Safety net for polling mode; with a live feed every tick
			// already checks the position.
			if w.currentPosition() != nil {
				if price, ok := w.lastPrice(ctx); ok {
					w.checkPosition(ctx, price)
				}
			}

		case <-ticker.C:
			w.cycle(ctx)
		}
	}
}

// cycle runs one full analysis pass: emergency gate, risk gate, pipeline,
// then order placement. Every failure is absorbed here; only authentication
// escalates to the terminal error state.
func (w *Worker) cycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if w.currentStatus() == models.StatusError {
		return
	}

	// Cooperative emergency suspension, checked before the risk gate.
	if w.suspended.Load() || w.svc.Emergency.Active() {
		w.log.Debug("suspended by emergency stop")
		return
	}

	if w.currentPosition() != nil {
		w.recheckOpenPosition(ctx)
		return
	}

	verdict := w.guardian.CanTrade()
	if !verdict.Allowed {
		w.setStatus(models.StatusCooldown)
		w.log.Warn("trading gated", logger.String("mode", verdict.Mode), logger.String("reason", verdict.Reason))
		return
	}
	w.setStatus(models.StatusAnalyzing)

	bars, err := w.bars(ctx)
	if err != nil {
		w.absorb(ctx, err, "history unavailable")
		return
	}

	started := time.Now()
	res := w.pipe.Analyze(ctx, w.cfg, w.strat, bars)
	elapsed := time.Since(started)
	w.svc.Metrics.RecordAnalysis(w.cfg.ID, elapsed.Seconds())
	w.svc.Health.RecordLatency(w.cfg.ID, elapsed)

	switch res.Status {
	case pipeline.StatusNoSignal:
		w.log.Debug("no signal", logger.String("reason", res.Reason))
	case pipeline.StatusError:
		w.absorb(ctx, res.Err, res.Reason)
	case pipeline.StatusSignal:
		w.openPosition(ctx, res.Signal)
	}
	w.touch()
}

// recheckOpenPosition re-runs analysis while a position is open, closing on
// an opposite signal.
func (w *Worker) recheckOpenPosition(ctx context.Context) {
	bars, err := w.bars(ctx)
	if err != nil {
		w.absorb(ctx, err, "history unavailable")
		return
	}
	res := w.pipe.Analyze(ctx, w.cfg, w.strat, bars)
	if res.Status == pipeline.StatusError {
		w.absorb(ctx, res.Err, res.Reason)
		return
	}
	if res.Status != pipeline.StatusSignal {
		return
	}
	pos := w.currentPosition()
	if pos != nil && res.Signal.Action != pos.Side {
		w.log.Info("strategy reversed, closing position",
			logger.String("position", pos.ID),
			logger.String("new_side", string(res.Signal.Action)))
		w.closePosition(ctx, res.Signal.EntryPrice, models.CloseReversal)
	}
}

func (w *Worker) openPosition(ctx context.Context, sig *models.TradeSignal) {
	if w.cfg.Manual {
		w.log.Info("manual mode: signal reported, not executed",
			logger.String("action", string(sig.Action)),
			logger.Float64("entry", sig.EntryPrice),
			logger.Float64("confidence", sig.Confidence))
		return
	}

	quantity := w.cfg.InitialCapital * w.cfg.Leverage / sig.EntryPrice
	fill, err := w.svc.Gateway.PlaceOrder(ctx, w.cfg.Symbol, sig.Action, quantity)
	if err != nil {
		w.absorb(ctx, err, "order placement failed")
		return
	}

	pos := &models.Position{
		ID:         uuid.NewString(),
		BotID:      w.cfg.ID,
		Symbol:     w.cfg.Symbol,
		Side:       sig.Action,
		EntryPrice: fill.FillPrice,
		Quantity:   fill.FilledQuantity,
		StopLoss:   sig.StopLoss,
		TakeProfit: sig.TakeProfit,
		Strategy:   sig.Strategy,
		OpenedAt:   fill.Timestamp,
	}
	w.mu.Lock()
	w.position = pos
	w.mu.Unlock()
	w.setStatus(models.StatusPositionOpen)
	w.svc.Health.PositionOpened(w.cfg.ID)
	w.log.Info("position opened",
		logger.String("side", string(pos.Side)),
		logger.Float64("entry", pos.EntryPrice),
		logger.Float64("stop", pos.StopLoss),
		logger.Float64("target", pos.TakeProfit))
	w.persistChange(ctx)
}

// checkPosition fires the close side effect when price crosses the stop or
// target.
func (w *Worker) checkPosition(ctx context.Context, price float64) {
	pos := w.currentPosition()
	if pos == nil {
		return
	}
	w.mu.Lock()
	w.position.CurrentPrice = price
	w.mu.Unlock()

	if reason, hit := pos.ShouldClose(price); hit {
		w.closePosition(ctx, price, reason)
	}
}

func (w *Worker) closePosition(ctx context.Context, price float64, reason models.CloseReason) {
	w.mu.Lock()
	pos := w.position
	w.mu.Unlock()
	if pos == nil {
		return
	}

	if !w.cfg.Manual {
		if _, err := w.svc.Gateway.CloseOrder(ctx, pos.Symbol, pos.Side, pos.Quantity); err != nil {
			// The close is retried on the next tick; holding the position
			// record keeps the exposure visible.
			w.absorb(ctx, err, "order close failed")
			return
		}
	}

	pnl := pos.UnrealizedPnl(price)
	rec := &models.TradeRecord{
		ID:         uuid.NewString(),
		BotID:      w.cfg.ID,
		Symbol:     pos.Symbol,
		Side:       pos.Side,
		Strategy:   pos.Strategy,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  price,
		Quantity:   pos.Quantity,
		Pnl:        pnl,
		PnlPct:     pnl / (pos.EntryPrice * pos.Quantity) * 100,
		OpenedAt:   pos.OpenedAt,
		ClosedAt:   time.Now(),
		Reason:     reason,
	}

	w.mu.Lock()
	w.position = nil
	w.mu.Unlock()

	w.guardian.RegisterTrade(pnl)
	w.svc.Health.RecordTrade(w.cfg.ID, rec)
	w.svc.Health.PositionClosed(w.cfg.ID)
	w.svc.Metrics.RecordTrade(w.cfg.ID, w.cfg.Symbol, pnl)
	w.log.Info("position closed",
		logger.String("reason", string(reason)),
		logger.Float64("exit", price),
		logger.Float64("pnl", pnl))

	if w.onTradeClosed != nil {
		w.onTradeClosed(rec)
	}
	w.setStatus(models.StatusAnalyzing)
	w.persistChange(ctx)
}

// absorb logs and counts a cycle failure. Authentication failures alone move
// the worker to its terminal error state.
func (w *Worker) absorb(ctx context.Context, err error, what string) {
	if err == nil || ctx.Err() != nil {
		return
	}
	class := retry.Classify(err)
	w.log.Error(what, logger.String("class", class.String()), logger.Error(err))
	w.svc.Metrics.RecordError(class.String())

	switch class {
	case retry.ClassAuth:
		w.setStatus(models.StatusError)
		w.log.Error("authentication failure, worker halted until restart")
		w.svc.Emergency.ReportError(models.ErrCatAPI)
		w.persistChange(ctx)
	case retry.ClassQuota:
		w.svc.Emergency.ReportError(models.ErrCatAPI)
	case retry.ClassValidation:
		w.svc.Emergency.ReportError(models.ErrCatGeneric)
	default:
		w.svc.Health.RecordError(w.cfg.ID)
		w.svc.Emergency.ReportError(models.ErrCatNetwork)
	}
}

// bars returns the freshest history: the merged live series when the feed is
// up, a REST fetch in polling mode.
func (w *Worker) bars(ctx context.Context) ([]models.Bar, error) {
	w.mu.Lock()
	lost := w.feedLost
	w.mu.Unlock()
	if !lost && w.conn != nil {
		if bars := w.conn.Bars(); len(bars) > 0 {
			return bars, nil
		}
	}
	return w.pipe.FetchHistory(ctx, w.cfg.Symbol, w.cfg.Interval, w.svc.Cfg.Engine.HistoryBars)
}

// lastPrice resolves the newest close for position checks in polling mode.
func (w *Worker) lastPrice(ctx context.Context) (float64, bool) {
	bars, err := w.bars(ctx)
	if err != nil || len(bars) == 0 {
		return 0, false
	}
	return bars[len(bars)-1].Close, true
}

func (w *Worker) persistChange(ctx context.Context) {
	_ = w.svc.Persist.SaveNow(ctx, w.snapshot())
}

// snapshot builds the read-only projection handed to persistence and the API.
func (w *Worker) snapshot() *models.Snapshot {
	w.mu.Lock()
	var pos *models.Position
	if w.position != nil {
		cp := *w.position
		pos = &cp
	}
	status := w.status
	last := w.lastActivity
	w.mu.Unlock()

	entries := w.ring.Entries(0)
	logs := make([]models.LogEntry, len(entries))
	for i, e := range entries {
		logs[i] = models.LogEntry{Time: e.Time, Level: e.Level, Message: e.Message}
	}

	return &models.Snapshot{
		Version: models.SnapshotVersion,
		BotID:   w.cfg.ID,
		Config:  *w.cfg,
		Runtime: models.RuntimeSnapshot{
			Status:       status,
			Position:     pos,
			Logs:         logs,
			LastActivity: last,
		},
		Risk:         w.guardian.State(),
		LastActivity: last,
	}
}

func (w *Worker) setStatus(s models.BotStatus) {
	w.mu.Lock()
	changed := w.status != s
	w.status = s
	w.lastActivity = time.Now()
	w.mu.Unlock()
	if changed {
		w.svc.Metrics.RecordBotStatus(w.cfg.ID, s)
	}
}

func (w *Worker) touch() {
	w.mu.Lock()
	w.lastActivity = time.Now()
	w.mu.Unlock()
}

func (w *Worker) currentStatus() models.BotStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

func (w *Worker) currentPosition() *models.Position {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.position
}
