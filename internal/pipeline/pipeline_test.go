package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/domain/models"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/domain/repository"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/pkg/breaker"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/pkg/logger"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/pkg/retry"
)

type fakeStrategy struct {
	evs []repository.Evaluated
	err error
}

func (f *fakeStrategy) Name() string { return "fake" }
func (f *fakeStrategy) Evaluate(bars []models.Bar) ([]repository.Evaluated, error) {
	return f.evs, f.err
}

type fakeOracle struct {
	conf  *repository.Confirmation
	err   error
	calls int
}

func (f *fakeOracle) Confirm(ctx context.Context, symbol string, recent []models.Bar, proposed models.SignalAction) (*repository.Confirmation, error) {
	f.calls++
	return f.conf, f.err
}

type fakeMarket struct {
	bars  []models.Bar
	err   error
	calls int
}

func (f *fakeMarket) FetchBars(ctx context.Context, symbol, interval string, limit int) ([]models.Bar, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.bars, nil
}

func testBars(n int) []models.Bar {
	bars := make([]models.Bar, n)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		bars[i] = models.Bar{
			Time: base.Add(time.Duration(i) * time.Minute),
			Open: 100, High: 101, Low: 99, Close: 100,
			Volume: 10,
		}
	}
	return bars
}

func markedAt(bars []models.Bar, idx int, buy bool) []repository.Evaluated {
	evs := make([]repository.Evaluated, len(bars))
	for i, b := range bars {
		evs[i] = repository.Evaluated{Bar: b}
	}
	if buy {
		evs[idx].BuySignal = bars[idx].Close
	} else {
		evs[idx].SellSignal = bars[idx].Close
	}
	return evs
}

func testConfig() *models.BotConfig {
	return &models.BotConfig{
		ID:               "bot-1",
		Symbol:           "BTCUSDT",
		Interval:         "1m",
		Strategy:         "sma-cross",
		MinBars:          10,
		SignalMaxAgeBars: 3,
		TakeProfitPct:    2,
		StopLossPct:      1,
	}
}

func newTestPipeline(t *testing.T, oracle repository.Oracle, market repository.MarketData) *Pipeline {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "console"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	policy := retry.Policy{MaxAttempts: 2, MinDelay: time.Millisecond, MaxDelay: time.Millisecond, Factor: 1}
	return New(
		market,
		oracle,
		breaker.New("data", breaker.Config{MaxFailures: 3, Cooldown: time.Minute}, nil),
		breaker.New("oracle", breaker.Config{MaxFailures: 3, Cooldown: time.Minute}, nil),
		policy,
		log,
	)
}

func TestAnalyzeInsufficientHistory(t *testing.T) {
	p := newTestPipeline(t, nil, nil)
	res := p.Analyze(context.Background(), testConfig(), &fakeStrategy{}, testBars(5))
	if res.Status != StatusError {
		t.Fatalf("status = %s, want %s", res.Status, StatusError)
	}
	if retry.Classify(res.Err) != retry.ClassValidation {
		t.Fatalf("class = %s, want validation", retry.Classify(res.Err))
	}
}

func TestAnalyzeNoMarker(t *testing.T) {
	p := newTestPipeline(t, nil, nil)
	bars := testBars(20)
	evs := make([]repository.Evaluated, len(bars))
	for i, b := range bars {
		evs[i] = repository.Evaluated{Bar: b}
	}
	res := p.Analyze(context.Background(), testConfig(), &fakeStrategy{evs: evs}, bars)
	if res.Status != StatusNoSignal {
		t.Fatalf("status = %s, want %s", res.Status, StatusNoSignal)
	}
}

func TestAnalyzeStaleMarker(t *testing.T) {
	p := newTestPipeline(t, nil, nil)
	bars := testBars(20)
	// Marker 5 bars back, window is 3.
	strat := &fakeStrategy{evs: markedAt(bars, 14, true)}
	res := p.Analyze(context.Background(), testConfig(), strat, bars)
	if res.Status != StatusNoSignal {
		t.Fatalf("status = %s, want %s", res.Status, StatusNoSignal)
	}
	if !strings.Contains(res.Reason, "bars old") {
		t.Fatalf("reason = %q, want staleness reason", res.Reason)
	}
}

func TestAnalyzeFreshMarkerWithoutOracle(t *testing.T) {
	p := newTestPipeline(t, nil, nil)
	bars := testBars(20)
	strat := &fakeStrategy{evs: markedAt(bars, 18, true)}
	res := p.Analyze(context.Background(), testConfig(), strat, bars)
	if res.Status != StatusSignal {
		t.Fatalf("status = %s (%s), want %s", res.Status, res.Reason, StatusSignal)
	}
	sig := res.Signal
	if sig.Action != models.ActionUp {
		t.Fatalf("action = %s, want UP", sig.Action)
	}
	entry := bars[len(bars)-1].Close
	if sig.EntryPrice != entry {
		t.Fatalf("entry = %v, want last close %v", sig.EntryPrice, entry)
	}
	if sig.StopLoss >= entry || sig.TakeProfit <= entry {
		t.Fatalf("ordering violated: stop=%v entry=%v target=%v", sig.StopLoss, entry, sig.TakeProfit)
	}
}

func TestAnalyzeDownMarkerOrdering(t *testing.T) {
	p := newTestPipeline(t, nil, nil)
	bars := testBars(20)
	strat := &fakeStrategy{evs: markedAt(bars, 19, false)}
	res := p.Analyze(context.Background(), testConfig(), strat, bars)
	if res.Status != StatusSignal {
		t.Fatalf("status = %s (%s), want %s", res.Status, res.Reason, StatusSignal)
	}
	sig := res.Signal
	if sig.Action != models.ActionDown {
		t.Fatalf("action = %s, want DOWN", sig.Action)
	}
	if sig.StopLoss <= sig.EntryPrice || sig.TakeProfit >= sig.EntryPrice {
		t.Fatalf("ordering violated: stop=%v entry=%v target=%v", sig.StopLoss, sig.EntryPrice, sig.TakeProfit)
	}
}

func TestAnalyzeOracleAgreement(t *testing.T) {
	oracle := &fakeOracle{conf: &repository.Confirmation{
		Direction:  models.ActionUp,
		Confidence: 82,
		Reasoning:  "momentum aligned",
	}}
	p := newTestPipeline(t, oracle, nil)
	cfg := testConfig()
	cfg.UseAI = true
	bars := testBars(20)
	strat := &fakeStrategy{evs: markedAt(bars, 19, true)}
	res := p.Analyze(context.Background(), cfg, strat, bars)
	if res.Status != StatusSignal {
		t.Fatalf("status = %s (%s), want %s", res.Status, res.Reason, StatusSignal)
	}
	if res.Signal.Confidence != 82 {
		t.Fatalf("confidence = %v, want oracle's 82", res.Signal.Confidence)
	}
	if res.Signal.Reason != "momentum aligned" {
		t.Fatalf("reason = %q, want oracle reasoning", res.Signal.Reason)
	}
}

func TestAnalyzeOracleDisagreement(t *testing.T) {
	oracle := &fakeOracle{conf: &repository.Confirmation{Direction: models.ActionDown}}
	p := newTestPipeline(t, oracle, nil)
	cfg := testConfig()
	cfg.UseAI = true
	bars := testBars(20)
	strat := &fakeStrategy{evs: markedAt(bars, 19, true)}
	res := p.Analyze(context.Background(), cfg, strat, bars)
	if res.Status != StatusNoSignal {
		t.Fatalf("status = %s, want %s", res.Status, StatusNoSignal)
	}
	if !strings.Contains(res.Reason, "disagrees") {
		t.Fatalf("reason = %q, want disagreement reason", res.Reason)
	}
}

func TestAnalyzeOracleQuotaNotRetried(t *testing.T) {
	oracle := &fakeOracle{err: retry.Quota(errors.New("429"))}
	p := newTestPipeline(t, oracle, nil)
	cfg := testConfig()
	cfg.UseAI = true
	bars := testBars(20)
	strat := &fakeStrategy{evs: markedAt(bars, 19, true)}
	res := p.Analyze(context.Background(), cfg, strat, bars)
	if res.Status != StatusNoSignal {
		t.Fatalf("status = %s, want %s", res.Status, StatusNoSignal)
	}
	if oracle.calls != 1 {
		t.Fatalf("oracle called %d times, quota must not be retried", oracle.calls)
	}
}

func TestAnalyzeOracleUnavailable(t *testing.T) {
	oracle := &fakeOracle{conf: &repository.Confirmation{Unavailable: true}}
	p := newTestPipeline(t, oracle, nil)
	cfg := testConfig()
	cfg.UseAI = true
	bars := testBars(20)
	strat := &fakeStrategy{evs: markedAt(bars, 19, true)}
	res := p.Analyze(context.Background(), cfg, strat, bars)
	if res.Status != StatusNoSignal {
		t.Fatalf("status = %s, want %s", res.Status, StatusNoSignal)
	}
	if res.Reason != "oracle unavailable" {
		t.Fatalf("reason = %q", res.Reason)
	}
}

func TestFetchHistoryRetriesTransient(t *testing.T) {
	market := &fakeMarket{err: errors.New("connection reset")}
	p := newTestPipeline(t, nil, market)
	_, err := p.FetchHistory(context.Background(), "BTCUSDT", "1m", 100)
	if err == nil {
		t.Fatal("want error after exhausted retries")
	}
	if market.calls != 2 {
		t.Fatalf("fetch called %d times, want 2 attempts", market.calls)
	}
}

func TestAnalyzeStrategyFailure(t *testing.T) {
	p := newTestPipeline(t, nil, nil)
	strat := &fakeStrategy{err: errors.New("bad series")}
	res := p.Analyze(context.Background(), testConfig(), strat, testBars(20))
	if res.Status != StatusError {
		t.Fatalf("status = %s, want %s", res.Status, StatusError)
	}
}
