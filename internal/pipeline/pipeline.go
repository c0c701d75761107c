// Package pipeline orchestrates one analysis cycle: history check, strategy
// evaluation, staleness filtering, optional oracle confirmation and final
// signal validation. Every failure is converted into a result; nothing
// escapes past the worker loop boundary.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/domain/models"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/domain/repository"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/pkg/breaker"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/pkg/logger"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/pkg/retry"
)

// Status of one analysis cycle.
type Status string

const (
	StatusSignal   Status = "signal"
	StatusNoSignal Status = "no_signal"
	StatusError    Status = "error"
)

// Result is the outcome of one cycle. Err is only set for StatusError and
// carries the retry taxonomy class for the worker's escalation decisions.
type Result struct {
	Status Status
	Reason string
	Signal *models.TradeSignal
	Err    error
}

func noSignal(reason string) Result { return Result{Status: StatusNoSignal, Reason: reason} }

func failed(reason string, err error) Result {
	return Result{Status: StatusError, Reason: reason, Err: err}
}

// Pipeline runs analysis cycles for one worker. The data and oracle breakers
// are dedicated to this worker and these two operations.
type Pipeline struct {
	market        repository.MarketData
	oracle        repository.Oracle
	dataBreaker   *breaker.Breaker
	oracleBreaker *breaker.Breaker
	policy        retry.Policy
	log           *logger.Logger
}

func New(
	market repository.MarketData,
	oracle repository.Oracle,
	dataBreaker *breaker.Breaker,
	oracleBreaker *breaker.Breaker,
	policy retry.Policy,
	log *logger.Logger,
) *Pipeline {
	return &Pipeline{
		market:        market,
		oracle:        oracle,
		dataBreaker:   dataBreaker,
		oracleBreaker: oracleBreaker,
		policy:        policy,
		log:           log,
	}
}

// FetchHistory loads historical bars through the data breaker and retry
// policy. Used to seed a worker's series and in polling mode.
func (p *Pipeline) FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]models.Bar, error) {
	var bars []models.Bar
	err := retry.Do(ctx, p.policy, func(ctx context.Context) error {
		return p.dataBreaker.Execute(ctx, func(ctx context.Context) error {
			var ferr error
			bars, ferr = p.market.FetchBars(ctx, symbol, interval, limit)
			return ferr
		})
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s/%s: %w", symbol, interval, err)
	}
	return bars, nil
}

// Analyze runs one cycle over the given history for cfg's worker.
func (p *Pipeline) Analyze(ctx context.Context, cfg *models.BotConfig, strat repository.Strategy, bars []models.Bar) Result {
	if len(bars) < cfg.MinBars {
		return failed(
			fmt.Sprintf("insufficient history: %d bars, need %d", len(bars), cfg.MinBars),
			retry.Validation(fmt.Errorf("insufficient history: %d < %d", len(bars), cfg.MinBars)),
		)
	}

	evs, err := strat.Evaluate(bars)
	if err != nil {
		return failed("strategy evaluation failed", retry.Validation(err))
	}

	marker, age, ok := latestMarker(evs)
	if !ok {
		return noSignal("no marker in history")
	}
	if age > cfg.SignalMaxAgeBars {
		return noSignal(fmt.Sprintf("latest marker is %d bars old, window is %d", age, cfg.SignalMaxAgeBars))
	}

	action := models.ActionUp
	if marker.SellSignal > 0 {
		action = models.ActionDown
	}

	last := bars[len(bars)-1]
	sig := p.buildSignal(cfg, marker, action, last.Close)

	if cfg.UseAI {
		conf, err := p.confirm(ctx, cfg.Symbol, bars, action)
		if err != nil {
			if retry.Classify(err) == retry.ClassQuota {
				p.log.Warn("oracle quota exhausted, holding signal", logger.String("bot_id", cfg.ID))
				return noSignal("oracle quota exhausted")
			}
			return failed("oracle confirmation failed", err)
		}
		if conf.Unavailable {
			return noSignal("oracle unavailable")
		}
		if conf.Direction != action {
			return noSignal(fmt.Sprintf("oracle disagrees: strategy %s, oracle %s", action, conf.Direction))
		}
		sig.Confidence = conf.Confidence
		if conf.Reasoning != "" {
			sig.Reason = conf.Reasoning
		}
	}

	if err := sig.Validate(); err != nil {
		return failed("signal failed validation", retry.Validation(err))
	}
	return Result{Status: StatusSignal, Signal: sig}
}

func (p *Pipeline) buildSignal(cfg *models.BotConfig, marker repository.Evaluated, action models.SignalAction, entry float64) *models.TradeSignal {
	stop, target := marker.Indicators["stop_loss"], marker.Indicators["take_profit"]
	if stop == 0 || target == 0 {
		// Percentage-based offsets from the worker config.
		if action == models.ActionUp {
			stop = entry * (1 - cfg.StopLossPct/100)
			target = entry * (1 + cfg.TakeProfitPct/100)
		} else {
			stop = entry * (1 + cfg.StopLossPct/100)
			target = entry * (1 - cfg.TakeProfitPct/100)
		}
	}
	return &models.TradeSignal{
		ID:         uuid.NewString(),
		BotID:      cfg.ID,
		Symbol:     cfg.Symbol,
		Action:     action,
		EntryPrice: entry,
		StopLoss:   stop,
		TakeProfit: target,
		Confidence: 50,
		Strategy:   cfg.Strategy,
		CreatedAt:  time.Now(),
	}
}

func (p *Pipeline) confirm(ctx context.Context, symbol string, bars []models.Bar, action models.SignalAction) (*repository.Confirmation, error) {
	recent := bars
	if len(recent) > 50 {
		recent = recent[len(recent)-50:]
	}
	var conf *repository.Confirmation
	err := retry.Do(ctx, p.policy, func(ctx context.Context) error {
		return p.oracleBreaker.Execute(ctx, func(ctx context.Context) error {
			var cerr error
			conf, cerr = p.oracle.Confirm(ctx, symbol, recent, action)
			return cerr
		})
	})
	if err != nil {
		return nil, err
	}
	return conf, nil
}

// latestMarker returns the most recent annotated bar and its age in bars.
func latestMarker(evs []repository.Evaluated) (repository.Evaluated, int, bool) {
	for i := len(evs) - 1; i >= 0; i-- {
		if evs[i].BuySignal > 0 || evs[i].SellSignal > 0 {
			return evs[i], len(evs) - 1 - i, true
		}
	}
	return repository.Evaluated{}, 0, false
}
