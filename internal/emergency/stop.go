// Package emergency implements the global kill switch. It is independent of
// per-worker cooldowns: any trigger marks the system active, records an
// event and commands the supervisor to suspend the named workers.
package emergency

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/domain/models"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/domain/repository"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/pkg/logger"
)

// Config tunes the trigger thresholds.
type Config struct {
	DrawdownLimitPct  float64       // aggregate session drawdown as % of capital
	ErrorThreshold    int           // consecutive errors per category
	AnomalyMovePct    float64       // single-tick move as % of previous price
	AutoResolveWindow time.Duration // quiet period before auto-deactivation
	SweepInterval     time.Duration
}

func DefaultConfig() Config {
	return Config{
		DrawdownLimitPct:  20,
		ErrorThreshold:    10,
		AnomalyMovePct:    10,
		AutoResolveWindow: 10 * time.Minute,
		SweepInterval:     30 * time.Second,
	}
}

// Command instructs the supervisor. Without Resume it suspends the named
// workers; with Resume it lifts suspension after auto-deactivation. Empty
// BotIDs means every running worker.
type Command struct {
	Event  *models.EmergencyEvent
	BotIDs []string
	Resume bool
}

// System is process-wide; all workers report into it concurrently.
type System struct {
	cfg     Config
	log     *logger.Logger
	metrics repository.Metrics

	mu        sync.Mutex
	active    bool
	events    []*models.EmergencyEvent
	streaks   map[models.ErrorCategory]int
	lastPrice map[string]float64
	commands  chan Command
	now       func() time.Time
}

func NewSystem(cfg Config, metrics repository.Metrics, log *logger.Logger) *System {
	return &System{
		cfg:       cfg,
		log:       log.With("component", "emergency"),
		metrics:   metrics,
		streaks:   make(map[models.ErrorCategory]int),
		lastPrice: make(map[string]float64),
		commands:  make(chan Command, 8),
		now:       time.Now,
	}
}

// Commands is consumed by the supervisor. Suspension is cooperative: workers
// also check Active before passing their risk gate.
func (s *System) Commands() <-chan Command { return s.commands }

// Active reports the global kill-switch flag.
func (s *System) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Trigger activates the system with a manual or programmatic cause.
func (s *System) Trigger(kind models.TriggerKind, message string, botIDs []string) *models.EmergencyEvent {
	s.mu.Lock()
	ev := &models.EmergencyEvent{
		ID:          uuid.NewString(),
		Kind:        kind,
		Message:     message,
		BotIDs:      botIDs,
		TriggeredAt: s.now(),
	}
	s.events = append(s.events, ev)
	s.active = true
	s.mu.Unlock()

	s.metrics.RecordEmergencyActive(true)
	s.log.Error("emergency stop triggered",
		logger.String("kind", string(kind)), logger.String("message", message))

	select {
	case s.commands <- Command{Event: ev, BotIDs: botIDs}:
	default:
		s.log.Warn("command channel full, suspension relies on cooperative flag")
	}
	return ev
}

// ReportPnl checks the aggregate session drawdown against the limit.
func (s *System) ReportPnl(sessionPnl, capital float64) {
	if capital <= 0 || sessionPnl >= 0 {
		return
	}
	pct := -sessionPnl / capital * 100
	if pct < s.cfg.DrawdownLimitPct {
		return
	}
	s.mu.Lock()
	already := s.active
	s.mu.Unlock()
	if already {
		return
	}
	s.Trigger(models.TriggerDrawdown,
		fmt.Sprintf("aggregate drawdown %.1f%% breached %.1f%% limit", pct, s.cfg.DrawdownLimitPct), nil)
}

// ReportError advances the consecutive counter for one category; the
// threshold fires a stop and resets that category.
func (s *System) ReportError(cat models.ErrorCategory) {
	s.mu.Lock()
	s.streaks[cat]++
	fire := s.streaks[cat] >= s.cfg.ErrorThreshold
	if fire {
		s.streaks[cat] = 0
	}
	s.mu.Unlock()

	if fire {
		s.Trigger(models.TriggerErrors,
			fmt.Sprintf("%d consecutive %s errors", s.cfg.ErrorThreshold, cat), nil)
	}
}

// ReportSuccess breaks the consecutive-error streak for one category.
func (s *System) ReportSuccess(cat models.ErrorCategory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streaks[cat] = 0
}

// ObservePrice watches for a single-tick move beyond the anomaly threshold.
func (s *System) ObservePrice(symbol string, price float64) {
	s.mu.Lock()
	prev, ok := s.lastPrice[symbol]
	s.lastPrice[symbol] = price
	active := s.active
	s.mu.Unlock()

	if !ok || prev <= 0 || active || s.cfg.AnomalyMovePct <= 0 {
		return
	}
	move := (price - prev) / prev * 100
	if move < 0 {
		move = -move
	}
	if move >= s.cfg.AnomalyMovePct {
		s.Trigger(models.TriggerAnomaly,
			fmt.Sprintf("%s moved %.1f%% in one tick", symbol, move), nil)
	}
}

// Resolve flips one event's resolved flag.
func (s *System) Resolve(eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range s.events {
		if ev.ID == eventID {
			if !ev.Resolved {
				ev.Resolved = true
				ev.ResolvedAt = s.now()
			}
			return nil
		}
	}
	return fmt.Errorf("emergency event %s not found", eventID)
}

// Events returns a copy of the event log, newest last.
func (s *System) Events() []*models.EmergencyEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.EmergencyEvent, len(s.events))
	for i, ev := range s.events {
		c := *ev
		out[i] = &c
	}
	return out
}

// Run sweeps for auto-deactivation until ctx is cancelled.
func (s *System) Run(ctx context.Context) {
	interval := s.cfg.SweepInterval
	if interval <= 0 {
		interval = DefaultConfig().SweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep deactivates the flag once every event is resolved and no event fired
// within the trailing window.
func (s *System) Sweep() {
	s.mu.Lock()
	deactivate := s.active
	now := s.now()
	for _, ev := range s.events {
		if !ev.Resolved {
			deactivate = false
			break
		}
		if now.Sub(ev.TriggeredAt) < s.cfg.AutoResolveWindow {
			deactivate = false
			break
		}
	}
	if deactivate {
		s.active = false
	}
	s.mu.Unlock()

	if deactivate {
		s.metrics.RecordEmergencyActive(false)
		s.log.Info("emergency stop auto-deactivated")
		select {
		case s.commands <- Command{Resume: true}:
		default:
			s.log.Warn("command channel full, workers stay suspended until manual resume")
		}
	}
}
