// Package supervisor owns the collection of bot workers: their lifecycles,
// the wiring of risk, health, emergency and persistence services around each
// loop, and the restore-from-snapshot path on startup.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/domain/models"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/domain/repository"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/emergency"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/health"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/persistence"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/strategy"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/pkg/config"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/pkg/logger"
)

var validate = validator.New()

// Services bundles the shared collaborators injected into every worker.
// Everything here is constructed once at startup; nothing is a process
// global.
type Services struct {
	Cfg        *config.Config
	Market     repository.MarketData
	Dialer     repository.FeedDialer
	Gateway    repository.OrderGateway
	Oracle     repository.Oracle
	Strategies *strategy.Registry
	Health     *health.Monitor
	Emergency  *emergency.System
	Persist    *persistence.Manager
	Archive    repository.TradeArchive
	Exporter   repository.EventExporter
	Metrics    repository.Metrics
	Log        *logger.Logger
}

// Supervisor is the top-level orchestrator. Workers are mutually
// independent; the supervisor's lock guards only the collection itself.
type Supervisor struct {
	svc *Services
	log *logger.Logger

	mu      sync.Mutex
	workers map[string]*Worker
}

func New(svc *Services) *Supervisor {
	return &Supervisor{
		svc:     svc,
		log:     svc.Log.With("component", "supervisor"),
		workers: make(map[string]*Worker),
	}
}

// Start validates the config, builds its strategy and launches a new worker.
// Returns the worker's ID.
func (s *Supervisor) Start(ctx context.Context, cfg *models.BotConfig) (string, error) {
	if err := defaults.Set(cfg); err != nil {
		return "", fmt.Errorf("config defaults: %w", err)
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	cfg.Interval = repository.NormalizeInterval(cfg.Interval)
	if err := validate.Struct(cfg); err != nil {
		return "", fmt.Errorf("invalid bot config: %w", err)
	}

	strat, err := s.svc.Strategies.Build(cfg.Strategy, cfg.StrategyParams)
	if err != nil {
		return "", fmt.Errorf("strategy %q: %w", cfg.Strategy, err)
	}

	s.mu.Lock()
	if _, exists := s.workers[cfg.ID]; exists {
		s.mu.Unlock()
		return "", fmt.Errorf("bot %s already running", cfg.ID)
	}
	if len(s.workers) >= s.svc.Cfg.Engine.MaxBots {
		s.mu.Unlock()
		return "", fmt.Errorf("bot limit reached (%d)", s.svc.Cfg.Engine.MaxBots)
	}
	w := newWorker(cfg, strat, s.svc, s.onTradeClosed)
	s.workers[cfg.ID] = w
	s.mu.Unlock()

	if err := w.start(ctx); err != nil {
		s.mu.Lock()
		delete(s.workers, cfg.ID)
		s.mu.Unlock()
		return "", fmt.Errorf("start bot %s: %w", cfg.ID, err)
	}
	s.log.Info("bot started",
		logger.String("bot_id", cfg.ID),
		logger.String("symbol", cfg.Symbol),
		logger.String("strategy", cfg.Strategy))
	return cfg.ID, nil
}

// Stop shuts one worker down synchronously and removes it.
func (s *Supervisor) Stop(ctx context.Context, botID string) error {
	s.mu.Lock()
	w, ok := s.workers[botID]
	if ok {
		delete(s.workers, botID)
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("bot %s not found", botID)
	}
	w.stop(ctx)
	return nil
}

// Restart stops a worker and starts a fresh one with the same config. This
// is the only way out of the terminal error state.
func (s *Supervisor) Restart(ctx context.Context, botID string) error {
	s.mu.Lock()
	w, ok := s.workers[botID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("bot %s not found", botID)
	}
	cfg := *w.cfg
	if err := s.Stop(ctx, botID); err != nil {
		return err
	}
	_, err := s.Start(ctx, &cfg)
	return err
}

// RestoreAll relaunches workers from persisted snapshots. Stopped workers
// stay stopped; their snapshots remain for history until pruned.
func (s *Supervisor) RestoreAll(ctx context.Context) error {
	snaps, err := s.svc.Persist.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load snapshots: %w", err)
	}
	for botID, snap := range snaps {
		if snap.Runtime.Status == models.StatusStopped {
			continue
		}
		if err := s.startRestored(ctx, snap); err != nil {
			s.log.Error("restore failed, skipping bot",
				logger.String("bot_id", botID), logger.Error(err))
		}
	}
	return nil
}

func (s *Supervisor) startRestored(ctx context.Context, snap *models.Snapshot) error {
	cfg := snap.Config
	strat, err := s.svc.Strategies.Build(cfg.Strategy, cfg.StrategyParams)
	if err != nil {
		return fmt.Errorf("strategy %q: %w", cfg.Strategy, err)
	}

	s.mu.Lock()
	if _, exists := s.workers[cfg.ID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("bot %s already running", cfg.ID)
	}
	w := newWorker(&cfg, strat, s.svc, s.onTradeClosed)
	s.workers[cfg.ID] = w
	s.mu.Unlock()

	w.restore(snap)
	if err := w.start(ctx); err != nil {
		s.mu.Lock()
		delete(s.workers, cfg.ID)
		s.mu.Unlock()
		return err
	}
	s.log.Info("bot restored",
		logger.String("bot_id", cfg.ID),
		logger.String("symbol", cfg.Symbol))
	return nil
}

// EmergencyStopAll fires the manual kill switch for every running worker.
func (s *Supervisor) EmergencyStopAll(reason string) *models.EmergencyEvent {
	return s.svc.Emergency.Trigger(models.TriggerManual, reason, nil)
}

// Suspend sets the cooperative suspension flag. Empty ids means all workers.
func (s *Supervisor) Suspend(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(ids) == 0 {
		for _, w := range s.workers {
			w.suspended.Store(true)
		}
		return
	}
	for _, id := range ids {
		if w, ok := s.workers[id]; ok {
			w.suspended.Store(true)
		}
	}
}

// Resume clears suspension flags after emergency resolution.
func (s *Supervisor) Resume(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(ids) == 0 {
		for _, w := range s.workers {
			w.suspended.Store(false)
		}
		return
	}
	for _, id := range ids {
		if w, ok := s.workers[id]; ok {
			w.suspended.Store(false)
		}
	}
}

// AckRisk clears a pending adapt recommendation on one worker's guardian.
func (s *Supervisor) AckRisk(botID string) error {
	s.mu.Lock()
	w, ok := s.workers[botID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("bot %s not found", botID)
	}
	w.guardian.Acknowledge()
	s.log.Info("risk adaptation acknowledged", logger.String("bot_id", botID))
	return nil
}

// Run consumes emergency suspension commands until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-s.svc.Emergency.Commands():
			if cmd.Resume {
				s.log.Info("emergency cleared, resuming workers",
					logger.Strings("bot_ids", cmd.BotIDs))
				s.Resume(cmd.BotIDs)
				continue
			}
			s.log.Error("suspending workers on emergency command",
				logger.String("event", cmd.Event.ID),
				logger.Strings("bot_ids", cmd.BotIDs))
			s.Suspend(cmd.BotIDs)
		}
	}
}

// StopAll shuts every worker down, used during process shutdown.
func (s *Supervisor) StopAll(ctx context.Context) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.workers))
	for id := range s.workers {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	for _, id := range ids {
		if err := s.Stop(ctx, id); err != nil {
			s.log.Error("stop failed", logger.String("bot_id", id), logger.Error(err))
		}
	}
}

// onTradeClosed runs supervisory side effects of a closed trade: archive,
// export and the aggregate drawdown check. None of it blocks the worker.
func (s *Supervisor) onTradeClosed(rec *models.TradeRecord) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.svc.Archive.Archive(ctx, []*models.TradeRecord{rec}); err != nil {
			s.log.Error("trade archive failed", logger.String("trade", rec.ID), logger.Error(err))
		}
		if err := s.svc.Exporter.ExportTrade(ctx, rec); err != nil {
			s.log.Error("trade export failed", logger.String("trade", rec.ID), logger.Error(err))
		}
	}()

	var totalPnl, totalCapital float64
	s.mu.Lock()
	for _, w := range s.workers {
		totalPnl += w.guardian.State().SessionPnl
		totalCapital += w.cfg.InitialCapital
	}
	s.mu.Unlock()
	s.svc.Emergency.ReportPnl(totalPnl, totalCapital)
}

// Snapshots implements persistence.Source.
func (s *Supervisor) Snapshots() []*models.Snapshot {
	s.mu.Lock()
	workers := make([]*Worker, 0, len(s.workers))
	for _, w := range s.workers {
		workers = append(workers, w)
	}
	s.mu.Unlock()

	out := make([]*models.Snapshot, len(workers))
	for i, w := range workers {
		out[i] = w.snapshot()
	}
	return out
}

// Running implements persistence.Source.
func (s *Supervisor) Running() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool, len(s.workers))
	for id := range s.workers {
		out[id] = true
	}
	return out
}

// BotView is the read-only projection served over the API.
type BotView struct {
	Config       models.BotConfig `json:"config"`
	Status       models.BotStatus `json:"status"`
	Position     *models.Position `json:"position,omitempty"`
	Risk         models.RiskState `json:"risk"`
	Suspended    bool             `json:"suspended"`
	LastActivity time.Time        `json:"last_activity"`
}

// List returns a view of every running worker.
func (s *Supervisor) List() []*BotView {
	s.mu.Lock()
	workers := make([]*Worker, 0, len(s.workers))
	for _, w := range s.workers {
		workers = append(workers, w)
	}
	s.mu.Unlock()

	out := make([]*BotView, len(workers))
	for i, w := range workers {
		out[i] = w.view()
	}
	return out
}

// Get returns one worker's view.
func (s *Supervisor) Get(botID string) (*BotView, error) {
	s.mu.Lock()
	w, ok := s.workers[botID]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("bot %s not found", botID)
	}
	return w.view(), nil
}

// Logs returns up to limit recent entries of one worker's bounded log.
func (s *Supervisor) Logs(botID string, limit int) ([]models.LogEntry, error) {
	s.mu.Lock()
	w, ok := s.workers[botID]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("bot %s not found", botID)
	}
	entries := w.ring.Entries(limit)
	out := make([]models.LogEntry, len(entries))
	for i, e := range entries {
		out[i] = models.LogEntry{Time: e.Time, Level: e.Level, Message: e.Message}
	}
	return out, nil
}

func (w *Worker) view() *BotView {
	w.mu.Lock()
	var pos *models.Position
	if w.position != nil {
		cp := *w.position
		pos = &cp
	}
	status := w.status
	last := w.lastActivity
	w.mu.Unlock()
	return &BotView{
		Config:       *w.cfg,
		Status:       status,
		Position:     pos,
		Risk:         w.guardian.State(),
		Suspended:    w.suspended.Load(),
		LastActivity: last,
	}
}
