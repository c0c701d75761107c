// Package persistence schedules snapshot writes and enforces pruning policy
// over the durable snapshot store.
package persistence

import (
	"context"
	"sort"
	"time"

	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/domain/models"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/domain/repository"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/pkg/logger"
)

// Config tunes the snapshot schedule and pruning policy.
type Config struct {
	Interval     time.Duration // periodic flush interval
	MaxSnapshots int           // retained entries; oldest by activity pruned first
	Retention    time.Duration // inactive entries beyond this are dropped unless running
}

func DefaultConfig() Config {
	return Config{
		Interval:     30 * time.Second,
		MaxSnapshots: 100,
		Retention:    7 * 24 * time.Hour,
	}
}

// Source supplies the current snapshots of all running workers.
type Source interface {
	Snapshots() []*models.Snapshot
	Running() map[string]bool
}

// Manager owns the store. Workers call SaveNow on significant changes; Run
// flushes everything periodically.
type Manager struct {
	cfg   Config
	store repository.SnapshotStore
	log   *logger.Logger
	now   func() time.Time
}

func NewManager(cfg Config, store repository.SnapshotStore, log *logger.Logger) *Manager {
	if cfg.MaxSnapshots <= 0 {
		cfg.MaxSnapshots = DefaultConfig().MaxSnapshots
	}
	return &Manager{
		cfg:   cfg,
		store: store,
		log:   log.With("component", "persistence"),
		now:   time.Now,
	}
}

// SaveNow persists one worker's snapshot immediately.
func (m *Manager) SaveNow(ctx context.Context, snap *models.Snapshot) error {
	snap.Version = models.SnapshotVersion
	snap.SavedAt = m.now()
	if err := m.store.Save(ctx, snap); err != nil {
		m.log.Error("snapshot save failed",
			logger.String("bot_id", snap.BotID), logger.Error(err))
		return err
	}
	return nil
}

// Delete removes a worker's snapshot, used when a bot is removed for good.
func (m *Manager) Delete(ctx context.Context, botID string) error {
	return m.store.Delete(ctx, botID)
}

// LoadAll returns every restorable snapshot. Unrecognizable entries are
// dropped with a warning rather than failing the whole load.
func (m *Manager) LoadAll(ctx context.Context) (map[string]*models.Snapshot, error) {
	raw, err := m.store.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*models.Snapshot, len(raw))
	for botID, snap := range raw {
		if snap == nil {
			m.log.Warn("dropping unrecognizable snapshot", logger.String("bot_id", botID))
			continue
		}
		out[botID] = snap
	}
	return out, nil
}

// Run flushes and prunes on the configured interval until ctx is cancelled.
// A final flush happens on the way out.
func (m *Manager) Run(ctx context.Context, src Source) {
	interval := m.cfg.Interval
	if interval <= 0 {
		interval = DefaultConfig().Interval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			m.Flush(flushCtx, src)
			cancel()
			return
		case <-ticker.C:
			m.Flush(ctx, src)
			m.Prune(ctx, src.Running())
		}
	}
}

// Flush saves every running worker's current snapshot.
func (m *Manager) Flush(ctx context.Context, src Source) {
	for _, snap := range src.Snapshots() {
		_ = m.SaveNow(ctx, snap)
	}
}

// Prune drops entries beyond the retained count, oldest by activity first,
// and entries inactive past the retention window. Running workers are never
// pruned.
func (m *Manager) Prune(ctx context.Context, running map[string]bool) {
	all, err := m.store.LoadAll(ctx)
	if err != nil {
		m.log.Error("prune load failed", logger.Error(err))
		return
	}

	type aged struct {
		botID string
		at    time.Time
	}
	var stopped []aged
	now := m.now()
	removed := 0
	for botID, snap := range all {
		if snap == nil || running[botID] {
			continue
		}
		if m.cfg.Retention > 0 && now.Sub(snap.LastActivity) > m.cfg.Retention {
			m.remove(ctx, botID, "past retention window")
			removed++
			continue
		}
		stopped = append(stopped, aged{botID: botID, at: snap.LastActivity})
	}

	over := len(all) - removed - m.cfg.MaxSnapshots
	if over <= 0 {
		return
	}
	sort.Slice(stopped, func(i, j int) bool { return stopped[i].at.Before(stopped[j].at) })
	for i := 0; i < over && i < len(stopped); i++ {
		m.remove(ctx, stopped[i].botID, "over retained count")
	}
}

func (m *Manager) remove(ctx context.Context, botID, why string) {
	if err := m.store.Delete(ctx, botID); err != nil {
		m.log.Error("prune delete failed", logger.String("bot_id", botID), logger.Error(err))
		return
	}
	m.log.Info("pruned snapshot", logger.String("bot_id", botID), logger.String("why", why))
}
