// Package health aggregates per-worker outcomes into a rolling health view
// and raises alerts on an internal channel bus.
package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/domain/models"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/pkg/logger"
)

// errorWindow bounds how long an error counts as "recent".
const errorWindow = 5 * time.Minute

// latencySamples bounds the rolling execution latency average.
const latencySamples = 20

// Config tunes classification thresholds.
type Config struct {
	CheckInterval    time.Duration
	OfflineAfter     time.Duration
	ErrorThreshold   int
	WinRateFloor     float64
	MinSampleSize    int
	SlowExecution    time.Duration
	StalePositionAge time.Duration
	AlertBuffer      int
}

func DefaultConfig() Config {
	return Config{
		CheckInterval:    30 * time.Second,
		OfflineAfter:     5 * time.Minute,
		ErrorThreshold:   5,
		WinRateFloor:     35,
		MinSampleSize:    10,
		SlowExecution:    10 * time.Second,
		StalePositionAge: 24 * time.Hour,
		AlertBuffer:      64,
	}
}

type botStats struct {
	wins, losses int
	latencies    []time.Duration
	errorTimes   []time.Time
	connected    bool
	lastActivity time.Time
	positionOpen time.Time // zero when flat
	status       models.HealthStatus
	staleWarned  bool
}

// Monitor is process-wide and tolerates concurrent updates from all workers.
type Monitor struct {
	cfg Config
	log *logger.Logger

	mu     sync.Mutex
	bots   map[string]*botStats
	alerts chan *models.Alert
	now    func() time.Time
}

func NewMonitor(cfg Config, log *logger.Logger) *Monitor {
	if cfg.AlertBuffer <= 0 {
		cfg.AlertBuffer = DefaultConfig().AlertBuffer
	}
	return &Monitor{
		cfg:    cfg,
		log:    log.With("component", "health"),
		bots:   make(map[string]*botStats),
		alerts: make(chan *models.Alert, cfg.AlertBuffer),
		now:    time.Now,
	}
}

// Alerts is the monitor's notification bus. Slow consumers lose alerts
// rather than blocking workers.
func (m *Monitor) Alerts() <-chan *models.Alert { return m.alerts }

// Register adds a worker with a clean healthy record.
func (m *Monitor) Register(botID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bots[botID] = &botStats{
		connected:    true,
		lastActivity: m.now(),
		status:       models.HealthHealthy,
	}
}

// Deregister drops a stopped worker from the health view.
func (m *Monitor) Deregister(botID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.bots, botID)
}

// RecordTrade tallies a closed trade outcome.
func (m *Monitor) RecordTrade(botID string, rec *models.TradeRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.bots[botID]
	if !ok {
		return
	}
	if rec.Pnl >= 0 {
		s.wins++
	} else {
		s.losses++
	}
	s.lastActivity = m.now()
}

// RecordLatency tracks one analysis/execution duration and alerts when it
// exceeds the slow-execution threshold.
func (m *Monitor) RecordLatency(botID string, d time.Duration) {
	m.mu.Lock()
	s, ok := m.bots[botID]
	if !ok {
		m.mu.Unlock()
		return
	}
	s.latencies = append(s.latencies, d)
	if len(s.latencies) > latencySamples {
		s.latencies = s.latencies[len(s.latencies)-latencySamples:]
	}
	s.lastActivity = m.now()
	slow := m.cfg.SlowExecution > 0 && d > m.cfg.SlowExecution
	m.mu.Unlock()

	if slow {
		m.emit(botID, models.AlertSlowExecution, "", fmt.Sprintf("execution took %s", d.Round(time.Millisecond)))
	}
}

// RecordError counts one worker error and alerts when the recent count
// crosses the threshold.
func (m *Monitor) RecordError(botID string) {
	m.mu.Lock()
	s, ok := m.bots[botID]
	if !ok {
		m.mu.Unlock()
		return
	}
	now := m.now()
	s.errorTimes = append(s.errorTimes, now)
	s.errorTimes = pruneOld(s.errorTimes, now.Add(-errorWindow))
	crossed := len(s.errorTimes) == m.cfg.ErrorThreshold
	m.mu.Unlock()

	if crossed {
		m.emit(botID, models.AlertHighFailureRate, "", fmt.Sprintf("%d errors within %s", m.cfg.ErrorThreshold, errorWindow))
	}
}

// SetConnected records the worker's live feed status.
func (m *Monitor) SetConnected(botID string, connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.bots[botID]; ok {
		s.connected = connected
	}
}

// Touch marks worker activity without any other effect.
func (m *Monitor) Touch(botID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.bots[botID]; ok {
		s.lastActivity = m.now()
	}
}

// PositionOpened and PositionClosed bound the stale-position check.
func (m *Monitor) PositionOpened(botID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.bots[botID]; ok {
		s.positionOpen = m.now()
		s.staleWarned = false
	}
}

func (m *Monitor) PositionClosed(botID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.bots[botID]; ok {
		s.positionOpen = time.Time{}
		s.staleWarned = false
	}
}

// Health returns the current view of one worker.
func (m *Monitor) Health(botID string) (*models.BotHealth, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.bots[botID]
	if !ok {
		return nil, false
	}
	return m.view(botID, s), true
}

// Overview returns all workers' health, sorted by bot ID.
func (m *Monitor) Overview() []*models.BotHealth {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.BotHealth, 0, len(m.bots))
	for id, s := range m.bots {
		out = append(out, m.view(id, s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BotID < out[j].BotID })
	return out
}

// Run sweeps classifications until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	interval := m.cfg.CheckInterval
	if interval <= 0 {
		interval = DefaultConfig().CheckInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Sweep reclassifies every worker once, emitting status-change and
// stale-position alerts.
func (m *Monitor) Sweep() {
	type change struct {
		botID  string
		kind   models.AlertKind
		status models.HealthStatus
		msg    string
	}
	var changes []change

	m.mu.Lock()
	now := m.now()
	for id, s := range m.bots {
		s.errorTimes = pruneOld(s.errorTimes, now.Add(-errorWindow))
		next := m.classify(s, now)
		if next != s.status {
			changes = append(changes, change{
				botID: id, kind: models.AlertStatusChange, status: next,
				msg: fmt.Sprintf("health %s -> %s", s.status, next),
			})
			s.status = next
		}
		if !s.positionOpen.IsZero() && !s.staleWarned &&
			m.cfg.StalePositionAge > 0 && now.Sub(s.positionOpen) > m.cfg.StalePositionAge {
			s.staleWarned = true
			changes = append(changes, change{
				botID: id, kind: models.AlertStalePosition, status: next,
				msg: fmt.Sprintf("position open for %s", now.Sub(s.positionOpen).Round(time.Minute)),
			})
		}
	}
	m.mu.Unlock()

	for _, c := range changes {
		m.emit(c.botID, c.kind, c.status, c.msg)
	}
}

// classify must be called with the lock held.
func (m *Monitor) classify(s *botStats, now time.Time) models.HealthStatus {
	if m.cfg.OfflineAfter > 0 && now.Sub(s.lastActivity) > m.cfg.OfflineAfter {
		return models.HealthOffline
	}
	if !s.connected || len(s.errorTimes) >= m.cfg.ErrorThreshold {
		return models.HealthCritical
	}
	total := s.wins + s.losses
	if total >= m.cfg.MinSampleSize && winRate(s) < m.cfg.WinRateFloor {
		return models.HealthWarning
	}
	return models.HealthHealthy
}

// view must be called with the lock held.
func (m *Monitor) view(botID string, s *botStats) *models.BotHealth {
	return &models.BotHealth{
		BotID:        botID,
		Status:       s.status,
		WinRate:      winRate(s),
		SampleSize:   s.wins + s.losses,
		AvgLatency:   avgLatency(s.latencies),
		RecentErrors: len(s.errorTimes),
		Connected:    s.connected,
		LastActivity: s.lastActivity,
	}
}

func (m *Monitor) emit(botID string, kind models.AlertKind, status models.HealthStatus, msg string) {
	alert := &models.Alert{
		ID:      uuid.NewString(),
		BotID:   botID,
		Kind:    kind,
		Status:  status,
		Message: msg,
		At:      m.now(),
	}
	select {
	case m.alerts <- alert:
	default:
		m.log.Warn("alert bus full, dropping",
			logger.String("bot_id", botID), logger.String("kind", string(kind)))
	}
}

func winRate(s *botStats) float64 {
	total := s.wins + s.losses
	if total == 0 {
		return 0
	}
	return float64(s.wins) / float64(total) * 100
}

func avgLatency(ds []time.Duration) time.Duration {
	if len(ds) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range ds {
		sum += d
	}
	return sum / time.Duration(len(ds))
}

func pruneOld(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && ts[i].Before(cutoff) {
		i++
	}
	return ts[i:]
}
