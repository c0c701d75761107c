package health

import (
	"testing"
	"time"

	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/domain/models"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/pkg/logger"
)

func newTestMonitor(t *testing.T, cfg Config) (*Monitor, *time.Time) {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "console"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	m := NewMonitor(cfg, log)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	return m, &now
}

func drainAlerts(m *Monitor) []*models.Alert {
	var out []*models.Alert
	for {
		select {
		case a := <-m.Alerts():
			out = append(out, a)
		default:
			return out
		}
	}
}

func TestClassifyOfflineAfterInactivity(t *testing.T) {
	m, now := newTestMonitor(t, DefaultConfig())
	m.Register("bot-1")

	*now = now.Add(6 * time.Minute)
	m.Sweep()

	h, ok := m.Health("bot-1")
	if !ok || h.Status != models.HealthOffline {
		t.Fatalf("status = %v, want offline", h)
	}
	alerts := drainAlerts(m)
	if len(alerts) != 1 || alerts[0].Kind != models.AlertStatusChange {
		t.Fatalf("alerts = %+v, want one status change", alerts)
	}
}

func TestClassifyCriticalOnDisconnect(t *testing.T) {
	m, _ := newTestMonitor(t, DefaultConfig())
	m.Register("bot-1")
	m.SetConnected("bot-1", false)
	m.Sweep()

	h, _ := m.Health("bot-1")
	if h.Status != models.HealthCritical {
		t.Fatalf("status = %s, want critical", h.Status)
	}
}

func TestClassifyCriticalOnErrorThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ErrorThreshold = 3
	m, _ := newTestMonitor(t, cfg)
	m.Register("bot-1")

	for i := 0; i < 3; i++ {
		m.RecordError("bot-1")
	}
	m.Sweep()

	h, _ := m.Health("bot-1")
	if h.Status != models.HealthCritical {
		t.Fatalf("status = %s, want critical", h.Status)
	}
	var highFailure bool
	for _, a := range drainAlerts(m) {
		if a.Kind == models.AlertHighFailureRate {
			highFailure = true
		}
	}
	if !highFailure {
		t.Fatal("want a high_failure_rate alert at the threshold")
	}
}

func TestClassifyWarningOnLowWinRate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSampleSize = 4
	cfg.WinRateFloor = 50
	m, _ := newTestMonitor(t, cfg)
	m.Register("bot-1")

	for i := 0; i < 3; i++ {
		m.RecordTrade("bot-1", &models.TradeRecord{Pnl: -10})
	}
	m.RecordTrade("bot-1", &models.TradeRecord{Pnl: 20})
	m.Sweep()

	h, _ := m.Health("bot-1")
	if h.Status != models.HealthWarning {
		t.Fatalf("status = %s, want warning (win rate %v)", h.Status, h.WinRate)
	}
}

func TestLowWinRateNeedsSampleSize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSampleSize = 10
	m, _ := newTestMonitor(t, cfg)
	m.Register("bot-1")

	m.RecordTrade("bot-1", &models.TradeRecord{Pnl: -10})
	m.Sweep()

	h, _ := m.Health("bot-1")
	if h.Status != models.HealthHealthy {
		t.Fatalf("status = %s, small sample must stay healthy", h.Status)
	}
}

func TestSlowExecutionAlert(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SlowExecution = time.Second
	m, _ := newTestMonitor(t, cfg)
	m.Register("bot-1")

	m.RecordLatency("bot-1", 2*time.Second)

	alerts := drainAlerts(m)
	if len(alerts) != 1 || alerts[0].Kind != models.AlertSlowExecution {
		t.Fatalf("alerts = %+v, want one slow_execution", alerts)
	}
}

func TestStalePositionAlertOnce(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StalePositionAge = time.Hour
	m, now := newTestMonitor(t, cfg)
	m.Register("bot-1")
	m.PositionOpened("bot-1")

	*now = now.Add(2 * time.Hour)
	m.Touch("bot-1") // keep it from going offline
	m.Sweep()
	m.Sweep()

	var stale int
	for _, a := range drainAlerts(m) {
		if a.Kind == models.AlertStalePosition {
			stale++
		}
	}
	if stale != 1 {
		t.Fatalf("stale alerts = %d, want exactly 1", stale)
	}
}

func TestDeregisterDropsWorker(t *testing.T) {
	m, _ := newTestMonitor(t, DefaultConfig())
	m.Register("bot-1")
	m.Deregister("bot-1")
	if _, ok := m.Health("bot-1"); ok {
		t.Fatal("deregistered worker still visible")
	}
	if got := len(m.Overview()); got != 0 {
		t.Fatalf("overview size = %d, want 0", got)
	}
}
