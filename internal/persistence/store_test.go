package persistence

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/domain/models"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/pkg/logger"
)

// memStore keeps raw JSON so decode failures surface the way the Redis
// store surfaces them: nil entries in LoadAll.
type memStore struct {
	m map[string][]byte
}

func newMemStore() *memStore { return &memStore{m: make(map[string][]byte)} }

func (s *memStore) Save(ctx context.Context, snap *models.Snapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	s.m[snap.BotID] = b
	return nil
}

func (s *memStore) Load(ctx context.Context, botID string) (*models.Snapshot, error) {
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
	delete(s.m, botID)
	return nil
}

func (s *memStore) Close() error { return nil }

func newTestManager(t *testing.T, cfg Config, store *memStore) (*Manager, *time.Time) {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "console"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	m := NewManager(cfg, store, log)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	return m, &now
}

func sampleSnapshot(botID string, lastActivity time.Time) *models.Snapshot {
	return &models.Snapshot{
		Version: models.SnapshotVersion,
		BotID:   botID,
		Config: models.BotConfig{
			ID: botID, Symbol: "BTCUSDT", Interval: "1m", Strategy: "sma-cross",
			InitialCapital: 1000, Leverage: 1, TakeProfitPct: 2, StopLossPct: 1,
			MaxConsecutiveLosses: 3, DailyDrawdownLimit: 10,
			FailurePolicy: models.PolicyCooldown, CooldownPeriod: 30 * time.Minute,
			MinBars: 50, SignalMaxAgeBars: 3, RecheckInterval: time.Minute,
		},
		Runtime: models.RuntimeSnapshot{
			Status:       models.StatusAnalyzing,
			LastActivity: lastActivity,
		},
		Risk:         models.RiskState{ConsecutiveLosses: 2, SessionPnl: -40},
		LastActivity: lastActivity,
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := newMemStore()
	m, now := newTestManager(t, DefaultConfig(), store)

	orig := sampleSnapshot("bot-1", *now)
	orig.Runtime.Position = &models.Position{
		ID: "pos-1", BotID: "bot-1", Symbol: "BTCUSDT", Side: models.ActionUp,
		EntryPrice: 100, Quantity: 1, StopLoss: 99, TakeProfit: 102,
	}
	if err := m.SaveNow(context.Background(), orig); err != nil {
		t.Fatalf("save: %v", err)
	}

	all, err := m.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	got, ok := all["bot-1"]
	if !ok {
		t.Fatal("snapshot missing after save")
	}
	if got.Runtime.Status != models.StatusAnalyzing {
		t.Fatalf("status = %s", got.Runtime.Status)
	}
	if got.Runtime.Position == nil || got.Runtime.Position.EntryPrice != 100 {
		t.Fatalf("position = %+v", got.Runtime.Position)
	}
	if got.Risk.ConsecutiveLosses != 2 || got.Risk.SessionPnl != -40 {
		t.Fatalf("risk = %+v", got.Risk)
	}
}

func TestLoadMigratesVersionOne(t *testing.T) {
	store := newMemStore()
	m, _ := newTestManager(t, DefaultConfig(), store)

	store.m["bot-old"] = []byte(`{
		"version": 1,
		"bot_id": "bot-old",
		"config": {"id":"bot-old","symbol":"ETHUSDT","interval":"5m","strategy":"momentum",
			"initial_capital":500,"leverage":1,"take_profit_pct":3,"stop_loss_pct":1.5},
		"runtime": {"status":"idle"},
		"risk": {"failed_trades": 2, "session_pnl": -15.5}
	}`)

	all, err := m.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	got, ok := all["bot-old"]
	if !ok || got == nil {
		t.Fatal("v1 snapshot must be migrated, not dropped")
	}
	if got.Version != models.SnapshotVersion {
		t.Fatalf("version = %d, want %d", got.Version, models.SnapshotVersion)
	}
	if got.Risk.ConsecutiveLosses != 2 || got.Risk.SessionPnl != -15.5 {
		t.Fatalf("migrated risk = %+v", got.Risk)
	}
	if got.Config.MaxConsecutiveLosses != 3 || got.Config.FailurePolicy != models.PolicyCooldown {
		t.Fatalf("migrated config defaults = %+v", got.Config)
	}
}

func TestLoadDropsUnrecognizable(t *testing.T) {
	store := newMemStore()
	m, now := newTestManager(t, DefaultConfig(), store)

	store.m["bot-future"] = []byte(`{"version": 99, "bot_id": "bot-future"}`)
	store.m["bot-garbage"] = []byte(`not json at all`)
	good := sampleSnapshot("bot-good", *now)
	if err := m.SaveNow(context.Background(), good); err != nil {
		t.Fatalf("save: %v", err)
	}

	all, err := m.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("loaded %d snapshots, want only the good one", len(all))
	}
	if _, ok := all["bot-good"]; !ok {
		t.Fatal("good snapshot must survive bad neighbors")
	}
}

func TestPruneOldestFirstAndRetention(t *testing.T) {
	store := newMemStore()
	cfg := DefaultConfig()
	cfg.MaxSnapshots = 2
	cfg.Retention = 24 * time.Hour
	m, now := newTestManager(t, cfg, store)
	ctx := context.Background()

	// bot-ancient is past retention; bot-old is oldest of the rest.
	_ = m.SaveNow(ctx, sampleSnapshot("bot-ancient", now.Add(-48*time.Hour)))
	_ = m.SaveNow(ctx, sampleSnapshot("bot-old", now.Add(-2*time.Hour)))
	_ = m.SaveNow(ctx, sampleSnapshot("bot-mid", now.Add(-time.Hour)))
	_ = m.SaveNow(ctx, sampleSnapshot("bot-new", *now))

	m.Prune(ctx, map[string]bool{})

	if _, ok := store.m["bot-ancient"]; ok {
		t.Fatal("past-retention snapshot must be pruned")
	}
	if _, ok := store.m["bot-old"]; ok {
		t.Fatal("oldest-by-activity must be pruned over the cap")
	}
	if _, ok := store.m["bot-mid"]; !ok {
		t.Fatal("bot-mid should survive")
	}
	if _, ok := store.m["bot-new"]; !ok {
		t.Fatal("bot-new should survive")
	}
}

func TestPruneSkipsRunning(t *testing.T) {
	store := newMemStore()
	cfg := DefaultConfig()
	cfg.Retention = time.Hour
	m, now := newTestManager(t, cfg, store)
	ctx := context.Background()

	_ = m.SaveNow(ctx, sampleSnapshot("bot-running", now.Add(-5*time.Hour)))
	m.Prune(ctx, map[string]bool{"bot-running": true})

	if _, ok := store.m["bot-running"]; !ok {
		t.Fatal("running workers must never be pruned")
	}
}
