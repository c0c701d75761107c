package repository

import (
	"context"
	"time"

	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/domain/models"
)

// MarketData supplies historical bars on demand.
type MarketData interface {
	FetchBars(ctx context.Context, symbol, interval string, limit int) ([]models.Bar, error)
}

// BarFeed is a single live subscription for one symbol/interval. Events
// returns the feed channel; a read error closes it. Close must be idempotent.
type BarFeed interface {
	Events() <-chan models.BarEvent
	Err() <-chan error
	Close() error
}

// FeedDialer opens live subscriptions. The resilient connection layer owns
// reconnect policy; a dialer only knows how to establish one feed.
type FeedDialer interface {
	Dial(ctx context.Context, symbol, interval string) (BarFeed, error)
}

// Evaluated is one bar annotated by a strategy run. A non-zero BuySignal or
// SellSignal marks the candle as a trade marker at that price.
type Evaluated struct {
	Bar        models.Bar
	BuySignal  float64
	SellSignal float64
	Indicators map[string]float64
}

// Strategy evaluates a price series and annotates it with buy/sell markers.
type Strategy interface {
	Name() string
	Evaluate(bars []models.Bar) ([]Evaluated, error)
}

// OrderGateway places and closes orders at the exchange.
type OrderGateway interface {
	PlaceOrder(ctx context.Context, symbol string, side models.SignalAction, quantity float64) (*models.OrderFill, error)
	CloseOrder(ctx context.Context, symbol string, side models.SignalAction, quantity float64) (*models.OrderFill, error)
}

// Confirmation is the oracle's directional opinion on a proposed signal.
type Confirmation struct {
	Direction  models.SignalAction
	Confidence float64
	Reasoning  string
	// Unavailable marks a quota/rate-limit outcome. Distinguishable from an
	// error: the pipeline treats it as "no opinion", never as a failure.
	Unavailable bool
}

// Oracle is the optional AI confirmation collaborator.
type Oracle interface {
	Confirm(ctx context.Context, symbol string, recent []models.Bar, proposed models.SignalAction) (*Confirmation, error)
}

// SnapshotStore is the durable store behind state persistence.
type SnapshotStore interface {
	Save(ctx context.Context, snap *models.Snapshot) error
	Load(ctx context.Context, botID string) (*models.Snapshot, error)
	LoadAll(ctx context.Context) (map[string]*models.Snapshot, error)
	Delete(ctx context.Context, botID string) error
	Close() error
}

// TradeArchive stores closed trade records for history.
type TradeArchive interface {
	Archive(ctx context.Context, records []*models.TradeRecord) error
	Query(ctx context.Context, botID string, from, to time.Time, limit int) ([]*models.TradeRecord, error)
	Health(ctx context.Context) error
	Close() error
}

// EventExporter publishes trade records and alerts to an external bus.
type EventExporter interface {
	ExportTrade(ctx context.Context, rec *models.TradeRecord) error
	ExportAlert(ctx context.Context, alert *models.Alert) error
	Close() error
}

// Metrics is the process metrics recorder.
type Metrics interface {
	RecordTrade(botID, symbol string, pnl float64)
	RecordError(kind string)
	RecordAnalysis(botID string, seconds float64)
	RecordBotStatus(botID string, status models.BotStatus)
	RecordBreakerState(name string, state int)
	RecordEmergencyActive(active bool)
}
