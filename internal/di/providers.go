package di

import (
	"context"
	"fmt"
	"time"

	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/domain/repository"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/emergency"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/handler/api"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/health"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/persistence"
	internalrepo "github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/repository"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/service/binance"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/service/gateway"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/service/oracle"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/strategy"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/supervisor"
	pkgch "github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/pkg/clickhouse"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/pkg/config"
	xhttp "github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/pkg/http"
	pkgkafka "github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/pkg/kafka"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/pkg/logger"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/pkg/metrics"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/pkg/server"
)

// ProvideLogger creates the root structured logger.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideMarketData creates the Binance REST client.
func ProvideMarketData(cfg *config.Config) repository.MarketData {
	return binance.NewClient(cfg.MarketData.RESTURL, cfg.MarketData.Timeout)
}

// ProvideFeedDialer creates the Binance websocket dialer.
func ProvideFeedDialer(cfg *config.Config) repository.FeedDialer {
	return binance.NewDialer(cfg.MarketData.WebsocketURL)
}

// ProvideGateway creates the order execution client.
func ProvideGateway(cfg *config.Config) repository.OrderGateway {
	return gateway.NewClient(gateway.Config{
		BaseURL: cfg.Gateway.BaseURL,
		APIKey:  cfg.Gateway.APIKey,
		Timeout: cfg.Gateway.Timeout,
	})
}

// ProvideOracle creates the AI confirmation client.
func ProvideOracle(cfg *config.Config, log *logger.Logger) repository.Oracle {
	return oracle.NewClient(oracle.Config{
		BaseURL:      cfg.Oracle.BaseURL,
		APIKey:       cfg.Oracle.APIKey,
		Timeout:      cfg.Oracle.Timeout,
		CacheTTL:     cfg.Oracle.CacheTTL,
		RateCapacity: cfg.Oracle.RateCapacity,
		RatePerSec:   cfg.Oracle.RatePerSec,
		RecentBars:   cfg.Oracle.RecentBars,
	}, log)
}

// ProvideStrategies creates the registry with the built-in strategies.
func ProvideStrategies() *strategy.Registry {
	return strategy.NewRegistry()
}

// ProvideSnapshotStore creates the Redis snapshot store.
func ProvideSnapshotStore(cfg *config.Config) (repository.SnapshotStore, error) {
	store, err := internalrepo.NewRedisSnapshotStore(internalrepo.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Prefix:   cfg.Redis.Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("redis snapshot store: %w", err)
	}
	return store, nil
}

// ProvideTradeArchive creates the ClickHouse trade archive, or a noop when
// ClickHouse is disabled.
func ProvideTradeArchive(cfg *config.Config) (repository.TradeArchive, error) {
	if !cfg.ClickHouse.Enabled {
		return internalrepo.NoopArchive{}, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.Schema(cfg.ClickHouse.Database, cfg.ClickHouse.Table)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return internalrepo.NewClickHouseArchive(client.DB(), cfg.ClickHouse.Table), nil
}

// ProvideExporter creates the Kafka event exporter, or a noop when Kafka is
// disabled.
func ProvideExporter(cfg *config.Config) (repository.EventExporter, error) {
	if !cfg.Kafka.Enabled {
		return internalrepo.NoopExporter{}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.Acks),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return internalrepo.NewKafkaExporter(producer, cfg.Kafka.TradeTopic, cfg.Kafka.AlertTopic), nil
}

// ProvideHealthMonitor creates the bot health monitor.
func ProvideHealthMonitor(cfg *config.Config, log *logger.Logger) *health.Monitor {
	return health.NewMonitor(health.Config{
		CheckInterval:    cfg.Health.CheckInterval,
		OfflineAfter:     cfg.Health.OfflineAfter,
		ErrorThreshold:   cfg.Health.ErrorThreshold,
		WinRateFloor:     cfg.Health.WinRateFloor,
		MinSampleSize:    cfg.Health.MinSampleSize,
		SlowExecution:    cfg.Health.SlowExecution,
		StalePositionAge: cfg.Health.StalePositionAge,
		AlertBuffer:      cfg.Health.AlertBuffer,
	}, log)
}

// ProvideEmergency creates the emergency stop system.
func ProvideEmergency(cfg *config.Config, m repository.Metrics, log *logger.Logger) *emergency.System {
	return emergency.NewSystem(emergency.Config{
		DrawdownLimitPct:  cfg.Emergency.DrawdownLimitPct,
		ErrorThreshold:    cfg.Emergency.ErrorThreshold,
		AnomalyMovePct:    cfg.Emergency.AnomalyMovePct,
		AutoResolveWindow: cfg.Emergency.AutoResolveWindow,
		SweepInterval:     cfg.Emergency.SweepInterval,
	}, m, log)
}

// ProvidePersistence creates the snapshot persistence manager.
func ProvidePersistence(cfg *config.Config, store repository.SnapshotStore, log *logger.Logger) *persistence.Manager {
	return persistence.NewManager(persistence.Config{
		Interval:     cfg.Persistence.Interval,
		MaxSnapshots: cfg.Persistence.MaxSnapshots,
		Retention:    cfg.Persistence.Retention,
	}, store, log)
}

// ProvideSupervisor wires the worker collection and its collaborators.
func ProvideSupervisor(
	cfg *config.Config,
	market repository.MarketData,
	dialer repository.FeedDialer,
	gw repository.OrderGateway,
	oracle repository.Oracle,
	strategies *strategy.Registry,
	monitor *health.Monitor,
	em *emergency.System,
	persist *persistence.Manager,
	archive repository.TradeArchive,
	exporter repository.EventExporter,
	m repository.Metrics,
	log *logger.Logger,
) *supervisor.Supervisor {
	return supervisor.New(&supervisor.Services{
		Cfg:        cfg,
		Market:     market,
		Dialer:     dialer,
		Gateway:    gw,
		Oracle:     oracle,
		Strategies: strategies,
		Health:     monitor,
		Emergency:  em,
		Persist:    persist,
		Archive:    archive,
		Exporter:   exporter,
		Metrics:    m,
		Log:        log,
	})
}

// ProvideBotHandler creates the HTTP API handler.
func ProvideBotHandler(
	log *logger.Logger,
	sup *supervisor.Supervisor,
	monitor *health.Monitor,
	em *emergency.System,
	archive repository.TradeArchive,
) xhttp.Handler {
	return api.NewBotHandler(log, sup, monitor, em, archive)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *logger.Logger,
	sup *supervisor.Supervisor,
	monitor *health.Monitor,
	em *emergency.System,
	persist *persistence.Manager,
	handler xhttp.Handler,
	store repository.SnapshotStore,
	archive repository.TradeArchive,
	exporter repository.EventExporter,
) *server.App {
	return server.New(cfg, log, sup, monitor, em, persist, handler, store, archive, exporter)
}
