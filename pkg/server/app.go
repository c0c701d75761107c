package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/domain/repository"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/emergency"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/health"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/persistence"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/supervisor"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/pkg/config"
	xhttp "github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/pkg/http"
	applogger "github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg       *config.Config
	log       *applogger.Logger
	sup       *supervisor.Supervisor
	monitor   *health.Monitor
	emergency *emergency.System
	persist   *persistence.Manager
	handler   xhttp.Handler
	store     repository.SnapshotStore
	archive   repository.TradeArchive
	exporter  repository.EventExporter

	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	sup *supervisor.Supervisor,
	monitor *health.Monitor,
	em *emergency.System,
	persist *persistence.Manager,
	handler xhttp.Handler,
	store repository.SnapshotStore,
	archive repository.TradeArchive,
	exporter repository.EventExporter,
) *App {
	return &App{
		cfg:       cfg,
		log:       log,
		sup:       sup,
		monitor:   monitor,
		emergency: em,
		persist:   persist,
		handler:   handler,
		store:     store,
		archive:   archive,
		exporter:  exporter,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go a.monitor.Run(ctx)
	go a.emergency.Run(ctx)
	go a.sup.Run(ctx)
	go a.persist.Run(ctx, a.sup)
	go a.forwardAlerts(ctx)

	if a.cfg.Engine.RestoreOnStart {
		if err := a.sup.RestoreAll(ctx); err != nil {
			a.log.Error("snapshot restore failed", applogger.Error(err))
		}
	}

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithLogger(a.log),
	)
	if err := a.httpServer.Start(); err != nil {
		return err
	}
	a.log.Info("navigator started",
		applogger.Int("port", a.cfg.Server.Port),
		applogger.Bool("kafka", a.cfg.Kafka.Enabled),
		applogger.Bool("clickhouse", a.cfg.ClickHouse.Enabled))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	return a.shutdown(ctx, cancel)
}

// forwardAlerts publishes health alerts to the event bus.
func (a *App) forwardAlerts(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case alert, ok := <-a.monitor.Alerts():
			if !ok {
				return
			}
			if err := a.exporter.ExportAlert(ctx, alert); err != nil {
				a.log.Warn("alert export failed", applogger.Error(err))
			}
		}
	}
}

// shutdown stops workers first so every final snapshot lands before the
// stores close.
func (a *App) shutdown(ctx context.Context, cancel context.CancelFunc) error {
	shutdownCtx, done := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer done()

	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	a.sup.StopAll(shutdownCtx)

	// Stop the background loops; the persistence loop flushes once more on
	// its way out.
	cancel()
	time.Sleep(100 * time.Millisecond)

	if err := a.exporter.Close(); err != nil {
		a.log.Warn("exporter close error", applogger.Error(err))
	}
	if err := a.archive.Close(); err != nil {
		a.log.Warn("archive close error", applogger.Error(err))
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("snapshot store close error", applogger.Error(err))
	}

	a.log.Info("shutdown complete")
	return nil
}
