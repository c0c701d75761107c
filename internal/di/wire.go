//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/pkg/config"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Exchange and oracle clients
		ProvideMarketData,
		ProvideFeedDialer,
		ProvideGateway,
		ProvideOracle,
		ProvideStrategies,

		// State stores and event bus
		ProvideSnapshotStore,
		ProvideTradeArchive,
		ProvideExporter,

		// Fault tolerance services
		ProvideHealthMonitor,
		ProvideEmergency,
		ProvidePersistence,

		// Orchestration and API
		ProvideSupervisor,
		ProvideBotHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}
