package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/bigspace/internal/core/config"
	"github.com/zeusync/bigspace/internal/core/events/bus"
	"github.com/zeusync/bigspace/internal/core/observability/log"
	"github.com/zeusync/bigspace/internal/core/system"
	"github.com/zeusync/bigspace/internal/server"
)

// WorldSet builds a world with its logger and event bus.
var WorldSet = wire.NewSet(
	ProvideLogger,
	wire.Bind(new(log.Log), new(*log.Logger)),
	bus.Provide,
	ProvideWorld,
)

// TelemetrySet builds the telemetry server of a world.
var TelemetrySet = wire.NewSet(
	ProvideServerConfig,
	ProvideServer,
)

// ProvideLogger creates the process logger at the configured level. The
// cleanup flushes buffered entries.
func ProvideLogger(cfg config.Config) (*log.Logger, func()) {
	l := log.New(cfg.Level(), log.WithFormat(cfg.LogFormat))
	return l, func() { _ = l.Sync() }
}

func ProvideWorld(cfg config.Config, logger log.Log, eventBus bus.EventBus) (*system.World, error) {
	return system.NewWorld(cfg, logger, eventBus)
}

func ProvideServerConfig(cfg config.Config) server.Config {
	return server.ConfigFrom(cfg.Telemetry)
}

func ProvideServer(cfg server.Config, world *system.World, logger log.Log) (*server.Server, error) {
	return server.New(cfg, world, logger)
}
