//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/bigspace/internal/core/config"
	"github.com/zeusync/bigspace/internal/core/observability/log"
	"github.com/zeusync/bigspace/internal/core/system"
	"github.com/zeusync/bigspace/internal/server"
)

// App is a world together with its telemetry server.
type App struct {
	World     *system.World
	Telemetry *server.Server
	Logger    log.Log
}

func InitializeWorld(cfg config.Config) (*system.World, func(), error) {
	wire.Build(WorldSet)
	return nil, nil, nil
}

func InitializeApp(cfg config.Config) (*App, func(), error) {
	wire.Build(WorldSet, TelemetrySet, wire.Struct(new(App), "*"))
	return nil, nil, nil
}
