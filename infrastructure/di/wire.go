//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"topicref/application/ports"
	"topicref/application/services"
	"topicref/infrastructure/config"
	"topicref/infrastructure/persistence/graph"
)

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideLogger,
	ProvideGraphStore,
	ProvideDatabase,
	ProvideAWSConfig,
	ProvideSessionStore,
	ProvideEventBus,
	ProvideMetrics,
	ProvideIDPClient,
	ProvideAuthHandler,
	ProvideSessionReaper,
	ProvideErrorHandler,
	ProvideRouter,
	services.NewCatalogService,
	wire.Bind(new(ports.Database), new(*graph.Database)),
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, func(), error) {
	wire.Build(SuperSet)
	return nil, nil, nil
}
