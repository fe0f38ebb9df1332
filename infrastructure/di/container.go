package di

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"topicref/application/identity"
	"topicref/application/ports"
	"topicref/application/services"
	"topicref/infrastructure/config"
	"topicref/infrastructure/jobs"
	"topicref/infrastructure/persistence/graph"
	"topicref/pkg/observability"
)

// Container holds all application dependencies
type Container struct {
	Config   *config.Config
	Logger   *zap.Logger
	Database *graph.Database
	Sessions ports.SessionStore
	EventBus ports.EventBus
	Metrics  *observability.Collector
	Auth     *identity.AuthHandler
	Catalog  *services.CatalogService
	Reaper   *jobs.SessionReaper
	Router   *chi.Mux
}
