package di

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"topicref/application/identity"
	"topicref/application/ports"
	"topicref/application/services"
	"topicref/infrastructure/config"
	"topicref/infrastructure/jobs"
	"topicref/infrastructure/messaging/eventbridge"
	"topicref/infrastructure/persistence/dynamodb"
	"topicref/infrastructure/persistence/graph"
	"topicref/infrastructure/persistence/neo4j"
	"topicref/interfaces/http/rest"
	"topicref/interfaces/http/rest/handlers"
	"topicref/pkg/auth"
	"topicref/pkg/common"
	apperrors "topicref/pkg/errors"
	"topicref/pkg/observability"
)

const metricsNamespace = "topicref"

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	zcfg := zap.NewDevelopmentConfig()
	if cfg.IsProduction() {
		zcfg = zap.NewProductionConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}
	zcfg.Level = level
	return zcfg.Build()
}

// ProvideGraphStore connects to Neo4j. The cleanup closes the driver.
func ProvideGraphStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*neo4j.Store, func(), error) {
	store, err := neo4j.NewStore(ctx, neo4j.Config{
		URI:      cfg.Neo4jURI,
		Username: cfg.Neo4jUsername,
		Password: cfg.Neo4jPassword,
		Database: cfg.Neo4jDatabase,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Close(ctx); err != nil {
			logger.Warn("Failed to close graph store", zap.Error(err))
		}
	}
	return store, cleanup, nil
}

// ProvideDatabase creates the data access layer over the graph store
func ProvideDatabase(store *neo4j.Store, logger *zap.Logger) *graph.Database {
	return graph.NewDatabase(store, logger)
}

// ProvideAWSConfig creates AWS configuration
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
}

// ProvideSessionStore keeps sessions in the graph unless the DynamoDB backend
// is configured.
func ProvideSessionStore(cfg *config.Config, db *graph.Database, awsCfg aws.Config, logger *zap.Logger) ports.SessionStore {
	if cfg.SessionBackend == config.SessionBackendDynamoDB {
		logger.Info("Using DynamoDB session store", zap.String("table", cfg.SessionTable))
		return dynamodb.NewSessionStore(awsdynamodb.NewFromConfig(awsCfg), cfg.SessionTable, cfg.SessionTTL, logger)
	}
	return db
}

// ProvideEventBus publishes to EventBridge when a bus is named, otherwise
// only logs events.
func ProvideEventBus(cfg *config.Config, awsCfg aws.Config, logger *zap.Logger) ports.EventBus {
	if cfg.EventBusName == "" {
		return eventbridge.NewLogBus(logger)
	}
	return eventbridge.NewPublisher(awseventbridge.NewFromConfig(awsCfg), cfg.EventBusName, logger)
}

// ProvideMetrics returns nil when metrics are disabled; every Collector
// method accepts a nil receiver.
func ProvideMetrics(cfg *config.Config) *observability.Collector {
	if !cfg.EnableMetrics {
		return nil
	}
	return observability.NewCollector(metricsNamespace)
}

// ProvideIDPClient creates the HTTP client for identity provider calls
func ProvideIDPClient(cfg *config.Config) *http.Client {
	return observability.NewOutboundClient(cfg.IDPTimeout, cfg.EnableTracing)
}

// ProvideAuthHandler creates the login handshake
func ProvideAuthHandler(
	cfg *config.Config,
	sessions ports.SessionStore,
	client *http.Client,
	bus ports.EventBus,
	metrics *observability.Collector,
	logger *zap.Logger,
) (*identity.AuthHandler, error) {
	keys := auth.NewJWKSClient(identity.JWKSURL(cfg.IDPHost), client, logger)
	verifier := auth.NewIDTokenVerifier(keys, cfg.ClientID, "")
	return identity.NewAuthHandler(identity.Config{
		IDPHost:      cfg.IDPHost,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		PublicURL:    cfg.PublicURL,
		Flow:         identity.Flow(cfg.AuthFlow),
		LoginTimeout: cfg.LoginTimeout,
		SessionTTL:   cfg.SessionTTL,
	}, sessions, verifier, client, bus, metrics, logger)
}

// ProvideSessionReaper schedules the purge of expired sessions
func ProvideSessionReaper(cfg *config.Config, sessions ports.SessionStore, metrics *observability.Collector, logger *zap.Logger) (*jobs.SessionReaper, error) {
	return jobs.NewSessionReaper(cfg.SessionReapSchedule, cfg.SessionTTL, sessions, metrics, logger)
}

// ProvideErrorHandler shows error causes outside production
func ProvideErrorHandler(cfg *config.Config, logger *zap.Logger) *apperrors.ErrorHandler {
	return apperrors.NewErrorHandler(logger, cfg.IsDevelopment(), common.Version)
}

// ProvideRouter builds the HTTP routes
func ProvideRouter(
	cfg *config.Config,
	catalog *services.CatalogService,
	authHandler *identity.AuthHandler,
	errs *apperrors.ErrorHandler,
	metrics *observability.Collector,
	logger *zap.Logger,
) *chi.Mux {
	return rest.NewRouter(rest.Options{
		Catalog:           catalog,
		Auth:              authHandler,
		Errors:            errs,
		Metrics:           metrics,
		Logger:            logger,
		Cookies:           handlers.CookieOptions{Secure: cfg.CookieSecure, TTL: cfg.SessionTTL},
		CORSOrigins:       cfg.CORSOrigins,
		LoginRateLimit:    cfg.LoginRateLimit,
		SessionMode:       cfg.SessionMode,
		TrustProxyHeaders: cfg.TrustProxyHeaders,
	}).Setup()
}
