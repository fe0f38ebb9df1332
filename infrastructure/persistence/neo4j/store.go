// Package neo4j adapts the Neo4j Go driver to graph.GraphStore.
package neo4j

import (
	"context"
	"errors"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"topicref/infrastructure/persistence/graph"
)

const constraintViolationCode = "Neo.ClientError.Schema.ConstraintValidationFailed"

type Config struct {
	URI      string
	Username string
	Password string
	Database string
}

// Store runs graph.Work inside managed driver transactions, which the driver
// retries on transient failures.
type Store struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *zap.Logger
}

// NewStore connects and verifies connectivity before returning.
func NewStore(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("failed to connect to neo4j at %s: %w", cfg.URI, mapError(err))
	}
	logger.Info("Connected to graph database",
		zap.String("uri", cfg.URI),
		zap.String("database", cfg.Database),
	)
	return &Store{driver: driver, database: cfg.Database, logger: logger}, nil
}

func (s *Store) Read(ctx context.Context, work graph.Work) error {
	return s.execute(ctx, neo4j.AccessModeRead, work)
}

func (s *Store) Write(ctx context.Context, work graph.Work) error {
	return s.execute(ctx, neo4j.AccessModeWrite, work)
}

func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func (s *Store) execute(ctx context.Context, mode neo4j.AccessMode, work graph.Work) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: s.database,
	})
	defer func() {
		if err := session.Close(ctx); err != nil {
			s.logger.Warn("Failed to close neo4j session", zap.Error(err))
		}
	}()

	fn := func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, work(ctx, runner{tx: tx})
	}
	var err error
	if mode == neo4j.AccessModeRead {
		_, err = session.ExecuteRead(ctx, fn)
	} else {
		_, err = session.ExecuteWrite(ctx, fn)
	}
	return mapError(err)
}

type runner struct {
	tx neo4j.ManagedTransaction
}

func (r runner) Run(ctx context.Context, statement string, params map[string]any) ([]graph.Record, error) {
	result, err := r.tx.Run(ctx, statement, params)
	if err != nil {
		return nil, err
	}
	records, err := result.Collect(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]graph.Record, 0, len(records))
	for _, rec := range records {
		rows = append(rows, graph.Record(rec.AsMap()))
	}
	return rows, nil
}

// mapError translates driver failures into the graph package sentinels.
// Errors raised by the work itself are returned unchanged.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var neoErr *neo4j.Neo4jError
	if errors.As(err, &neoErr) && neoErr.Code == constraintViolationCode {
		return fmt.Errorf("%w: %s", graph.ErrConstraint, neoErr.Msg)
	}
	if neo4j.IsConnectivityError(err) {
		return fmt.Errorf("%w: %v", graph.ErrUnavailable, err)
	}
	return err
}
