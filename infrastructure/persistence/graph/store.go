// Package graph is the data access layer for topics, references and
// sessions. It speaks Cypher to a GraphStore and knows nothing about the
// driver behind it.
package graph

import (
	"context"
	"errors"
)

// Record is one result row keyed by its RETURN aliases.
type Record map[string]any

// Runner executes statements inside an open transaction.
type Runner interface {
	Run(ctx context.Context, statement string, params map[string]any) ([]Record, error)
}

// Work is a unit of work executed in one transaction. Returning an error
// rolls the transaction back. A store may retry Work on transient failures,
// so it must not have side effects outside the transaction.
type Work func(ctx context.Context, tx Runner) error

// GraphStore is the capability the data access layer needs from a graph
// database.
type GraphStore interface {
	Read(ctx context.Context, work Work) error
	Write(ctx context.Context, work Work) error
	Close(ctx context.Context) error
}

var (
	// ErrConstraint is returned when a write violates a uniqueness constraint.
	ErrConstraint = errors.New("graph: constraint violation")
	// ErrUnavailable is returned when the store cannot be reached.
	ErrUnavailable = errors.New("graph: store unavailable")
)
