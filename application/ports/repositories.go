// Package ports declares what the application needs from the outside world.
// Implementations live under infrastructure.
package ports

import (
	"context"
	"time"

	"topicref/domain/core/entities"
	"topicref/domain/events"
)

// TopicRepository persists topics and the references attached to them.
// Every method is transactional; a failed call leaves no partial writes.
type TopicRepository interface {
	// Health performs a trivial round trip to the store.
	Health(ctx context.Context) error

	// ListTopics returns topic names ordered by name, page is 1-based.
	ListTopics(ctx context.Context, page, size int) ([]string, error)

	AddTopic(ctx context.Context, name string) error

	// DeleteTopic removes the topic, the references it owns and its edges.
	DeleteTopic(ctx context.Context, name string) error

	AddSubTopic(ctx context.Context, parent, child string) error
	ListSubTopics(ctx context.Context, parent string) ([]string, error)

	// AddReferenceToTopic creates the reference and its edge from the topic
	// atomically and returns it with its assigned id.
	AddReferenceToTopic(ctx context.Context, topic string, ref entities.Reference) (entities.StoredReference, error)

	// ListReferences returns every reference of the topic in creation order.
	ListReferences(ctx context.Context, topic string) ([]entities.StoredReference, error)

	// ListVerseReferences returns one page of the topic's verse references.
	ListVerseReferences(ctx context.Context, topic string, page, size int) ([]entities.StoredReference, error)

	// FindTopicsByVerseOverlap returns the owners of every stored verse range
	// containing v, paginated, with consecutive duplicates removed.
	FindTopicsByVerseOverlap(ctx context.Context, v entities.VerseRange, page, size int) ([]string, error)
}

// SessionStore persists login sessions keyed by their state token.
type SessionStore interface {
	// CreateSession fails with a conflict when key already exists.
	CreateSession(ctx context.Context, key string, rec entities.SessionRecord) error
	GetSession(ctx context.Context, key string) (*entities.SessionRecord, error)
	// UpdateSession replaces the token of an existing session.
	UpdateSession(ctx context.Context, key string, token entities.Token) (*entities.SessionRecord, error)
	DeleteSession(ctx context.Context, key string) error
	// PurgeSessions deletes sessions created before the cutoff and returns
	// how many were removed.
	PurgeSessions(ctx context.Context, createdBefore time.Time) (int, error)
}

// Database is the full data access layer over the graph store.
type Database interface {
	TopicRepository
	SessionStore
}

// EventBus publishes committed domain events.
type EventBus interface {
	Publish(ctx context.Context, events ...events.DomainEvent) error
}
