package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"topicref/application/ports"
	"topicref/domain/core/entities"
	"topicref/domain/core/validators"
	"topicref/domain/events"
	"topicref/pkg/observability"
)

// CatalogService implements the topic and reference use cases on top of the
// data access layer. Writes announce themselves on the event bus once
// committed; a failed publish is logged and never undoes the write.
type CatalogService struct {
	db      ports.Database
	bus     ports.EventBus
	metrics *observability.Collector
	logger  *zap.Logger
	now     func() time.Time
}

// NewCatalogService creates a catalog service. bus and metrics may be nil.
func NewCatalogService(db ports.Database, bus ports.EventBus, metrics *observability.Collector, logger *zap.Logger) *CatalogService {
	return &CatalogService{
		db:      db,
		bus:     bus,
		metrics: metrics,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *CatalogService) Health(ctx context.Context) error {
	return s.db.Health(ctx)
}

func (s *CatalogService) ListTopics(ctx context.Context, page, size int) ([]string, error) {
	return s.db.ListTopics(ctx, page, size)
}

// CreateTopic stores a new topic under its trimmed name and returns that name.
func (s *CatalogService) CreateTopic(ctx context.Context, name string) (string, error) {
	name, err := validators.NormalizeTopicName(name)
	if err != nil {
		return "", err
	}
	if err := s.db.AddTopic(ctx, name); err != nil {
		return "", err
	}

	s.logger.Info("Topic created", zap.String("topic", name))
	s.metrics.TopicCreated()
	s.publish(ctx, events.NewTopicCreated(name, s.now()))
	return name, nil
}

// DeleteTopic removes the topic together with the references it owns.
func (s *CatalogService) DeleteTopic(ctx context.Context, name string) error {
	name, err := validators.NormalizeTopicName(name)
	if err != nil {
		return err
	}
	if err := s.db.DeleteTopic(ctx, name); err != nil {
		return err
	}

	s.logger.Info("Topic deleted", zap.String("topic", name))
	s.metrics.TopicDeleted()
	s.publish(ctx, events.NewTopicDeleted(name, s.now()))
	return nil
}

func (s *CatalogService) LinkSubTopic(ctx context.Context, parent, child string) error {
	parent, err := validators.NormalizeTopicName(parent)
	if err != nil {
		return err
	}
	child, err = validators.NormalizeTopicName(child)
	if err != nil {
		return err
	}
	if err := s.db.AddSubTopic(ctx, parent, child); err != nil {
		return err
	}

	s.logger.Info("Sub-topic linked", zap.String("parent", parent), zap.String("child", child))
	s.publish(ctx, events.NewSubTopicLinked(parent, child, s.now()))
	return nil
}

func (s *CatalogService) ListSubTopics(ctx context.Context, parent string) ([]string, error) {
	return s.db.ListSubTopics(ctx, parent)
}

// AttachReference validates ref, then stores it under topic.
func (s *CatalogService) AttachReference(ctx context.Context, topic string, ref entities.Reference) (entities.StoredReference, error) {
	topic, err := validators.NormalizeTopicName(topic)
	if err != nil {
		return entities.StoredReference{}, err
	}
	if err := validators.ValidateReference(ref); err != nil {
		return entities.StoredReference{}, err
	}
	stored, err := s.db.AddReferenceToTopic(ctx, topic, ref)
	if err != nil {
		return entities.StoredReference{}, err
	}

	s.logger.Info("Reference attached",
		zap.String("topic", topic),
		zap.String("kind", string(ref.Kind())),
		zap.String("id", stored.ID),
	)
	s.metrics.ReferenceAttached(string(ref.Kind()))
	s.publish(ctx, events.NewReferenceAttached(topic, stored, s.now()))
	return stored, nil
}

// ListReferences returns the public references of a topic: verse ranges and
// citations. Book references are bibliographic and stay out of this listing.
func (s *CatalogService) ListReferences(ctx context.Context, topic string) ([]entities.StoredReference, error) {
	refs, err := s.db.ListReferences(ctx, topic)
	if err != nil {
		return nil, err
	}
	public := make([]entities.StoredReference, 0, len(refs))
	for _, ref := range refs {
		if !entities.IsBook(ref.Reference) {
			public = append(public, ref)
		}
	}
	return public, nil
}

func (s *CatalogService) ListVerseReferences(ctx context.Context, topic string, page, size int) ([]entities.StoredReference, error) {
	return s.db.ListVerseReferences(ctx, topic, page, size)
}

// FindTopicsByVerse lists the topics owning a verse range that contains v.
func (s *CatalogService) FindTopicsByVerse(ctx context.Context, v entities.VerseRange, page, size int) ([]string, error) {
	if err := validators.ValidateVerseRange(v); err != nil {
		return nil, err
	}
	return s.db.FindTopicsByVerseOverlap(ctx, v, page, size)
}

func (s *CatalogService) publish(ctx context.Context, event events.DomainEvent) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish event",
			zap.String("type", event.GetEventType()),
			zap.String("aggregate", event.GetAggregateID()),
			zap.Error(err),
		)
	}
}
