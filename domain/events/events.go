// Package events defines the facts the catalog announces after a write has
// been committed.
package events

import (
	"time"

	"topicref/domain/core/entities"
)

const (
	TypeTopicCreated      = "topic.created"
	TypeTopicDeleted      = "topic.deleted"
	TypeReferenceAttached = "reference.attached"
	TypeSubTopicLinked    = "topic.subtopic_linked"
	TypeUserLoggedIn      = "user.logged_in"
)

// DomainEvent is something that has already happened.
type DomainEvent interface {
	GetAggregateID() string
	GetEventType() string
	GetTimestamp() time.Time
	GetVersion() int
}

type BaseEvent struct {
	AggregateID string    `json:"aggregate_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
	Version     int       `json:"version"`
}

func (e BaseEvent) GetAggregateID() string  { return e.AggregateID }
func (e BaseEvent) GetEventType() string    { return e.EventType }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e BaseEvent) GetVersion() int         { return e.Version }

func base(aggregateID, eventType string, at time.Time) BaseEvent {
	return BaseEvent{AggregateID: aggregateID, EventType: eventType, Timestamp: at, Version: 1}
}

type TopicCreated struct {
	BaseEvent
	Name string `json:"name"`
}

func NewTopicCreated(name string, at time.Time) TopicCreated {
	return TopicCreated{BaseEvent: base(name, TypeTopicCreated, at), Name: name}
}

type TopicDeleted struct {
	BaseEvent
	Name string `json:"name"`
}

func NewTopicDeleted(name string, at time.Time) TopicDeleted {
	return TopicDeleted{BaseEvent: base(name, TypeTopicDeleted, at), Name: name}
}

// ReferenceAttached is raised once a reference node and its edge from the
// owning topic exist.
type ReferenceAttached struct {
	BaseEvent
	Topic       string                   `json:"topic"`
	ReferenceID string                   `json:"reference_id"`
	Reference   entities.StoredReference `json:"reference"`
}

func NewReferenceAttached(topic string, ref entities.StoredReference, at time.Time) ReferenceAttached {
	return ReferenceAttached{
		BaseEvent:   base(topic, TypeReferenceAttached, at),
		Topic:       topic,
		ReferenceID: ref.ID,
		Reference:   ref,
	}
}

type SubTopicLinked struct {
	BaseEvent
	Parent string `json:"parent"`
	Child  string `json:"child"`
}

func NewSubTopicLinked(parent, child string, at time.Time) SubTopicLinked {
	return SubTopicLinked{BaseEvent: base(parent, TypeSubTopicLinked, at), Parent: parent, Child: child}
}

// UserLoggedIn carries only the public user view, never tokens or the
// session key.
type UserLoggedIn struct {
	BaseEvent
	User entities.User `json:"user"`
	Flow string        `json:"flow"`
}

func NewUserLoggedIn(user entities.User, flow string, at time.Time) UserLoggedIn {
	return UserLoggedIn{BaseEvent: base(user.Email, TypeUserLoggedIn, at), User: user, Flow: flow}
}
