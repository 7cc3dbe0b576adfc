// Package event defines the domain event contract shared by the write and
// read sides.
package event

import (
	"context"
	"time"
)

// DomainEvent is an immutable record of a state change that already
// committed on the write side.
type DomainEvent interface {
	// EventType returns the event type
	EventType() string

	// AggregateID returns the aggregate ID
	AggregateID() string

	// AggregateType returns the aggregate type
	AggregateType() string

	// OccurredAt returns the time when the event occurred
	OccurredAt() time.Time

	// Sequence returns the aggregate-scoped sequence number of this event.
	// Sequence numbers start at 1 and increase by one per committed event,
	// so the sequence of the last event equals the aggregate version.
	Sequence() int

	// Metadata returns the event metadata
	Metadata() Metadata
}

// Bus is an interface for publishing events
type Bus interface {
	// Publish publishes an event
	Publish(ctx context.Context, event DomainEvent) error
}
