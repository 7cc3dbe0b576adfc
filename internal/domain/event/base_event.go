package event

import "time"

// BaseEvent is the common implementation of DomainEvent embedded by all
// concrete event types.
type BaseEvent struct {
	eventType     string
	aggregateID   string
	aggregateType string
	occurredAt    time.Time
	sequence      int
	metadata      Metadata
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType, aggregateID, aggregateType string, sequence int, metadata Metadata) BaseEvent {
	if metadata.Timestamp.IsZero() {
		metadata.Timestamp = time.Now()
	}
	return BaseEvent{
		eventType:     eventType,
		aggregateID:   aggregateID,
		aggregateType: aggregateType,
		occurredAt:    time.Now(),
		sequence:      sequence,
		metadata:      metadata,
	}
}

// RestoreBaseEvent reconstructs a base event from persisted fields.
// It is used by storage adapters when deserializing; new events must be
// created through the aggregate so sequence numbers stay consistent.
func RestoreBaseEvent(
	eventType, aggregateID, aggregateType string,
	sequence int,
	occurredAt time.Time,
	metadata Metadata,
) BaseEvent {
	return BaseEvent{
		eventType:     eventType,
		aggregateID:   aggregateID,
		aggregateType: aggregateType,
		occurredAt:    occurredAt,
		sequence:      sequence,
		metadata:      metadata,
	}
}

// EventType returns the event type.
func (e BaseEvent) EventType() string {
	return e.eventType
}

// AggregateID returns the aggregate ID.
func (e BaseEvent) AggregateID() string {
	return e.aggregateID
}

// AggregateType returns the aggregate type.
func (e BaseEvent) AggregateType() string {
	return e.aggregateType
}

// OccurredAt returns the time the event occurred.
func (e BaseEvent) OccurredAt() time.Time {
	return e.occurredAt
}

// Sequence returns the aggregate-scoped sequence number.
func (e BaseEvent) Sequence() int {
	return e.sequence
}

// Metadata returns the event metadata.
func (e BaseEvent) Metadata() Metadata {
	return e.metadata
}
