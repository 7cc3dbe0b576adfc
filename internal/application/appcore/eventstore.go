package appcore

import (
	"context"
	"errors"

	"github.com/orderflow/orderflow/internal/domain/event"
)

var (
	// ErrAggregateNotFound is returned when the aggregate is not found
	ErrAggregateNotFound = errors.New("aggregate not found")

	// ErrConcurrencyConflict is returned on version conflict (optimistic locking)
	ErrConcurrencyConflict = errors.New("concurrency conflict detected")

	// ErrInvalidVersion is returned when the version is invalid
	ErrInvalidVersion = errors.New("invalid version")
)

// EventStore defines the interface for the durable write store. Aggregates
// are persisted as their event sequence; the version of an aggregate equals
// the sequence number of its last committed event.
type EventStore interface {
	// SaveEvents appends events for an aggregate under an optimistic
	// concurrency check: expectedVersion must match the current version
	// (0 for a new aggregate), otherwise ErrConcurrencyConflict is
	// returned and nothing is written.
	SaveEvents(ctx context.Context, aggregateID string, events []event.DomainEvent, expectedVersion int) error

	// LoadEvents loads all events for an aggregate in sequence order.
	// Returns ErrAggregateNotFound if no events exist.
	LoadEvents(ctx context.Context, aggregateID string) ([]event.DomainEvent, error)

	// GetVersion returns the current version of an aggregate, 0 if absent.
	GetVersion(ctx context.Context, aggregateID string) (int, error)

	// ListAggregateIDs returns the distinct aggregate ids of the given
	// aggregate type. Used by projection rebuilds.
	ListAggregateIDs(ctx context.Context, aggregateType string) ([]string, error)
}
