package appcore

import (
	"context"
	"time"

	"github.com/orderflow/orderflow/internal/domain/event"
	"github.com/orderflow/orderflow/internal/domain/uuid"
)

// ReadModelProjector maintains one family of read views from the event
// history of its aggregate type.
type ReadModelProjector interface {
	// ProcessEvent applies a single event to the read view. The projector
	// guarantees idempotency (an already-applied sequence is a no-op) and
	// per-aggregate ordering (a sequence beyond lastApplied+1 must not be
	// applied).
	ProcessEvent(ctx context.Context, event event.DomainEvent) error

	// RebuildOne discards the read view for one aggregate and replays its
	// entire event history from sequence 1. The result is identical to
	// incremental application. Returns ErrAggregateNotFound if no events
	// exist for the aggregate.
	RebuildOne(ctx context.Context, aggregateID uuid.UUID) error

	// RebuildAll rebuilds read views for all aggregates of this type.
	// Continues processing even if individual rebuilds fail.
	RebuildAll(ctx context.Context) error

	// VerifyConsistency checks whether the stored view matches the state
	// derived by replaying events. Returns true if consistent.
	VerifyConsistency(ctx context.Context, aggregateID uuid.UUID) (bool, error)
}

// DeadLetter records an event the projection engine could not apply for a
// non-transient reason. The aggregate's pipeline stalls at this sequence
// until an operator intervenes, keeping staleness visible and bounded.
type DeadLetter struct {
	ID            string
	AggregateID   string
	AggregateType string
	EventType     string
	Sequence      int
	Payload       []byte
	Reason        string
	FailedAt      time.Time
	Attempts      int
}

// DeadLetterStore persists projection dead letters.
type DeadLetterStore interface {
	// Add records a dead letter.
	Add(ctx context.Context, letter DeadLetter) error

	// List returns dead letters, newest first, up to limit.
	List(ctx context.Context, limit int) ([]DeadLetter, error)

	// ListAggregateIDs returns the distinct aggregate ids with dead
	// letters. Used by the repair worker to schedule rebuilds.
	ListAggregateIDs(ctx context.Context) ([]string, error)

	// Remove deletes the dead letters for one aggregate, typically after
	// a successful rebuild.
	Remove(ctx context.Context, aggregateID string) error

	// Count returns the number of stored dead letters (for monitoring).
	Count(ctx context.Context) (int64, error)
}
