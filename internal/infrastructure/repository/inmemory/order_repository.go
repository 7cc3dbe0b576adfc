// Package inmemory implements the application repositories in memory for
// tests and single-binary setups.
package inmemory

import (
	"context"
	"errors"
	"fmt"

	"github.com/orderflow/orderflow/internal/application/appcore"
	"github.com/orderflow/orderflow/internal/application/dispatch"
	"github.com/orderflow/orderflow/internal/domain/errs"
	"github.com/orderflow/orderflow/internal/domain/order"
	"github.com/orderflow/orderflow/internal/domain/uuid"
)

// OrderRepository implements dispatch.Repository over an in-memory event
// store and outbox. The two stores share no transaction, so the save order
// (events first, then outbox) mirrors what the MongoDB repository commits
// atomically.
type OrderRepository struct {
	eventStore appcore.EventStore
	outbox     appcore.Outbox
}

// NewOrderRepository creates an in-memory order repository.
func NewOrderRepository(eventStore appcore.EventStore, outbox appcore.Outbox) *OrderRepository {
	return &OrderRepository{
		eventStore: eventStore,
		outbox:     outbox,
	}
}

// Load reconstructs an order aggregate from its event history.
func (r *OrderRepository) Load(ctx context.Context, id uuid.UUID) (*order.Aggregate, error) {
	if id.IsZero() {
		return nil, errs.ErrInvalidInput
	}

	events, err := r.eventStore.LoadEvents(ctx, id.String())
	if err != nil {
		if errors.Is(err, appcore.ErrAggregateNotFound) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load events for order %s: %w", id, err)
	}

	agg := order.NewOrderAggregate(id)
	agg.ReplayEvents(events)

	return agg, nil
}

// Save appends the aggregate's uncommitted events and enqueues the matching
// outbox entries.
func (r *OrderRepository) Save(ctx context.Context, agg *order.Aggregate) error {
	if agg == nil {
		return errs.ErrInvalidInput
	}

	events := agg.UncommittedEvents()
	if len(events) == 0 {
		return nil
	}

	expectedVersion := agg.Version() - len(events)
	if err := r.eventStore.SaveEvents(ctx, agg.ID().String(), events, expectedVersion); err != nil {
		if errors.Is(err, appcore.ErrConcurrencyConflict) {
			return errs.ErrConcurrentModification
		}
		return fmt.Errorf("failed to save events: %w", err)
	}

	if err := r.outbox.AddBatch(ctx, events); err != nil {
		return fmt.Errorf("failed to enqueue outbox entries: %w", err)
	}

	agg.MarkEventsAsCommitted()

	return nil
}

var _ dispatch.Repository = (*OrderRepository)(nil)
