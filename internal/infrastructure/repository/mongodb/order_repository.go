package mongodb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/orderflow/orderflow/internal/application/appcore"
	"github.com/orderflow/orderflow/internal/application/dispatch"
	"github.com/orderflow/orderflow/internal/domain/errs"
	"github.com/orderflow/orderflow/internal/domain/order"
	"github.com/orderflow/orderflow/internal/domain/uuid"
)

// MongoOrderRepository implements dispatch.Repository over the event store
// and the outbox. Save commits the aggregate's new events and their outbox
// entries in one transaction, so a crash after commit cannot lose the
// delivery and a crash before commit loses both.
type MongoOrderRepository struct {
	client     *mongo.Client
	eventStore appcore.EventStore
	outbox     appcore.Outbox
	logger     *slog.Logger
}

// OrderRepoOption configures MongoOrderRepository.
type OrderRepoOption func(*MongoOrderRepository)

// WithOrderRepoLogger sets the logger for the order repository.
func WithOrderRepoLogger(logger *slog.Logger) OrderRepoOption {
	return func(r *MongoOrderRepository) {
		r.logger = logger
	}
}

// NewMongoOrderRepository creates the MongoDB order repository.
func NewMongoOrderRepository(
	client *mongo.Client,
	eventStore appcore.EventStore,
	outbox appcore.Outbox,
	opts ...OrderRepoOption,
) *MongoOrderRepository {
	r := &MongoOrderRepository{
		client:     client,
		eventStore: eventStore,
		outbox:     outbox,
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Load reconstructs an order aggregate from its event history.
func (r *MongoOrderRepository) Load(ctx context.Context, id uuid.UUID) (*order.Aggregate, error) {
	if id.IsZero() {
		return nil, errs.ErrInvalidInput
	}

	events, err := r.eventStore.LoadEvents(ctx, id.String())
	if err != nil {
		if errors.Is(err, appcore.ErrAggregateNotFound) {
			return nil, errs.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "failed to load events from event store",
			slog.String("order_id", id.String()),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to load events for order %s: %w", id, err)
	}

	agg := order.NewOrderAggregate(id)
	agg.ReplayEvents(events)

	return agg, nil
}

// Save appends the aggregate's uncommitted events under the optimistic
// version check and enqueues matching outbox entries, atomically.
func (r *MongoOrderRepository) Save(ctx context.Context, agg *order.Aggregate) error {
	if agg == nil {
		return errs.ErrInvalidInput
	}

	events := agg.UncommittedEvents()
	if len(events) == 0 {
		return nil
	}

	expectedVersion := agg.Version() - len(events)

	session, err := r.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(txCtx context.Context) (any, error) {
		if saveErr := r.eventStore.SaveEvents(txCtx, agg.ID().String(), events, expectedVersion); saveErr != nil {
			return nil, saveErr
		}
		if outboxErr := r.outbox.AddBatch(txCtx, events); outboxErr != nil {
			return nil, fmt.Errorf("failed to enqueue outbox entries: %w", outboxErr)
		}
		return nil, nil //nolint:nilnil // transaction callback returns nothing on success
	})
	if err != nil {
		if errors.Is(err, appcore.ErrConcurrencyConflict) {
			r.logger.WarnContext(ctx, "concurrency conflict while saving order",
				slog.String("order_id", agg.ID().String()),
				slog.Int("expected_version", expectedVersion),
				slog.Int("events_count", len(events)),
			)
			return errs.ErrConcurrentModification
		}
		r.logger.ErrorContext(ctx, "failed to save order events",
			slog.String("order_id", agg.ID().String()),
			slog.Int("events_count", len(events)),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to save events: %w", err)
	}

	agg.MarkEventsAsCommitted()

	r.logger.DebugContext(ctx, "order saved",
		slog.String("order_id", agg.ID().String()),
		slog.Int("version", agg.Version()),
		slog.Int("events_count", len(events)),
	)

	return nil
}

var _ dispatch.Repository = (*MongoOrderRepository)(nil)
