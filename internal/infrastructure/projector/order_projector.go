// Package projector maintains the read models derived from the order event
// stream. Each projector folds events into one read model family; the
// Engine feeds them from the event bus with ordering, retry and dead-letter
// handling.
package projector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/orderflow/orderflow/internal/application/appcore"
	orderapp "github.com/orderflow/orderflow/internal/application/order"
	"github.com/orderflow/orderflow/internal/domain/event"
	orderdomain "github.com/orderflow/orderflow/internal/domain/order"
	"github.com/orderflow/orderflow/internal/domain/uuid"
	"github.com/orderflow/orderflow/internal/infrastructure/eventstore"
)

// ErrSequenceGap signals that an event arrived ahead of its aggregate's
// next expected sequence. The caller buffers the event and retries it once
// the missing sequences have been applied.
var ErrSequenceGap = errors.New("event sequence gap")

// OrderProjector maintains the denormalized order view read model.
type OrderProjector struct {
	reads      orderapp.ReadRepository
	eventStore appcore.EventStore
	logger     *slog.Logger
}

// NewOrderProjector creates an order view projector.
func NewOrderProjector(
	reads orderapp.ReadRepository,
	eventStore appcore.EventStore,
	logger *slog.Logger,
) *OrderProjector {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderProjector{
		reads:      reads,
		eventStore: eventStore,
		logger:     logger,
	}
}

// ProcessEvent folds a single event into the order view. An event whose
// sequence is at or below the view's last applied sequence is a no-op; a
// sequence beyond lastApplied+1 returns ErrSequenceGap. Read-store failures
// are marked transient so the caller retries them.
func (p *OrderProjector) ProcessEvent(ctx context.Context, evt event.DomainEvent) error {
	typed, orderID, err := decodeOrderEvent(evt)
	if err != nil {
		return err
	}

	view, err := p.reads.GetView(ctx, orderID)
	switch {
	case errors.Is(err, appcore.ErrNotFound):
		view = nil
	case err != nil:
		return appcore.MarkTransient(fmt.Errorf("failed to load order view: %w", err))
	}

	lastApplied := 0
	if view != nil {
		lastApplied = view.LastAppliedSeq
	}

	seq := typed.Sequence()
	if seq <= lastApplied {
		p.logger.DebugContext(ctx, "skipping already applied event",
			slog.String("order_id", orderID.String()),
			slog.String("event_type", typed.EventType()),
			slog.Int("sequence", seq),
			slog.Int("last_applied", lastApplied),
		)
		return nil
	}
	if seq > lastApplied+1 {
		return fmt.Errorf("order %s expects sequence %d, got %d: %w",
			orderID, lastApplied+1, seq, ErrSequenceGap)
	}

	view, err = applyToView(view, typed)
	if err != nil {
		return err
	}

	if upsertErr := p.reads.UpsertView(ctx, view); upsertErr != nil {
		return appcore.MarkTransient(fmt.Errorf("failed to upsert order view: %w", upsertErr))
	}

	p.logger.DebugContext(ctx, "order view updated",
		slog.String("order_id", orderID.String()),
		slog.String("event_type", typed.EventType()),
		slog.Int("sequence", seq),
	)

	return nil
}

// RebuildOne discards the order view and replays the aggregate's full event
// history from sequence 1. The result is identical to incremental
// application of the same events.
func (p *OrderProjector) RebuildOne(ctx context.Context, orderID uuid.UUID) error {
	p.logger.InfoContext(ctx, "rebuilding order view",
		slog.String("order_id", orderID.String()),
	)

	events, err := p.eventStore.LoadEvents(ctx, orderID.String())
	if err != nil {
		return fmt.Errorf("failed to load events for order %s: %w", orderID, err)
	}

	if deleteErr := p.reads.DeleteView(ctx, orderID); deleteErr != nil &&
		!errors.Is(deleteErr, appcore.ErrNotFound) {
		return appcore.MarkTransient(fmt.Errorf("failed to discard order view: %w", deleteErr))
	}

	view, err := foldView(events)
	if err != nil {
		return err
	}

	if upsertErr := p.reads.UpsertView(ctx, view); upsertErr != nil {
		return appcore.MarkTransient(fmt.Errorf("failed to upsert order view: %w", upsertErr))
	}

	p.logger.InfoContext(ctx, "order view rebuilt",
		slog.String("order_id", orderID.String()),
		slog.Int("events_applied", len(events)),
		slog.Int("last_applied", view.LastAppliedSeq),
	)

	return nil
}

// RebuildAll rebuilds views for every order aggregate in the event store.
// Individual failures are logged and counted; the rebuild continues.
func (p *OrderProjector) RebuildAll(ctx context.Context) error {
	p.logger.InfoContext(ctx, "starting rebuild of all order views")

	ids, err := p.eventStore.ListAggregateIDs(ctx, orderdomain.AggregateType)
	if err != nil {
		return fmt.Errorf("failed to list order aggregates: %w", err)
	}

	successCount := 0
	failCount := 0

	for _, id := range ids {
		orderID, parseErr := uuid.ParseUUID(id)
		if parseErr != nil {
			p.logger.WarnContext(ctx, "skipping invalid aggregate id",
				slog.String("aggregate_id", id),
				slog.String("error", parseErr.Error()),
			)
			failCount++
			continue
		}
		if rebuildErr := p.RebuildOne(ctx, orderID); rebuildErr != nil {
			p.logger.ErrorContext(ctx, "failed to rebuild order view",
				slog.String("order_id", id),
				slog.String("error", rebuildErr.Error()),
			)
			failCount++
			continue
		}
		successCount++
	}

	p.logger.InfoContext(ctx, "completed rebuild of all order views",
		slog.Int("total", len(ids)),
		slog.Int("success", successCount),
		slog.Int("failed", failCount),
	)

	if failCount > 0 {
		return fmt.Errorf("rebuild completed with %d failures out of %d total", failCount, len(ids))
	}

	return nil
}

// VerifyConsistency replays the order's events and compares the derived
// view against the stored one.
func (p *OrderProjector) VerifyConsistency(ctx context.Context, orderID uuid.UUID) (bool, error) {
	events, err := p.eventStore.LoadEvents(ctx, orderID.String())
	if err != nil {
		if errors.Is(err, appcore.ErrAggregateNotFound) {
			// No events means no view should exist.
			_, getErr := p.reads.GetView(ctx, orderID)
			if errors.Is(getErr, appcore.ErrNotFound) {
				return true, nil
			}
			if getErr != nil {
				return false, fmt.Errorf("failed to load order view: %w", getErr)
			}
			return false, nil
		}
		return false, fmt.Errorf("failed to load events: %w", err)
	}

	expected, err := foldView(events)
	if err != nil {
		return false, err
	}

	actual, err := p.reads.GetView(ctx, orderID)
	if errors.Is(err, appcore.ErrNotFound) {
		p.logger.WarnContext(ctx, "order view missing for aggregate with events",
			slog.String("order_id", orderID.String()),
			slog.Int("event_count", len(events)),
		)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load order view: %w", err)
	}

	consistent := expected.OrderID == actual.OrderID &&
		expected.CustomerID == actual.CustomerID &&
		expected.Status == actual.Status &&
		expected.ItemCount == actual.ItemCount &&
		expected.CancelReason == actual.CancelReason &&
		expected.Deleted == actual.Deleted &&
		expected.LastAppliedSeq == actual.LastAppliedSeq &&
		itemsEqual(expected.Items, actual.Items) &&
		timePtrEqual(expected.ShippedAt, actual.ShippedAt)

	if !consistent {
		p.logger.WarnContext(ctx, "order view inconsistency detected",
			slog.String("order_id", orderID.String()),
			slog.Int("expected_last_applied", expected.LastAppliedSeq),
			slog.Int("actual_last_applied", actual.LastAppliedSeq),
		)
	}

	return consistent, nil
}

// foldView replays an ordered event history into a fresh view.
func foldView(events []event.DomainEvent) (*orderapp.View, error) {
	var view *orderapp.View
	for _, evt := range events {
		typed, _, err := decodeOrderEvent(evt)
		if err != nil {
			return nil, err
		}
		view, err = applyToView(view, typed)
		if err != nil {
			return nil, err
		}
	}
	if view == nil {
		return nil, appcore.ErrAggregateNotFound
	}
	return view, nil
}

// applyToView folds one typed event into the view. A nil view is only valid
// for the creation event.
func applyToView(view *orderapp.View, typed event.DomainEvent) (*orderapp.View, error) {
	switch e := typed.(type) {
	case *orderdomain.Created:
		orderID, err := uuid.ParseUUID(e.AggregateID())
		if err != nil {
			return nil, fmt.Errorf("invalid order id: %w", err)
		}
		items := make([]orderdomain.Item, len(e.Items))
		copy(items, e.Items)
		return &orderapp.View{
			OrderID:        orderID,
			CustomerID:     e.CustomerID,
			Items:          items,
			ItemCount:      countItems(items),
			Status:         e.Status,
			CreatedAt:      e.OccurredAt(),
			UpdatedAt:      e.OccurredAt(),
			LastAppliedSeq: e.Sequence(),
		}, nil

	case *orderdomain.ItemAdded:
		if view == nil {
			return nil, fmt.Errorf("no view to apply %s to", e.EventType())
		}
		view.Items = append(view.Items, e.Item)
		view.ItemCount += e.Item.Quantity

	case *orderdomain.Shipped:
		if view == nil {
			return nil, fmt.Errorf("no view to apply %s to", e.EventType())
		}
		shippedAt := e.ShippedAt
		view.Status = orderdomain.StatusShipped
		view.ShippedAt = &shippedAt

	case *orderdomain.Cancelled:
		if view == nil {
			return nil, fmt.Errorf("no view to apply %s to", e.EventType())
		}
		view.Status = orderdomain.StatusCancelled
		view.CancelReason = e.Reason

	case *orderdomain.Deleted:
		if view == nil {
			return nil, fmt.Errorf("no view to apply %s to", e.EventType())
		}
		view.Deleted = true

	default:
		return nil, fmt.Errorf("unsupported event type %s", typed.EventType())
	}

	view.LastAppliedSeq = typed.Sequence()
	view.UpdatedAt = typed.OccurredAt()
	return view, nil
}

// decodeOrderEvent resolves an event into its typed form and validates it
// belongs to the order aggregate.
func decodeOrderEvent(evt event.DomainEvent) (event.DomainEvent, uuid.UUID, error) {
	if evt.AggregateType() != orderdomain.AggregateType {
		return nil, "", fmt.Errorf("invalid aggregate type: expected %q, got %q",
			orderdomain.AggregateType, evt.AggregateType())
	}

	orderID, err := uuid.ParseUUID(evt.AggregateID())
	if err != nil {
		return nil, "", fmt.Errorf("invalid order id: %w", err)
	}

	typed, err := eventstore.DecodeTyped(evt)
	if err != nil {
		return nil, "", err
	}

	return typed, orderID, nil
}

func itemsEqual(a, b []orderdomain.Item) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func countItems(items []orderdomain.Item) int {
	total := 0
	for _, item := range items {
		total += item.Quantity
	}
	return total
}

var _ appcore.ReadModelProjector = (*OrderProjector)(nil)
