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
)

// CustomerSummaryProjector maintains per-customer order statistics derived
// from the same event stream as the order views. For events after creation
// it resolves the customer through the order view, so it must run after the
// OrderProjector in the engine's projector list.
type CustomerSummaryProjector struct {
	reads      orderapp.ReadRepository
	eventStore appcore.EventStore
	logger     *slog.Logger
}

// NewCustomerSummaryProjector creates a customer summary projector.
func NewCustomerSummaryProjector(
	reads orderapp.ReadRepository,
	eventStore appcore.EventStore,
	logger *slog.Logger,
) *CustomerSummaryProjector {
	if logger == nil {
		logger = slog.Default()
	}
	return &CustomerSummaryProjector{
		reads:      reads,
		eventStore: eventStore,
		logger:     logger,
	}
}

// ProcessEvent folds one event into the owning customer's summary. The
// per-order contribution tracks its own last applied sequence, giving the
// same idempotency and gap detection as the order view.
func (p *CustomerSummaryProjector) ProcessEvent(ctx context.Context, evt event.DomainEvent) error {
	typed, orderID, err := decodeOrderEvent(evt)
	if err != nil {
		return err
	}

	customerID, err := p.resolveCustomer(ctx, typed, orderID)
	if err != nil {
		return err
	}

	summary, err := p.reads.GetSummary(ctx, customerID)
	switch {
	case errors.Is(err, appcore.ErrNotFound):
		summary = &orderapp.CustomerSummary{
			CustomerID: customerID,
			Orders:     make(map[string]orderapp.OrderContribution),
		}
	case err != nil:
		return appcore.MarkTransient(fmt.Errorf("failed to load customer summary: %w", err))
	}

	contribution := summary.Orders[orderID.String()]
	seq := typed.Sequence()

	if seq <= contribution.LastSeq {
		p.logger.DebugContext(ctx, "skipping already applied event",
			slog.String("customer_id", customerID.String()),
			slog.String("order_id", orderID.String()),
			slog.Int("sequence", seq),
			slog.Int("last_applied", contribution.LastSeq),
		)
		return nil
	}
	if seq > contribution.LastSeq+1 {
		return fmt.Errorf("order %s contribution expects sequence %d, got %d: %w",
			orderID, contribution.LastSeq+1, seq, ErrSequenceGap)
	}

	applyToContribution(&contribution, typed)
	summary.Orders[orderID.String()] = contribution
	summary.Recalculate()
	summary.UpdatedAt = typed.OccurredAt()

	if upsertErr := p.reads.UpsertSummary(ctx, summary); upsertErr != nil {
		return appcore.MarkTransient(fmt.Errorf("failed to upsert customer summary: %w", upsertErr))
	}

	return nil
}

// RebuildOne recomputes a single order's contribution from its event
// history and folds it back into the owning customer's summary.
func (p *CustomerSummaryProjector) RebuildOne(ctx context.Context, orderID uuid.UUID) error {
	events, err := p.eventStore.LoadEvents(ctx, orderID.String())
	if err != nil {
		return fmt.Errorf("failed to load events for order %s: %w", orderID, err)
	}

	customerID, contribution, err := foldContribution(events)
	if err != nil {
		return err
	}

	summary, err := p.reads.GetSummary(ctx, customerID)
	switch {
	case errors.Is(err, appcore.ErrNotFound):
		summary = &orderapp.CustomerSummary{
			CustomerID: customerID,
			Orders:     make(map[string]orderapp.OrderContribution),
		}
	case err != nil:
		return appcore.MarkTransient(fmt.Errorf("failed to load customer summary: %w", err))
	}

	summary.Orders[orderID.String()] = contribution
	summary.Recalculate()
	summary.UpdatedAt = time.Now()

	if upsertErr := p.reads.UpsertSummary(ctx, summary); upsertErr != nil {
		return appcore.MarkTransient(fmt.Errorf("failed to upsert customer summary: %w", upsertErr))
	}

	p.logger.InfoContext(ctx, "customer summary contribution rebuilt",
		slog.String("customer_id", customerID.String()),
		slog.String("order_id", orderID.String()),
		slog.Int("events_applied", len(events)),
	)

	return nil
}

// RebuildAll recomputes every customer summary from the full order event
// history. Individual failures are logged and counted; the rebuild
// continues.
func (p *CustomerSummaryProjector) RebuildAll(ctx context.Context) error {
	p.logger.InfoContext(ctx, "starting rebuild of all customer summaries")

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
			p.logger.ErrorContext(ctx, "failed to rebuild customer summary contribution",
				slog.String("order_id", id),
				slog.String("error", rebuildErr.Error()),
			)
			failCount++
			continue
		}
		successCount++
	}

	p.logger.InfoContext(ctx, "completed rebuild of all customer summaries",
		slog.Int("total", len(ids)),
		slog.Int("success", successCount),
		slog.Int("failed", failCount),
	)

	if failCount > 0 {
		return fmt.Errorf("rebuild completed with %d failures out of %d total", failCount, len(ids))
	}

	return nil
}

// VerifyConsistency replays one order's events and compares its derived
// contribution against the stored summary.
func (p *CustomerSummaryProjector) VerifyConsistency(ctx context.Context, orderID uuid.UUID) (bool, error) {
	events, err := p.eventStore.LoadEvents(ctx, orderID.String())
	if err != nil {
		if errors.Is(err, appcore.ErrAggregateNotFound) {
			return true, nil
		}
		return false, fmt.Errorf("failed to load events: %w", err)
	}

	customerID, expected, err := foldContribution(events)
	if err != nil {
		return false, err
	}

	summary, err := p.reads.GetSummary(ctx, customerID)
	if errors.Is(err, appcore.ErrNotFound) {
		p.logger.WarnContext(ctx, "customer summary missing for order with events",
			slog.String("customer_id", customerID.String()),
			slog.String("order_id", orderID.String()),
		)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load customer summary: %w", err)
	}

	actual, ok := summary.Orders[orderID.String()]
	if !ok {
		return false, nil
	}

	consistent := actual == expected
	if !consistent {
		p.logger.WarnContext(ctx, "customer summary inconsistency detected",
			slog.String("customer_id", customerID.String()),
			slog.String("order_id", orderID.String()),
			slog.Int("expected_last_seq", expected.LastSeq),
			slog.Int("actual_last_seq", actual.LastSeq),
		)
	}

	return consistent, nil
}

// resolveCustomer determines the owning customer of an order event. The
// creation event carries the customer id; later events resolve it through
// the order view, which the OrderProjector has already updated. A missing
// view means the creation has not been applied yet, which is a gap.
func (p *CustomerSummaryProjector) resolveCustomer(
	ctx context.Context,
	typed event.DomainEvent,
	orderID uuid.UUID,
) (uuid.UUID, error) {
	if created, ok := typed.(*orderdomain.Created); ok {
		return created.CustomerID, nil
	}

	view, err := p.reads.GetView(ctx, orderID)
	if errors.Is(err, appcore.ErrNotFound) {
		return "", fmt.Errorf("order view for %s not yet projected: %w", orderID, ErrSequenceGap)
	}
	if err != nil {
		return "", appcore.MarkTransient(fmt.Errorf("failed to resolve order customer: %w", err))
	}

	return view.CustomerID, nil
}

// applyToContribution folds one typed event into a per-order contribution.
func applyToContribution(c *orderapp.OrderContribution, typed event.DomainEvent) {
	switch e := typed.(type) {
	case *orderdomain.Created:
		c.Items = countItems(e.Items)
	case *orderdomain.ItemAdded:
		c.Items += e.Item.Quantity
	case *orderdomain.Shipped:
		c.Shipped = true
	case *orderdomain.Deleted:
		c.Deleted = true
	}
	// Cancellation changes the order status only; the contribution keeps
	// counting the order until it is deleted.
	c.LastSeq = typed.Sequence()
}

// foldContribution replays an ordered event history into a fresh
// contribution and returns the owning customer.
func foldContribution(events []event.DomainEvent) (uuid.UUID, orderapp.OrderContribution, error) {
	var customerID uuid.UUID
	var contribution orderapp.OrderContribution

	for _, evt := range events {
		typed, _, err := decodeOrderEvent(evt)
		if err != nil {
			return "", orderapp.OrderContribution{}, err
		}
		if created, ok := typed.(*orderdomain.Created); ok {
			customerID = created.CustomerID
		}
		applyToContribution(&contribution, typed)
	}

	if customerID.IsZero() {
		return "", orderapp.OrderContribution{}, errors.New("event history has no creation event")
	}

	return customerID, contribution, nil
}

var _ appcore.ReadModelProjector = (*CustomerSummaryProjector)(nil)
