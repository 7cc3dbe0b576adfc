package dispatch_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderflow/orderflow/internal/application/appcore"
	"github.com/orderflow/orderflow/internal/application/dispatch"
	orderapp "github.com/orderflow/orderflow/internal/application/order"
	"github.com/orderflow/orderflow/internal/domain/order"
	"github.com/orderflow/orderflow/internal/domain/uuid"
	"github.com/orderflow/orderflow/internal/infrastructure/eventstore"
	"github.com/orderflow/orderflow/internal/infrastructure/outbox"
	"github.com/orderflow/orderflow/internal/infrastructure/repository/inmemory"
)

type dispatcherFixture struct {
	dispatcher *dispatch.Dispatcher
	eventStore *eventstore.InMemoryEventStore
	outbox     *outbox.InMemoryOutbox
}

func newDispatcherFixture(t *testing.T) *dispatcherFixture {
	t.Helper()

	registry := dispatch.NewRegistry()
	require.NoError(t, orderapp.RegisterHandlers(registry))

	store := eventstore.NewInMemoryEventStore()
	box := outbox.NewInMemoryOutbox()
	repo := inmemory.NewOrderRepository(store, box)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return &dispatcherFixture{
		dispatcher: dispatch.NewDispatcher(registry, repo, dispatch.WithLogger(logger)),
		eventStore: store,
		outbox:     box,
	}
}

// createOrder dispatches a creation command and returns the new order id.
func (f *dispatcherFixture) createOrder(t *testing.T, customerID uuid.UUID) dispatch.Result {
	t.Helper()

	result, err := f.dispatcher.Dispatch(context.Background(), orderapp.CreateOrder{
		CustomerID: customerID,
		Items:      []order.Item{{SKU: "SKU-A", Quantity: 2}},
		CreatedBy:  uuid.NewUUID(),
	})
	require.NoError(t, err)

	return result
}

func TestDispatcher_CreateOrder(t *testing.T) {
	fixture := newDispatcherFixture(t)
	ctx := context.Background()

	result := fixture.createOrder(t, uuid.NewUUID())
	assert.False(t, result.AggregateID.IsZero())
	assert.Equal(t, 1, result.Version)

	// The commit put the event into both the store and the outbox.
	version, err := fixture.eventStore.GetVersion(ctx, result.AggregateID.String())
	require.NoError(t, err)
	assert.Equal(t, 1, version)

	count, err := fixture.outbox.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestDispatcher_AddItemAdvancesVersion(t *testing.T) {
	fixture := newDispatcherFixture(t)
	created := fixture.createOrder(t, uuid.NewUUID())

	result, err := fixture.dispatcher.Dispatch(context.Background(), orderapp.AddItem{
		OrderID: created.AggregateID,
		Item:    order.Item{SKU: "SKU-B", Quantity: 1},
		Version: created.Version,
		AddedBy: uuid.NewUUID(),
	})
	require.NoError(t, err)
	assert.Equal(t, created.AggregateID, result.AggregateID)
	assert.Equal(t, 2, result.Version)
}

func TestDispatcher_StaleVersionConflicts(t *testing.T) {
	fixture := newDispatcherFixture(t)
	created := fixture.createOrder(t, uuid.NewUUID())
	ctx := context.Background()

	_, err := fixture.dispatcher.Dispatch(ctx, orderapp.ShipOrder{
		OrderID:   created.AggregateID,
		Version:   created.Version,
		ShippedBy: uuid.NewUUID(),
	})
	require.NoError(t, err)

	// A writer still holding version 1 must be told to reload and retry.
	_, err = fixture.dispatcher.Dispatch(ctx, orderapp.CancelOrder{
		OrderID:     created.AggregateID,
		Reason:      "too slow",
		Version:     created.Version,
		CancelledBy: uuid.NewUUID(),
	})
	require.ErrorIs(t, err, appcore.ErrConcurrencyConflict)

	// The conflicting command left no trace.
	version, getErr := fixture.eventStore.GetVersion(ctx, created.AggregateID.String())
	require.NoError(t, getErr)
	assert.Equal(t, 2, version)
}

func TestDispatcher_BusinessRuleRejection(t *testing.T) {
	fixture := newDispatcherFixture(t)
	created := fixture.createOrder(t, uuid.NewUUID())
	ctx := context.Background()

	_, err := fixture.dispatcher.Dispatch(ctx, orderapp.CancelOrder{
		OrderID:     created.AggregateID,
		Reason:      "out of stock",
		Version:     created.Version,
		CancelledBy: uuid.NewUUID(),
	})
	require.NoError(t, err)

	// Shipping a cancelled order is rejected without side effect.
	_, err = fixture.dispatcher.Dispatch(ctx, orderapp.ShipOrder{
		OrderID:   created.AggregateID,
		Version:   2,
		ShippedBy: uuid.NewUUID(),
	})
	require.ErrorIs(t, err, appcore.ErrCommandRejected)

	version, getErr := fixture.eventStore.GetVersion(ctx, created.AggregateID.String())
	require.NoError(t, getErr)
	assert.Equal(t, 2, version)
}

func TestDispatcher_ValidationFailure(t *testing.T) {
	fixture := newDispatcherFixture(t)

	_, err := fixture.dispatcher.Dispatch(context.Background(), orderapp.CreateOrder{
		CustomerID: uuid.NewUUID(),
		CreatedBy:  uuid.NewUUID(),
	})
	require.ErrorIs(t, err, appcore.ErrValidationFailed)
}

func TestDispatcher_TargetNotFound(t *testing.T) {
	fixture := newDispatcherFixture(t)

	_, err := fixture.dispatcher.Dispatch(context.Background(), orderapp.ShipOrder{
		OrderID:   uuid.NewUUID(),
		Version:   1,
		ShippedBy: uuid.NewUUID(),
	})
	require.ErrorIs(t, err, appcore.ErrAggregateNotFound)
}

func TestDispatcher_UnknownCommand(t *testing.T) {
	fixture := newDispatcherFixture(t)

	_, err := fixture.dispatcher.Dispatch(context.Background(), unknownCommand{})
	require.ErrorIs(t, err, appcore.ErrUnknownCommand)
}

func TestDispatcher_NilCommand(t *testing.T) {
	fixture := newDispatcherFixture(t)

	_, err := fixture.dispatcher.Dispatch(context.Background(), nil)
	require.ErrorIs(t, err, appcore.ErrValidationFailed)
}

type unknownCommand struct{}

func (unknownCommand) CommandName() string { return "order.reticulate" }
