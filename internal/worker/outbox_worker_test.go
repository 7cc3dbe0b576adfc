package worker_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderflow/orderflow/internal/domain/event"
	"github.com/orderflow/orderflow/internal/domain/order"
	"github.com/orderflow/orderflow/internal/domain/uuid"
	"github.com/orderflow/orderflow/internal/infrastructure/eventbus"
	"github.com/orderflow/orderflow/internal/infrastructure/outbox"
	"github.com/orderflow/orderflow/internal/worker"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// committedEvents builds an order history and stages it in the outbox.
func committedEvents(t *testing.T, box *outbox.InMemoryOutbox) []event.DomainEvent {
	t.Helper()

	agg := order.NewOrderAggregate(uuid.NewUUID())
	actor := uuid.NewUUID()
	require.NoError(t, agg.Create(uuid.NewUUID(), []order.Item{{SKU: "SKU-A", Quantity: 2}}, actor))
	require.NoError(t, agg.Ship(actor))

	events := agg.UncommittedEvents()
	require.NoError(t, box.AddBatch(context.Background(), events))

	return events
}

// recordingHandler collects the events it receives from the bus.
type recordingHandler struct {
	mu     sync.Mutex
	events []event.DomainEvent
	err    error
}

func (h *recordingHandler) handle(_ context.Context, evt event.DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.events = append(h.events, evt)
	return nil
}

func (h *recordingHandler) received() []event.DomainEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]event.DomainEvent(nil), h.events...)
}

func TestOutboxWorker_ProcessOncePublishesPendingEntries(t *testing.T) {
	box := outbox.NewInMemoryOutbox()
	bus := eventbus.NewInProcessBus(eventbus.WithInProcessLogger(newTestLogger()))
	handler := &recordingHandler{}
	for _, eventType := range order.EventTypes {
		require.NoError(t, bus.Subscribe(eventType, handler.handle))
	}

	events := committedEvents(t, box)
	w := worker.NewOutboxWorker(box, bus, newTestLogger(), worker.DefaultOutboxWorkerConfig(), nil)
	ctx := context.Background()

	require.NoError(t, w.ProcessOnce(ctx))

	received := handler.received()
	require.Len(t, received, len(events))
	assert.Equal(t, events[0].AggregateID(), received[0].AggregateID())
	assert.Equal(t, 1, received[0].Sequence())
	assert.Equal(t, order.EventTypeOrderShipped, received[1].EventType())

	// Published entries leave the pending set.
	count, err := box.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestOutboxWorker_ProcessOnceIsIdempotent(t *testing.T) {
	box := outbox.NewInMemoryOutbox()
	bus := eventbus.NewInProcessBus(eventbus.WithInProcessLogger(newTestLogger()))
	handler := &recordingHandler{}
	require.NoError(t, bus.Subscribe(order.EventTypeOrderCreated, handler.handle))
	require.NoError(t, bus.Subscribe(order.EventTypeOrderShipped, handler.handle))

	committedEvents(t, box)
	w := worker.NewOutboxWorker(box, bus, newTestLogger(), worker.DefaultOutboxWorkerConfig(), nil)
	ctx := context.Background()

	require.NoError(t, w.ProcessOnce(ctx))
	require.NoError(t, w.ProcessOnce(ctx))

	assert.Len(t, handler.received(), 2)
}

func TestOutboxWorker_FailedPublishStaysPending(t *testing.T) {
	box := outbox.NewInMemoryOutbox()
	bus := eventbus.NewInProcessBus(eventbus.WithInProcessLogger(newTestLogger()))
	handler := &recordingHandler{err: errors.New("bus unavailable")}
	require.NoError(t, bus.Subscribe(order.EventTypeOrderCreated, handler.handle))
	require.NoError(t, bus.Subscribe(order.EventTypeOrderShipped, handler.handle))

	committedEvents(t, box)
	w := worker.NewOutboxWorker(box, bus, newTestLogger(), worker.DefaultOutboxWorkerConfig(), nil)
	ctx := context.Background()

	require.NoError(t, w.ProcessOnce(ctx))

	// Both entries remain for the next cycle.
	count, err := box.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	// Once the bus recovers, delivery resumes where it left off.
	handler.mu.Lock()
	handler.err = nil
	handler.mu.Unlock()

	require.NoError(t, w.ProcessOnce(ctx))

	count, err = box.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Len(t, handler.received(), 2)
}

func TestOutboxWorker_DisabledRunReturnsImmediately(t *testing.T) {
	config := worker.DefaultOutboxWorkerConfig()
	config.Enabled = false

	w := worker.NewOutboxWorker(outbox.NewInMemoryOutbox(), eventbus.NewInProcessBus(), newTestLogger(), config, nil)
	require.NoError(t, w.Run(context.Background()))
}
