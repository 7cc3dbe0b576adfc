package eventbus_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderflow/orderflow/internal/domain/event"
	"github.com/orderflow/orderflow/internal/infrastructure/eventbus"
)

// testEvent is a concrete event type for testing.
type testEvent struct {
	event.BaseEvent

	Message string `json:"message"`
}

func newTestEvent(eventType, aggregateID, message string) *testEvent {
	return &testEvent{
		BaseEvent: event.NewBaseEvent(
			eventType,
			aggregateID,
			"test",
			1,
			event.NewMetadata("actor-1", "correlation-1", "causation-1"),
		),
		Message: message,
	}
}

func TestInProcessBus_PublishDeliversToSubscribers(t *testing.T) {
	// Arrange
	bus := eventbus.NewInProcessBus()
	var received []event.DomainEvent
	require.NoError(t, bus.Subscribe("test.created", func(_ context.Context, evt event.DomainEvent) error {
		received = append(received, evt)
		return nil
	}))

	// Act
	err := bus.Publish(context.Background(), newTestEvent("test.created", "agg-1", "hello"))

	// Assert
	require.NoError(t, err)
	require.Len(t, received, 1)
	assert.Equal(t, "test.created", received[0].EventType())
	assert.Equal(t, "agg-1", received[0].AggregateID())
	assert.Equal(t, 1, received[0].Sequence())
}

func TestInProcessBus_PublishIgnoresUnsubscribedTypes(t *testing.T) {
	bus := eventbus.NewInProcessBus()
	called := false
	require.NoError(t, bus.Subscribe("test.created", func(_ context.Context, _ event.DomainEvent) error {
		called = true
		return nil
	}))

	err := bus.Publish(context.Background(), newTestEvent("test.other", "agg-1", "hello"))

	require.NoError(t, err)
	assert.False(t, called)
}

func TestInProcessBus_PublishReturnsHandlerError(t *testing.T) {
	bus := eventbus.NewInProcessBus()
	handlerErr := errors.New("projection unavailable")
	require.NoError(t, bus.Subscribe("test.created", func(_ context.Context, _ event.DomainEvent) error {
		return handlerErr
	}))

	err := bus.Publish(context.Background(), newTestEvent("test.created", "agg-1", "hello"))

	require.ErrorIs(t, err, handlerErr)
}

func TestInProcessBus_PublishNilEvent(t *testing.T) {
	bus := eventbus.NewInProcessBus()

	err := bus.Publish(context.Background(), nil)

	require.Error(t, err)
}

func TestInProcessBus_SubscribeValidation(t *testing.T) {
	bus := eventbus.NewInProcessBus()

	assert.Error(t, bus.Subscribe("", func(_ context.Context, _ event.DomainEvent) error { return nil }))
	assert.Error(t, bus.Subscribe("test.created", nil))
	assert.Equal(t, 0, bus.HandlerCount("test.created"))
}

func TestInProcessBus_MultipleHandlersInOrder(t *testing.T) {
	bus := eventbus.NewInProcessBus()
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		require.NoError(t, bus.Subscribe("test.created", func(_ context.Context, _ event.DomainEvent) error {
			order = append(order, i)
			return nil
		}))
	}

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("test.created", "agg-1", "hello")))

	assert.Equal(t, []int{0, 1, 2}, order)
	assert.Equal(t, 3, bus.HandlerCount("test.created"))
}

func TestDefaultRetryConfig(t *testing.T) {
	cfg := eventbus.DefaultRetryConfig()

	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, cfg.InitialBackoff)
	assert.Equal(t, 5*time.Second, cfg.MaxBackoff)
	assert.InDelta(t, 2.0, cfg.BackoffFactor, 0.001)
}
