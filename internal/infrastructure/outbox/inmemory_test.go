package outbox_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderflow/orderflow/internal/domain/event"
	"github.com/orderflow/orderflow/internal/domain/order"
	"github.com/orderflow/orderflow/internal/domain/uuid"
	"github.com/orderflow/orderflow/internal/infrastructure/outbox"
)

func newCommittedEvents(t *testing.T) []event.DomainEvent {
	t.Helper()

	agg := order.NewOrderAggregate(uuid.NewUUID())
	require.NoError(t, agg.Create(uuid.NewUUID(), []order.Item{{SKU: "SKU-A", Quantity: 1}}, uuid.NewUUID()))
	require.NoError(t, agg.Ship(uuid.NewUUID()))

	return agg.UncommittedEvents()
}

func TestInMemoryOutbox_AddBatchAndPoll(t *testing.T) {
	box := outbox.NewInMemoryOutbox()
	ctx := context.Background()
	events := newCommittedEvents(t)

	require.NoError(t, box.AddBatch(ctx, events))

	entries, err := box.Poll(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, order.EventTypeOrderCreated, entries[0].EventType)
	assert.Equal(t, 1, entries[0].Sequence)
	assert.Equal(t, order.EventTypeOrderShipped, entries[1].EventType)
	assert.Equal(t, 2, entries[1].Sequence)

	count, err := box.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestInMemoryOutbox_MarkProcessed(t *testing.T) {
	box := outbox.NewInMemoryOutbox()
	ctx := context.Background()
	events := newCommittedEvents(t)
	require.NoError(t, box.AddBatch(ctx, events))

	entries, err := box.Poll(ctx, 10)
	require.NoError(t, err)
	require.NoError(t, box.MarkProcessed(ctx, entries[0].ID))

	remaining, err := box.Poll(ctx, 10)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, entries[1].ID, remaining[0].ID)
}

func TestInMemoryOutbox_MarkFailed(t *testing.T) {
	box := outbox.NewInMemoryOutbox()
	ctx := context.Background()
	events := newCommittedEvents(t)
	require.NoError(t, box.AddBatch(ctx, events))

	entries, err := box.Poll(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, box.MarkFailed(ctx, entries[0].ID, errors.New("bus unavailable")))

	entries, err = box.Poll(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, entries[0].RetryCount)
	assert.Equal(t, "bus unavailable", entries[0].LastError)
}

func TestInMemoryOutbox_MarkUnknownEntry(t *testing.T) {
	box := outbox.NewInMemoryOutbox()

	require.Error(t, box.MarkProcessed(context.Background(), "missing"))
	require.Error(t, box.MarkFailed(context.Background(), "missing", errors.New("x")))
}

func TestInMemoryOutbox_Stats(t *testing.T) {
	box := outbox.NewInMemoryOutbox()
	ctx := context.Background()
	events := newCommittedEvents(t)
	require.NoError(t, box.AddBatch(ctx, events))

	count, oldest, err := box.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.WithinDuration(t, time.Now(), oldest, time.Minute)
}

func TestInMemoryOutbox_Cleanup(t *testing.T) {
	box := outbox.NewInMemoryOutbox()
	ctx := context.Background()
	events := newCommittedEvents(t)
	require.NoError(t, box.AddBatch(ctx, events))

	entries, err := box.Poll(ctx, 10)
	require.NoError(t, err)
	for _, entry := range entries {
		require.NoError(t, box.MarkProcessed(ctx, entry.ID))
	}

	deleted, err := box.Cleanup(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	count, err := box.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}
