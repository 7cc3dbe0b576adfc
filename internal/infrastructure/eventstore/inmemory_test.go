package eventstore_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderflow/orderflow/internal/application/appcore"
	"github.com/orderflow/orderflow/internal/domain/event"
	"github.com/orderflow/orderflow/internal/domain/order"
	"github.com/orderflow/orderflow/internal/domain/uuid"
	"github.com/orderflow/orderflow/internal/infrastructure/eventstore"
)

func newOrderEvents(t *testing.T, n int) (uuid.UUID, []event.DomainEvent) {
	t.Helper()

	agg := order.NewOrderAggregate(uuid.NewUUID())
	require.NoError(t, agg.Create(uuid.NewUUID(), []order.Item{{SKU: "SKU-A", Quantity: 1}}, uuid.NewUUID()))
	for i := 1; i < n; i++ {
		require.NoError(t, agg.AddItem(order.Item{SKU: "SKU-B", Quantity: i}, uuid.NewUUID()))
	}

	return agg.ID(), agg.UncommittedEvents()
}

func TestInMemoryEventStore_SaveAndLoad(t *testing.T) {
	store := eventstore.NewInMemoryEventStore()
	ctx := context.Background()
	id, events := newOrderEvents(t, 3)

	require.NoError(t, store.SaveEvents(ctx, id.String(), events, 0))

	loaded, err := store.LoadEvents(ctx, id.String())
	require.NoError(t, err)
	require.Len(t, loaded, 3)
	for i, evt := range loaded {
		assert.Equal(t, i+1, evt.Sequence())
	}

	version, err := store.GetVersion(ctx, id.String())
	require.NoError(t, err)
	assert.Equal(t, 3, version)
}

func TestInMemoryEventStore_LoadMissing(t *testing.T) {
	store := eventstore.NewInMemoryEventStore()

	_, err := store.LoadEvents(context.Background(), uuid.NewUUID().String())

	require.ErrorIs(t, err, appcore.ErrAggregateNotFound)
}

func TestInMemoryEventStore_VersionConflict(t *testing.T) {
	store := eventstore.NewInMemoryEventStore()
	ctx := context.Background()
	id, events := newOrderEvents(t, 1)

	require.NoError(t, store.SaveEvents(ctx, id.String(), events, 0))

	// Same base version again: the first committed, the second must lose.
	err := store.SaveEvents(ctx, id.String(), events, 0)
	require.ErrorIs(t, err, appcore.ErrConcurrencyConflict)
}

func TestInMemoryEventStore_ConcurrentWriters(t *testing.T) {
	store := eventstore.NewInMemoryEventStore()
	ctx := context.Background()
	id, events := newOrderEvents(t, 1)

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for n := 0; n < 2; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- store.SaveEvents(ctx, id.String(), events, 0)
		}()
	}
	wg.Wait()
	close(results)

	var conflicts, successes int
	for err := range results {
		if err == nil {
			successes++
		} else if assert.ErrorIs(t, err, appcore.ErrConcurrencyConflict) {
			conflicts++
		}
	}

	assert.Equal(t, 1, successes, "exactly one writer must win")
	assert.Equal(t, 1, conflicts, "exactly one writer must lose")
}

func TestInMemoryEventStore_ListAggregateIDs(t *testing.T) {
	store := eventstore.NewInMemoryEventStore()
	ctx := context.Background()

	idA, eventsA := newOrderEvents(t, 1)
	idB, eventsB := newOrderEvents(t, 2)
	require.NoError(t, store.SaveEvents(ctx, idA.String(), eventsA, 0))
	require.NoError(t, store.SaveEvents(ctx, idB.String(), eventsB, 0))

	ids, err := store.ListAggregateIDs(ctx, order.AggregateType)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{idA.String(), idB.String()}, ids)

	ids, err = store.ListAggregateIDs(ctx, "unrelated")
	require.NoError(t, err)
	assert.Empty(t, ids)
}
