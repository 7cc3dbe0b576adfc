package projector_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderflow/orderflow/internal/application/appcore"
	orderapp "github.com/orderflow/orderflow/internal/application/order"
	"github.com/orderflow/orderflow/internal/domain/order"
	"github.com/orderflow/orderflow/internal/domain/uuid"
	"github.com/orderflow/orderflow/internal/infrastructure/eventstore"
	"github.com/orderflow/orderflow/internal/infrastructure/projector"
	"github.com/orderflow/orderflow/internal/infrastructure/repository/inmemory"
)

func newOrderProjectorFixture() (*projector.OrderProjector, *inmemory.OrderReadRepository, *eventstore.InMemoryEventStore) {
	reads := inmemory.NewOrderReadRepository()
	store := eventstore.NewInMemoryEventStore()
	return projector.NewOrderProjector(reads, store, newTestLogger()), reads, store
}

func TestOrderProjector_AppliesEventsIncrementally(t *testing.T) {
	proj, reads, _ := newOrderProjectorFixture()
	agg, events := orderHistory(t)
	ctx := context.Background()

	for _, evt := range events {
		require.NoError(t, proj.ProcessEvent(ctx, evt))
	}

	view, err := reads.GetView(ctx, agg.ID())
	require.NoError(t, err)
	assert.Equal(t, agg.ID(), view.OrderID)
	assert.Equal(t, agg.CustomerID(), view.CustomerID)
	assert.Equal(t, order.StatusShipped, view.Status)
	assert.Equal(t, 3, view.ItemCount)
	require.Len(t, view.Items, 2)
	assert.Equal(t, 3, view.LastAppliedSeq)
	require.NotNil(t, view.ShippedAt)
	assert.False(t, view.Deleted)
}

func TestOrderProjector_RedeliveredEventIsSkipped(t *testing.T) {
	proj, reads, _ := newOrderProjectorFixture()
	agg, events := orderHistory(t)
	ctx := context.Background()

	require.NoError(t, proj.ProcessEvent(ctx, events[0]))
	require.NoError(t, proj.ProcessEvent(ctx, events[1]))

	// A redelivered item_added must not double the item count.
	require.NoError(t, proj.ProcessEvent(ctx, events[1]))

	view, err := reads.GetView(ctx, agg.ID())
	require.NoError(t, err)
	assert.Equal(t, 3, view.ItemCount)
	assert.Equal(t, 2, view.LastAppliedSeq)
}

func TestOrderProjector_SequenceGapIsRejected(t *testing.T) {
	proj, _, _ := newOrderProjectorFixture()
	_, events := orderHistory(t)
	ctx := context.Background()

	require.NoError(t, proj.ProcessEvent(ctx, events[0]))

	err := proj.ProcessEvent(ctx, events[2])
	require.ErrorIs(t, err, projector.ErrSequenceGap)

	// The same holds when no view exists at all.
	fresh, _, _ := newOrderProjectorFixture()
	err = fresh.ProcessEvent(ctx, events[1])
	require.ErrorIs(t, err, projector.ErrSequenceGap)
}

func TestOrderProjector_DeletionLeavesTombstone(t *testing.T) {
	proj, reads, _ := newOrderProjectorFixture()
	agg := order.NewOrderAggregate(uuid.NewUUID())
	actor := uuid.NewUUID()
	require.NoError(t, agg.Create(uuid.NewUUID(), []order.Item{{SKU: "SKU-A", Quantity: 1}}, actor))
	require.NoError(t, agg.Delete(actor))

	ctx := context.Background()
	for _, evt := range agg.UncommittedEvents() {
		require.NoError(t, proj.ProcessEvent(ctx, evt))
	}

	view, err := reads.GetView(ctx, agg.ID())
	require.NoError(t, err)
	assert.True(t, view.Deleted)
	assert.Equal(t, 2, view.LastAppliedSeq)

	// Tombstoned views are excluded from listings.
	views, err := reads.FindViews(ctx, orderapp.ViewCriteria{CustomerID: agg.CustomerID()})
	require.NoError(t, err)
	assert.Empty(t, views)
}

func TestOrderProjector_RebuildOneMatchesIncremental(t *testing.T) {
	proj, reads, store := newOrderProjectorFixture()
	agg, events := orderHistory(t)
	ctx := context.Background()

	require.NoError(t, store.SaveEvents(ctx, agg.ID().String(), events, 0))
	for _, evt := range events {
		require.NoError(t, proj.ProcessEvent(ctx, evt))
	}

	incremental, err := reads.GetView(ctx, agg.ID())
	require.NoError(t, err)

	require.NoError(t, proj.RebuildOne(ctx, agg.ID()))

	rebuilt, err := reads.GetView(ctx, agg.ID())
	require.NoError(t, err)
	assert.Equal(t, incremental, rebuilt)
}

func TestOrderProjector_RebuildOneUnknownAggregate(t *testing.T) {
	proj, _, _ := newOrderProjectorFixture()

	err := proj.RebuildOne(context.Background(), uuid.NewUUID())
	require.ErrorIs(t, err, appcore.ErrAggregateNotFound)
}

func TestOrderProjector_VerifyConsistency(t *testing.T) {
	proj, reads, store := newOrderProjectorFixture()
	agg, events := orderHistory(t)
	ctx := context.Background()

	require.NoError(t, store.SaveEvents(ctx, agg.ID().String(), events, 0))
	for _, evt := range events {
		require.NoError(t, proj.ProcessEvent(ctx, evt))
	}

	consistent, err := proj.VerifyConsistency(ctx, agg.ID())
	require.NoError(t, err)
	assert.True(t, consistent)

	// Tamper with the view; verification must notice.
	view, err := reads.GetView(ctx, agg.ID())
	require.NoError(t, err)
	view.ItemCount += 10
	require.NoError(t, reads.UpsertView(ctx, view))

	consistent, err = proj.VerifyConsistency(ctx, agg.ID())
	require.NoError(t, err)
	assert.False(t, consistent)
}

func TestOrderProjector_VerifyConsistencyChecksItemContents(t *testing.T) {
	proj, reads, store := newOrderProjectorFixture()
	agg, events := orderHistory(t)
	ctx := context.Background()

	require.NoError(t, store.SaveEvents(ctx, agg.ID().String(), events, 0))
	for _, evt := range events {
		require.NoError(t, proj.ProcessEvent(ctx, evt))
	}

	// Swap one item for another of the same quantity. Lengths and totals
	// still match, so only an element-wise comparison catches the drift.
	view, err := reads.GetView(ctx, agg.ID())
	require.NoError(t, err)
	view.Items[0].SKU = "SKU-X"
	require.NoError(t, reads.UpsertView(ctx, view))

	consistent, err := proj.VerifyConsistency(ctx, agg.ID())
	require.NoError(t, err)
	assert.False(t, consistent)
}

func TestOrderProjector_VerifyConsistencyChecksShippedAt(t *testing.T) {
	proj, reads, store := newOrderProjectorFixture()
	agg, events := orderHistory(t)
	ctx := context.Background()

	require.NoError(t, store.SaveEvents(ctx, agg.ID().String(), events, 0))
	for _, evt := range events {
		require.NoError(t, proj.ProcessEvent(ctx, evt))
	}

	view, err := reads.GetView(ctx, agg.ID())
	require.NoError(t, err)
	require.NotNil(t, view.ShippedAt)
	shifted := view.ShippedAt.Add(time.Hour)
	view.ShippedAt = &shifted
	require.NoError(t, reads.UpsertView(ctx, view))

	consistent, err := proj.VerifyConsistency(ctx, agg.ID())
	require.NoError(t, err)
	assert.False(t, consistent)
}

func TestOrderProjector_VerifyConsistencyMissingView(t *testing.T) {
	proj, _, store := newOrderProjectorFixture()
	agg, events := orderHistory(t)
	ctx := context.Background()

	require.NoError(t, store.SaveEvents(ctx, agg.ID().String(), events, 0))

	consistent, err := proj.VerifyConsistency(ctx, agg.ID())
	require.NoError(t, err)
	assert.False(t, consistent)
}

func TestOrderProjector_RebuildAll(t *testing.T) {
	proj, reads, store := newOrderProjectorFixture()
	ctx := context.Background()

	first, firstEvents := orderHistory(t)
	second, secondEvents := orderHistory(t)
	require.NoError(t, store.SaveEvents(ctx, first.ID().String(), firstEvents, 0))
	require.NoError(t, store.SaveEvents(ctx, second.ID().String(), secondEvents, 0))

	require.NoError(t, proj.RebuildAll(ctx))

	for _, id := range []uuid.UUID{first.ID(), second.ID()} {
		view, err := reads.GetView(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 3, view.LastAppliedSeq)
	}
}
