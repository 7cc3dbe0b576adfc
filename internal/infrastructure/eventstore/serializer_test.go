package eventstore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderflow/orderflow/internal/domain/order"
	"github.com/orderflow/orderflow/internal/domain/uuid"
	"github.com/orderflow/orderflow/internal/infrastructure/eventstore"
)

func TestSerializer_RoundTripCreated(t *testing.T) {
	serializer := eventstore.NewEventSerializer()
	agg := order.NewOrderAggregate(uuid.NewUUID())
	customerID := uuid.NewUUID()
	require.NoError(t, agg.Create(customerID, []order.Item{{SKU: "SKU-A", Quantity: 2}}, uuid.NewUUID()))

	original := agg.UncommittedEvents()[0]

	doc, err := serializer.Serialize(original)
	require.NoError(t, err)
	assert.Equal(t, agg.ID().String(), doc.AggregateID)
	assert.Equal(t, order.AggregateType, doc.AggregateType)
	assert.Equal(t, order.EventTypeOrderCreated, doc.EventType)
	assert.Equal(t, 1, doc.Sequence)

	restored, err := serializer.Deserialize(doc)
	require.NoError(t, err)

	created, ok := restored.(*order.Created)
	require.True(t, ok, "expected *order.Created")
	assert.Equal(t, customerID, created.CustomerID)
	assert.Equal(t, order.StatusPending, created.Status)
	require.Len(t, created.Items, 1)
	assert.Equal(t, "SKU-A", created.Items[0].SKU)
	assert.Equal(t, 2, created.Items[0].Quantity)
	assert.Equal(t, 1, restored.Sequence())
	assert.Equal(t, agg.ID().String(), restored.AggregateID())
}

func TestSerializer_RoundTripShipped(t *testing.T) {
	serializer := eventstore.NewEventSerializer()
	agg := order.NewOrderAggregate(uuid.NewUUID())
	require.NoError(t, agg.Create(uuid.NewUUID(), []order.Item{{SKU: "SKU-A", Quantity: 1}}, uuid.NewUUID()))
	shipper := uuid.NewUUID()
	require.NoError(t, agg.Ship(shipper))

	original := agg.UncommittedEvents()[1]

	doc, err := serializer.Serialize(original)
	require.NoError(t, err)

	restored, err := serializer.Deserialize(doc)
	require.NoError(t, err)

	shipped, ok := restored.(*order.Shipped)
	require.True(t, ok, "expected *order.Shipped")
	assert.Equal(t, shipper, shipped.ShippedBy)
	assert.Equal(t, 2, restored.Sequence())
}

func TestSerializer_UnknownEventType(t *testing.T) {
	serializer := eventstore.NewEventSerializer()
	doc := &eventstore.EventDocument{EventType: "order.exploded"}

	_, err := serializer.Deserialize(doc)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown event type")
}
