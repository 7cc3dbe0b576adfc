package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderflow/orderflow/internal/domain/event"
)

// carrierEvent mirrors the shape of events restored from the outbox: all
// fields unexported, the serialized payload exposed through Payload().
type carrierEvent struct {
	eventType   string
	aggregateID string
	sequence    int
	occurredAt  time.Time
	payload     []byte
}

func (e *carrierEvent) EventType() string        { return e.eventType }
func (e *carrierEvent) AggregateID() string      { return e.aggregateID }
func (e *carrierEvent) AggregateType() string    { return "order" }
func (e *carrierEvent) OccurredAt() time.Time    { return e.occurredAt }
func (e *carrierEvent) Sequence() int            { return e.sequence }
func (e *carrierEvent) Metadata() event.Metadata { return event.Metadata{ActorID: "actor-1"} }
func (e *carrierEvent) Payload() []byte          { return e.payload }

type plainEvent struct {
	CustomerID string `json:"customer_id"`
}

func (e *plainEvent) EventType() string        { return "order.created" }
func (e *plainEvent) AggregateID() string      { return "agg-1" }
func (e *plainEvent) AggregateType() string    { return "order" }
func (e *plainEvent) OccurredAt() time.Time    { return time.Now() }
func (e *plainEvent) Sequence() int            { return 1 }
func (e *plainEvent) Metadata() event.Metadata { return event.Metadata{} }

func TestCreateEnvelope_UsesCarrierPayload(t *testing.T) {
	typed := []byte(`{"customer_id":"c-1","items":[{"sku":"SKU-A","quantity":2}]}`)
	evt := &carrierEvent{
		eventType:   "order.created",
		aggregateID: "order-1",
		sequence:    1,
		occurredAt:  time.Now(),
		payload:     typed,
	}

	bus := NewRedisEventBus(nil)
	envelope, err := bus.createEnvelope(evt)
	require.NoError(t, err)

	// Marshalling the event struct itself would yield {} since every field
	// is unexported. The envelope must carry the typed payload instead.
	assert.NotEqual(t, "{}", string(envelope.Payload))
	assert.JSONEq(t, string(typed), string(envelope.Payload))
	assert.Equal(t, "order.created", envelope.EventType)
	assert.Equal(t, "order-1", envelope.AggregateID)
	assert.Equal(t, 1, envelope.Sequence)
	assert.Equal(t, "actor-1", envelope.Metadata.ActorID)
}

func TestCreateEnvelope_RoundTripKeepsPayload(t *testing.T) {
	typed := []byte(`{"customer_id":"c-1","items":[{"sku":"SKU-A","quantity":2}]}`)
	evt := &carrierEvent{
		eventType:   "order.created",
		aggregateID: "order-1",
		sequence:    1,
		occurredAt:  time.Now(),
		payload:     typed,
	}

	bus := NewRedisEventBus(nil)
	envelope, err := bus.createEnvelope(evt)
	require.NoError(t, err)

	wire, err := json.Marshal(envelope)
	require.NoError(t, err)

	var decoded eventEnvelope
	require.NoError(t, json.Unmarshal(wire, &decoded))

	transport := &TransportEvent{envelope: decoded}
	assert.JSONEq(t, string(typed), string(transport.Payload()))
	assert.Equal(t, evt.Sequence(), transport.Sequence())
	assert.Equal(t, evt.AggregateID(), transport.AggregateID())
}

func TestCreateEnvelope_MarshalsEventsWithoutCarrier(t *testing.T) {
	bus := NewRedisEventBus(nil)
	envelope, err := bus.createEnvelope(&plainEvent{CustomerID: "c-2"})
	require.NoError(t, err)

	assert.JSONEq(t, `{"customer_id":"c-2"}`, string(envelope.Payload))
}
