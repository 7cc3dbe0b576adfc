package eventstore

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/orderflow/orderflow/internal/domain/event"
	orderdomain "github.com/orderflow/orderflow/internal/domain/order"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// EventDocument is the MongoDB document shape for a stored event.
type EventDocument struct {
	ID bson.ObjectID `bson:"_id,omitempty"`

	AggregateID   string                `bson:"aggregate_id"`
	AggregateType string                `bson:"aggregate_type"`
	EventType     string                `bson:"event_type"`
	Sequence      int                   `bson:"sequence"`
	Data          bson.M                `bson:"data"`
	Metadata      EventMetadataDocument `bson:"metadata"`
	OccurredAt    time.Time             `bson:"occurred_at"`
	CreatedAt     time.Time             `bson:"created_at"`
}

// EventMetadataDocument is the MongoDB shape of event metadata.
type EventMetadataDocument struct {
	Timestamp     time.Time `bson:"timestamp"`
	ActorID       string    `bson:"actor_id,omitempty"`
	CorrelationID string    `bson:"correlation_id"`
	CausationID   string    `bson:"causation_id,omitempty"`
}

// EventSerializer converts domain events to and from MongoDB documents.
type EventSerializer struct{}

// NewEventSerializer creates an event serializer.
func NewEventSerializer() *EventSerializer {
	return &EventSerializer{}
}

// Serialize converts a domain event into a MongoDB document. The payload
// goes through JSON so complex field types serialize uniformly.
func (s *EventSerializer) Serialize(e event.DomainEvent) (*EventDocument, error) {
	jsonData, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event to JSON: %w", err)
	}

	var dataMap bson.M
	if err2 := json.Unmarshal(jsonData, &dataMap); err2 != nil {
		return nil, fmt.Errorf("failed to unmarshal event to map: %w", err2)
	}

	metadata := e.Metadata()
	metadataDoc := EventMetadataDocument{
		Timestamp:     metadata.Timestamp,
		ActorID:       metadata.ActorID,
		CorrelationID: metadata.CorrelationID,
		CausationID:   metadata.CausationID,
	}

	doc := &EventDocument{
		AggregateID:   e.AggregateID(),
		AggregateType: e.AggregateType(),
		EventType:     e.EventType(),
		Sequence:      e.Sequence(),
		Data:          dataMap,
		Metadata:      metadataDoc,
		OccurredAt:    e.OccurredAt(),
		CreatedAt:     time.Now(),
	}

	return doc, nil
}

// SerializeMany serializes a batch of events.
func (s *EventSerializer) SerializeMany(events []event.DomainEvent) ([]*EventDocument, error) {
	documents := make([]*EventDocument, 0, len(events))

	for i, e := range events {
		doc, err := s.Serialize(e)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize event at index %d: %w", i, err)
		}
		documents = append(documents, doc)
	}

	return documents, nil
}

// Deserialize reconstructs a typed domain event from a stored document.
func (s *EventSerializer) Deserialize(doc *EventDocument) (event.DomainEvent, error) {
	prototype, err := createEventByType(doc.EventType)
	if err != nil {
		return nil, err
	}

	jsonData, err := bson.MarshalExtJSON(doc.Data, false, false)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal BSON to JSON: %w", err)
	}

	if err = json.Unmarshal(jsonData, prototype); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s payload: %w", doc.EventType, err)
	}

	base := event.RestoreBaseEvent(
		doc.EventType,
		doc.AggregateID,
		doc.AggregateType,
		doc.Sequence,
		doc.OccurredAt,
		event.Metadata{
			Timestamp:     doc.Metadata.Timestamp,
			ActorID:       doc.Metadata.ActorID,
			CorrelationID: doc.Metadata.CorrelationID,
			CausationID:   doc.Metadata.CausationID,
		},
	)
	restoreBase(prototype, base)

	return prototype, nil
}

// PayloadCarrier is implemented by transport events that carry the original
// JSON payload instead of typed fields.
type PayloadCarrier interface {
	Payload() []byte
}

// DecodeTyped returns the typed form of a domain event. Typed events pass
// through unchanged; transport events carrying a raw JSON payload are
// reconstructed into their concrete type.
func DecodeTyped(evt event.DomainEvent) (event.DomainEvent, error) {
	switch evt.(type) {
	case *orderdomain.Created, *orderdomain.ItemAdded, *orderdomain.Shipped,
		*orderdomain.Cancelled, *orderdomain.Deleted:
		return evt, nil
	}

	carrier, ok := evt.(PayloadCarrier)
	if !ok {
		return nil, fmt.Errorf("cannot decode event %s: no payload available", evt.EventType())
	}

	prototype, err := createEventByType(evt.EventType())
	if err != nil {
		return nil, err
	}

	if err = json.Unmarshal(carrier.Payload(), prototype); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s payload: %w", evt.EventType(), err)
	}

	base := event.RestoreBaseEvent(
		evt.EventType(),
		evt.AggregateID(),
		evt.AggregateType(),
		evt.Sequence(),
		evt.OccurredAt(),
		evt.Metadata(),
	)
	restoreBase(prototype, base)

	return prototype, nil
}

// createEventByType creates an empty event instance by event type.
func createEventByType(eventType string) (event.DomainEvent, error) {
	switch eventType {
	case orderdomain.EventTypeOrderCreated:
		return &orderdomain.Created{}, nil
	case orderdomain.EventTypeItemAdded:
		return &orderdomain.ItemAdded{}, nil
	case orderdomain.EventTypeOrderShipped:
		return &orderdomain.Shipped{}, nil
	case orderdomain.EventTypeOrderCancelled:
		return &orderdomain.Cancelled{}, nil
	case orderdomain.EventTypeOrderDeleted:
		return &orderdomain.Deleted{}, nil
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
}

// restoreBase installs the restored BaseEvent into a concrete event.
func restoreBase(evt event.DomainEvent, base event.BaseEvent) {
	switch e := evt.(type) {
	case *orderdomain.Created:
		e.BaseEvent = base
	case *orderdomain.ItemAdded:
		e.BaseEvent = base
	case *orderdomain.Shipped:
		e.BaseEvent = base
	case *orderdomain.Cancelled:
		e.BaseEvent = base
	case *orderdomain.Deleted:
		e.BaseEvent = base
	}
}
