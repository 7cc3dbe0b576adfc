package order

import (
	"time"

	"github.com/orderflow/orderflow/internal/domain/event"
	"github.com/orderflow/orderflow/internal/domain/uuid"
)

// AggregateType identifies order events in the event store.
const AggregateType = "order"

// Event types
const (
	EventTypeOrderCreated   = "order.created"
	EventTypeItemAdded      = "order.item_added"
	EventTypeOrderShipped   = "order.shipped"
	EventTypeOrderCancelled = "order.cancelled"
	EventTypeOrderDeleted   = "order.deleted"
)

// EventTypes lists every order event type, in no particular order. Used to
// subscribe projection consumers to the full stream.
var EventTypes = []string{
	EventTypeOrderCreated,
	EventTypeItemAdded,
	EventTypeOrderShipped,
	EventTypeOrderCancelled,
	EventTypeOrderDeleted,
}

// Created is emitted when an order is placed.
type Created struct {
	event.BaseEvent

	CustomerID uuid.UUID `json:"customer_id"`
	Items      []Item    `json:"items"`
	Status     Status    `json:"status"`
	CreatedBy  uuid.UUID `json:"created_by"`
}

// NewOrderCreated creates a Created event.
func NewOrderCreated(
	orderID, customerID uuid.UUID,
	items []Item,
	status Status,
	createdBy uuid.UUID,
	seq int,
	metadata event.Metadata,
) *Created {
	return &Created{
		BaseEvent:  event.NewBaseEvent(EventTypeOrderCreated, orderID.String(), AggregateType, seq, metadata),
		CustomerID: customerID,
		Items:      items,
		Status:     status,
		CreatedBy:  createdBy,
	}
}

// ItemAdded is emitted when a line item is added to a pending order.
type ItemAdded struct {
	event.BaseEvent

	Item    Item      `json:"item"`
	AddedBy uuid.UUID `json:"added_by"`
}

// NewItemAdded creates an ItemAdded event.
func NewItemAdded(orderID uuid.UUID, item Item, addedBy uuid.UUID, seq int, metadata event.Metadata) *ItemAdded {
	return &ItemAdded{
		BaseEvent: event.NewBaseEvent(EventTypeItemAdded, orderID.String(), AggregateType, seq, metadata),
		Item:      item,
		AddedBy:   addedBy,
	}
}

// Shipped is emitted when an order leaves the warehouse.
type Shipped struct {
	event.BaseEvent

	ShippedAt time.Time `json:"shipped_at"`
	ShippedBy uuid.UUID `json:"shipped_by"`
}

// NewOrderShipped creates a Shipped event.
func NewOrderShipped(orderID uuid.UUID, shippedBy uuid.UUID, seq int, metadata event.Metadata) *Shipped {
	return &Shipped{
		BaseEvent: event.NewBaseEvent(EventTypeOrderShipped, orderID.String(), AggregateType, seq, metadata),
		ShippedAt: time.Now(),
		ShippedBy: shippedBy,
	}
}

// Cancelled is emitted when an order is cancelled before shipping.
type Cancelled struct {
	event.BaseEvent

	Reason      string    `json:"reason"`
	CancelledBy uuid.UUID `json:"cancelled_by"`
}

// NewOrderCancelled creates a Cancelled event.
func NewOrderCancelled(orderID uuid.UUID, reason string, cancelledBy uuid.UUID, seq int, metadata event.Metadata) *Cancelled {
	return &Cancelled{
		BaseEvent:   event.NewBaseEvent(EventTypeOrderCancelled, orderID.String(), AggregateType, seq, metadata),
		Reason:      reason,
		CancelledBy: cancelledBy,
	}
}

// Deleted is the terminal event removing an order from the system.
// Read views drop the order when this event is applied.
type Deleted struct {
	event.BaseEvent

	DeletedBy uuid.UUID `json:"deleted_by"`
}

// NewOrderDeleted creates a Deleted event.
func NewOrderDeleted(orderID uuid.UUID, deletedBy uuid.UUID, seq int, metadata event.Metadata) *Deleted {
	return &Deleted{
		BaseEvent: event.NewBaseEvent(EventTypeOrderDeleted, orderID.String(), AggregateType, seq, metadata),
		DeletedBy: deletedBy,
	}
}
