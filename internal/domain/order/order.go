// Package order contains the Order aggregate and its domain events.
package order

import (
	"time"

	"github.com/orderflow/orderflow/internal/domain/errs"
	"github.com/orderflow/orderflow/internal/domain/event"
	"github.com/orderflow/orderflow/internal/domain/uuid"
)

// Status is the order lifecycle status.
type Status string

// Order statuses.
const (
	StatusPending   Status = "pending"
	StatusShipped   Status = "shipped"
	StatusCancelled Status = "cancelled"
)

// Item is a line item on an order.
type Item struct {
	SKU      string `json:"sku"      bson:"sku"`
	Quantity int    `json:"quantity" bson:"quantity"`
}

// Aggregate is the write-side Order entity with Event Sourcing support.
type Aggregate struct {
	id uuid.UUID

	// Current state, reconstructed from events.
	customerID uuid.UUID
	items      []Item
	status     Status
	deleted    bool
	createdAt  time.Time
	createdBy  uuid.UUID

	// Event Sourcing bookkeeping. The version equals the sequence number
	// of the last applied event.
	version           int
	uncommittedEvents []event.DomainEvent
}

// NewOrderAggregate creates an empty aggregate for the given id.
func NewOrderAggregate(id uuid.UUID) *Aggregate {
	return &Aggregate{
		id:                id,
		uncommittedEvents: make([]event.DomainEvent, 0),
	}
}

// Create places a new order (emits order.created).
func (a *Aggregate) Create(customerID uuid.UUID, items []Item, createdBy uuid.UUID) error {
	if a.version > 0 {
		return errs.ErrAlreadyExists
	}
	if customerID.IsZero() {
		return errs.ErrInvalidInput
	}
	if len(items) == 0 {
		return errs.ErrInvalidInput
	}
	for _, item := range items {
		if item.SKU == "" || item.Quantity <= 0 {
			return errs.ErrInvalidInput
		}
	}

	evt := NewOrderCreated(
		a.id,
		customerID,
		items,
		StatusPending,
		createdBy,
		a.nextSequence(),
		event.Metadata{
			ActorID:       createdBy.String(),
			CorrelationID: uuid.NewUUID().String(),
		},
	)

	a.apply(evt)

	return nil
}

// AddItem adds a line item to a pending order.
func (a *Aggregate) AddItem(item Item, addedBy uuid.UUID) error {
	if err := a.mutable(); err != nil {
		return err
	}
	if item.SKU == "" || item.Quantity <= 0 {
		return errs.ErrInvalidInput
	}
	if a.status != StatusPending {
		return errs.ErrInvalidTransition
	}

	evt := NewItemAdded(
		a.id,
		item,
		addedBy,
		a.nextSequence(),
		event.Metadata{
			ActorID:       addedBy.String(),
			CorrelationID: uuid.NewUUID().String(),
		},
	)

	a.apply(evt)

	return nil
}

// Ship marks the order as shipped. Shipping an already shipped order is a
// no-op rather than an error.
func (a *Aggregate) Ship(shippedBy uuid.UUID) error {
	if err := a.mutable(); err != nil {
		return err
	}
	if a.status == StatusShipped {
		return nil
	}
	if a.status != StatusPending {
		return errs.ErrInvalidTransition
	}

	evt := NewOrderShipped(
		a.id,
		shippedBy,
		a.nextSequence(),
		event.Metadata{
			ActorID:       shippedBy.String(),
			CorrelationID: uuid.NewUUID().String(),
		},
	)

	a.apply(evt)

	return nil
}

// Cancel cancels a pending order.
func (a *Aggregate) Cancel(reason string, cancelledBy uuid.UUID) error {
	if err := a.mutable(); err != nil {
		return err
	}
	if a.status == StatusCancelled {
		return nil
	}
	if a.status != StatusPending {
		return errs.ErrInvalidTransition
	}

	evt := NewOrderCancelled(
		a.id,
		reason,
		cancelledBy,
		a.nextSequence(),
		event.Metadata{
			ActorID:       cancelledBy.String(),
			CorrelationID: uuid.NewUUID().String(),
		},
	)

	a.apply(evt)

	return nil
}

// Delete removes the order, emitting the terminal order.deleted event.
func (a *Aggregate) Delete(deletedBy uuid.UUID) error {
	if err := a.mutable(); err != nil {
		return err
	}

	evt := NewOrderDeleted(
		a.id,
		deletedBy,
		a.nextSequence(),
		event.Metadata{
			ActorID:       deletedBy.String(),
			CorrelationID: uuid.NewUUID().String(),
		},
	)

	a.apply(evt)

	return nil
}

// mutable checks the aggregate exists and has not reached its terminal event.
func (a *Aggregate) mutable() error {
	if a.version == 0 {
		return errs.ErrNotFound
	}
	if a.deleted {
		return errs.ErrDeleted
	}
	return nil
}

// nextSequence returns the sequence number for the next emitted event.
func (a *Aggregate) nextSequence() int {
	return a.version + 1
}

// apply applies an event to the aggregate and records it as uncommitted.
func (a *Aggregate) apply(evt event.DomainEvent) {
	a.applyChange(evt)
	a.uncommittedEvents = append(a.uncommittedEvents, evt)
}

// applyChange mutates aggregate state from an event.
func (a *Aggregate) applyChange(evt event.DomainEvent) {
	switch e := evt.(type) {
	case *Created:
		a.customerID = e.CustomerID
		a.items = append([]Item(nil), e.Items...)
		a.status = e.Status
		a.createdAt = evt.OccurredAt()
		a.createdBy = e.CreatedBy

	case *Shipped:
		a.status = StatusShipped

	case *Cancelled:
		a.status = StatusCancelled

	case *ItemAdded:
		a.items = append(a.items, e.Item)

	case *Deleted:
		a.deleted = true
	}

	a.version = evt.Sequence()
}

// ReplayEvents reconstructs aggregate state from its committed history.
// Events must be supplied in sequence order starting at 1.
func (a *Aggregate) ReplayEvents(events []event.DomainEvent) {
	for _, evt := range events {
		a.applyChange(evt)
	}
}

// UncommittedEvents returns events that have not been persisted yet.
func (a *Aggregate) UncommittedEvents() []event.DomainEvent {
	return a.uncommittedEvents
}

// MarkEventsAsCommitted clears the uncommitted event list.
func (a *Aggregate) MarkEventsAsCommitted() {
	a.uncommittedEvents = make([]event.DomainEvent, 0)
}

// Getters

// ID returns the aggregate id.
func (a *Aggregate) ID() uuid.UUID { return a.id }

// CustomerID returns the customer the order belongs to.
func (a *Aggregate) CustomerID() uuid.UUID { return a.customerID }

// Items returns the order line items.
func (a *Aggregate) Items() []Item { return a.items }

// Status returns the current status.
func (a *Aggregate) Status() Status { return a.status }

// IsDeleted reports whether the terminal deletion event was applied.
func (a *Aggregate) IsDeleted() bool { return a.deleted }

// Version returns the current aggregate version.
func (a *Aggregate) Version() int { return a.version }

// CreatedAt returns the creation time.
func (a *Aggregate) CreatedAt() time.Time { return a.createdAt }

// CreatedBy returns who placed the order.
func (a *Aggregate) CreatedBy() uuid.UUID { return a.createdBy }
