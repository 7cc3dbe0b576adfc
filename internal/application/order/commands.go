// Package order contains the application-level command and query surface
// for orders.
package order

import (
	"github.com/orderflow/orderflow/internal/application/appcore"
	"github.com/orderflow/orderflow/internal/domain/order"
	"github.com/orderflow/orderflow/internal/domain/uuid"
)

// Command names used for handler registration.
const (
	CommandCreateOrder = "order.create"
	CommandAddItem     = "order.add_item"
	CommandShipOrder   = "order.ship"
	CommandCancelOrder = "order.cancel"
	CommandDeleteOrder = "order.delete"
)

// CreateOrder places a new order. It is a creation command: the dispatcher
// generates the order id and returns it in the result.
type CreateOrder struct {
	CustomerID uuid.UUID
	Items      []order.Item
	CreatedBy  uuid.UUID
}

// CommandName implements appcore.Command.
func (CreateOrder) CommandName() string { return CommandCreateOrder }

// Validate checks command input.
func (c CreateOrder) Validate() error {
	if c.CustomerID.IsZero() {
		return appcore.NewValidationError("customer_id", "must not be empty")
	}
	if len(c.Items) == 0 {
		return appcore.NewValidationError("items", "must contain at least one item")
	}
	for _, item := range c.Items {
		if item.SKU == "" {
			return appcore.NewValidationError("items.sku", "must not be empty")
		}
		if item.Quantity <= 0 {
			return appcore.NewValidationError("items.quantity", "must be positive")
		}
	}
	return nil
}

// AddItem adds a line item to a pending order.
type AddItem struct {
	OrderID uuid.UUID
	Item    order.Item
	Version int
	AddedBy uuid.UUID
}

// CommandName implements appcore.Command.
func (AddItem) CommandName() string { return CommandAddItem }

// TargetID implements appcore.AggregateCommand.
func (c AddItem) TargetID() string { return c.OrderID.String() }

// ExpectedVersion implements appcore.VersionedCommand.
func (c AddItem) ExpectedVersion() int { return c.Version }

// Validate checks command input.
func (c AddItem) Validate() error {
	if c.OrderID.IsZero() {
		return appcore.NewValidationError("order_id", "must not be empty")
	}
	if c.Item.SKU == "" {
		return appcore.NewValidationError("item.sku", "must not be empty")
	}
	if c.Item.Quantity <= 0 {
		return appcore.NewValidationError("item.quantity", "must be positive")
	}
	return nil
}

// ShipOrder marks an order as shipped.
type ShipOrder struct {
	OrderID   uuid.UUID
	Version   int
	ShippedBy uuid.UUID
}

// CommandName implements appcore.Command.
func (ShipOrder) CommandName() string { return CommandShipOrder }

// TargetID implements appcore.AggregateCommand.
func (c ShipOrder) TargetID() string { return c.OrderID.String() }

// ExpectedVersion implements appcore.VersionedCommand.
func (c ShipOrder) ExpectedVersion() int { return c.Version }

// Validate checks command input.
func (c ShipOrder) Validate() error {
	if c.OrderID.IsZero() {
		return appcore.NewValidationError("order_id", "must not be empty")
	}
	return nil
}

// CancelOrder cancels a pending order.
type CancelOrder struct {
	OrderID     uuid.UUID
	Reason      string
	Version     int
	CancelledBy uuid.UUID
}

// CommandName implements appcore.Command.
func (CancelOrder) CommandName() string { return CommandCancelOrder }

// TargetID implements appcore.AggregateCommand.
func (c CancelOrder) TargetID() string { return c.OrderID.String() }

// ExpectedVersion implements appcore.VersionedCommand.
func (c CancelOrder) ExpectedVersion() int { return c.Version }

// Validate checks command input.
func (c CancelOrder) Validate() error {
	if c.OrderID.IsZero() {
		return appcore.NewValidationError("order_id", "must not be empty")
	}
	return nil
}

// DeleteOrder removes an order via its terminal deletion event.
type DeleteOrder struct {
	OrderID   uuid.UUID
	Version   int
	DeletedBy uuid.UUID
}

// CommandName implements appcore.Command.
func (DeleteOrder) CommandName() string { return CommandDeleteOrder }

// TargetID implements appcore.AggregateCommand.
func (c DeleteOrder) TargetID() string { return c.OrderID.String() }

// ExpectedVersion implements appcore.VersionedCommand.
func (c DeleteOrder) ExpectedVersion() int { return c.Version }

// Validate checks command input.
func (c DeleteOrder) Validate() error {
	if c.OrderID.IsZero() {
		return appcore.NewValidationError("order_id", "must not be empty")
	}
	return nil
}
