package order

import (
	"context"
	"fmt"

	"github.com/orderflow/orderflow/internal/application/appcore"
	"github.com/orderflow/orderflow/internal/application/dispatch"
	"github.com/orderflow/orderflow/internal/domain/order"
)

// RegisterHandlers binds all order command handlers into the registry.
// Called once at process startup; a duplicate registration is a
// configuration error and is returned as such.
func RegisterHandlers(registry *dispatch.Registry) error {
	handlers := map[string]dispatch.Handler{
		CommandCreateOrder: dispatch.HandlerFunc(handleCreateOrder),
		CommandAddItem:     dispatch.HandlerFunc(handleAddItem),
		CommandShipOrder:   dispatch.HandlerFunc(handleShipOrder),
		CommandCancelOrder: dispatch.HandlerFunc(handleCancelOrder),
		CommandDeleteOrder: dispatch.HandlerFunc(handleDeleteOrder),
	}

	for name, handler := range handlers {
		if err := registry.Register(name, handler); err != nil {
			return fmt.Errorf("failed to register %s: %w", name, err)
		}
	}

	return nil
}

func handleCreateOrder(_ context.Context, agg *order.Aggregate, cmd appcore.Command) error {
	c, ok := cmd.(CreateOrder)
	if !ok {
		return fmt.Errorf("unexpected command type %T for %s", cmd, CommandCreateOrder)
	}
	if err := c.Validate(); err != nil {
		return err
	}

	return agg.Create(c.CustomerID, c.Items, c.CreatedBy)
}

func handleAddItem(_ context.Context, agg *order.Aggregate, cmd appcore.Command) error {
	c, ok := cmd.(AddItem)
	if !ok {
		return fmt.Errorf("unexpected command type %T for %s", cmd, CommandAddItem)
	}
	if err := c.Validate(); err != nil {
		return err
	}

	return agg.AddItem(c.Item, c.AddedBy)
}

func handleShipOrder(_ context.Context, agg *order.Aggregate, cmd appcore.Command) error {
	c, ok := cmd.(ShipOrder)
	if !ok {
		return fmt.Errorf("unexpected command type %T for %s", cmd, CommandShipOrder)
	}
	if err := c.Validate(); err != nil {
		return err
	}

	return agg.Ship(c.ShippedBy)
}

func handleCancelOrder(_ context.Context, agg *order.Aggregate, cmd appcore.Command) error {
	c, ok := cmd.(CancelOrder)
	if !ok {
		return fmt.Errorf("unexpected command type %T for %s", cmd, CommandCancelOrder)
	}
	if err := c.Validate(); err != nil {
		return err
	}

	return agg.Cancel(c.Reason, c.CancelledBy)
}

func handleDeleteOrder(_ context.Context, agg *order.Aggregate, cmd appcore.Command) error {
	c, ok := cmd.(DeleteOrder)
	if !ok {
		return fmt.Errorf("unexpected command type %T for %s", cmd, CommandDeleteOrder)
	}
	if err := c.Validate(); err != nil {
		return err
	}

	return agg.Delete(c.DeletedBy)
}
