package order_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderflow/orderflow/internal/application/appcore"
	orderapp "github.com/orderflow/orderflow/internal/application/order"
	"github.com/orderflow/orderflow/internal/domain/order"
	"github.com/orderflow/orderflow/internal/domain/uuid"
)

func TestCreateOrder_Validate(t *testing.T) {
	valid := orderapp.CreateOrder{
		CustomerID: uuid.NewUUID(),
		Items:      []order.Item{{SKU: "SKU-A", Quantity: 1}},
		CreatedBy:  uuid.NewUUID(),
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*orderapp.CreateOrder)
	}{
		{"missing customer", func(c *orderapp.CreateOrder) { c.CustomerID = "" }},
		{"no items", func(c *orderapp.CreateOrder) { c.Items = nil }},
		{"empty sku", func(c *orderapp.CreateOrder) { c.Items = []order.Item{{Quantity: 1}} }},
		{"zero quantity", func(c *orderapp.CreateOrder) { c.Items = []order.Item{{SKU: "SKU-A"}} }},
		{"negative quantity", func(c *orderapp.CreateOrder) {
			c.Items = []order.Item{{SKU: "SKU-A", Quantity: -1}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := valid
			tt.mutate(&cmd)
			assert.ErrorIs(t, cmd.Validate(), appcore.ErrValidationFailed)
		})
	}
}

func TestAddItem_Validate(t *testing.T) {
	valid := orderapp.AddItem{
		OrderID: uuid.NewUUID(),
		Item:    order.Item{SKU: "SKU-A", Quantity: 1},
		Version: 1,
		AddedBy: uuid.NewUUID(),
	}
	require.NoError(t, valid.Validate())

	missingOrder := valid
	missingOrder.OrderID = ""
	assert.ErrorIs(t, missingOrder.Validate(), appcore.ErrValidationFailed)

	emptySKU := valid
	emptySKU.Item.SKU = ""
	assert.ErrorIs(t, emptySKU.Validate(), appcore.ErrValidationFailed)

	zeroQuantity := valid
	zeroQuantity.Item.Quantity = 0
	assert.ErrorIs(t, zeroQuantity.Validate(), appcore.ErrValidationFailed)
}

func TestShipOrder_Validate(t *testing.T) {
	require.NoError(t, orderapp.ShipOrder{OrderID: uuid.NewUUID()}.Validate())
	assert.ErrorIs(t, orderapp.ShipOrder{}.Validate(), appcore.ErrValidationFailed)
}

func TestCancelOrder_Validate(t *testing.T) {
	require.NoError(t, orderapp.CancelOrder{OrderID: uuid.NewUUID(), Reason: "oops"}.Validate())
	assert.ErrorIs(t, orderapp.CancelOrder{Reason: "oops"}.Validate(), appcore.ErrValidationFailed)
}

func TestDeleteOrder_Validate(t *testing.T) {
	require.NoError(t, orderapp.DeleteOrder{OrderID: uuid.NewUUID()}.Validate())
	assert.ErrorIs(t, orderapp.DeleteOrder{}.Validate(), appcore.ErrValidationFailed)
}

func TestCommandNames(t *testing.T) {
	assert.Equal(t, "order.create", orderapp.CreateOrder{}.CommandName())
	assert.Equal(t, "order.add_item", orderapp.AddItem{}.CommandName())
	assert.Equal(t, "order.ship", orderapp.ShipOrder{}.CommandName())
	assert.Equal(t, "order.cancel", orderapp.CancelOrder{}.CommandName())
	assert.Equal(t, "order.delete", orderapp.DeleteOrder{}.CommandName())
}

func TestVersionedCommandsCarryExpectedVersion(t *testing.T) {
	orderID := uuid.NewUUID()

	var cmd appcore.VersionedCommand = orderapp.ShipOrder{OrderID: orderID, Version: 3}
	assert.Equal(t, orderID.String(), cmd.(appcore.AggregateCommand).TargetID())
	assert.Equal(t, 3, cmd.ExpectedVersion())
}
