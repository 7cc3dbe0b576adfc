// Package httphandler exposes the command and query API over HTTP.
package httphandler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/orderflow/orderflow/internal/application/appcore"
	"github.com/orderflow/orderflow/internal/application/dispatch"
	orderapp "github.com/orderflow/orderflow/internal/application/order"
	"github.com/orderflow/orderflow/internal/domain/order"
	"github.com/orderflow/orderflow/internal/domain/uuid"
	"github.com/orderflow/orderflow/internal/infrastructure/httpserver"
)

// Validation constants for the order handler.
const (
	maxItemsPerRequest   = 100
	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
)

// ItemRequest represents a line item in API requests.
type ItemRequest struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

// CreateOrderRequest represents the request to create an order.
type CreateOrderRequest struct {
	CustomerID string        `json:"customer_id"`
	Items      []ItemRequest `json:"items"`
	ActorID    string        `json:"actor_id"`
}

// AddItemRequest represents the request to add an item to an order.
type AddItemRequest struct {
	Item    ItemRequest `json:"item"`
	Version int         `json:"version"`
	ActorID string      `json:"actor_id"`
}

// ShipOrderRequest represents the request to ship an order.
type ShipOrderRequest struct {
	Version int    `json:"version"`
	ActorID string `json:"actor_id"`
}

// CancelOrderRequest represents the request to cancel an order.
type CancelOrderRequest struct {
	Reason  string `json:"reason"`
	Version int    `json:"version"`
	ActorID string `json:"actor_id"`
}

// DeleteOrderRequest represents the request to delete an order.
type DeleteOrderRequest struct {
	Version int    `json:"version"`
	ActorID string `json:"actor_id"`
}

// CommandResponse reports the outcome of an accepted command. Version is
// the aggregate version after the write; the read side catches up
// asynchronously.
type CommandResponse struct {
	OrderID string `json:"order_id"`
	Version int    `json:"version"`
}

// OrderListResponse represents a page of order views.
type OrderListResponse struct {
	Orders  []*orderapp.View `json:"orders"`
	HasMore bool             `json:"has_more"`
}

// CommandDispatcher executes state-changing commands.
// Declared on the consumer side per project guidelines.
type CommandDispatcher interface {
	Dispatch(ctx context.Context, cmd appcore.Command) (dispatch.Result, error)
}

// OrderQueries serves the read side.
type OrderQueries interface {
	GetOrder(ctx context.Context, q orderapp.GetOrderQuery) (*orderapp.View, error)
	ListOrders(ctx context.Context, q orderapp.ListOrdersQuery) ([]*orderapp.View, error)
	CustomerSummary(ctx context.Context, q orderapp.CustomerSummaryQuery) (*orderapp.CustomerSummary, error)
}

// OrderHandler handles order-related HTTP requests.
type OrderHandler struct {
	dispatcher CommandDispatcher
	queries    OrderQueries
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(dispatcher CommandDispatcher, queries OrderQueries) *OrderHandler {
	return &OrderHandler{
		dispatcher: dispatcher,
		queries:    queries,
	}
}

// RegisterRoutes registers order routes with the router.
func (h *OrderHandler) RegisterRoutes(r *httpserver.Router) {
	r.API().POST("/orders", h.Create)
	r.API().GET("/orders", h.List)
	r.API().GET("/orders/:id", h.Get)
	r.API().POST("/orders/:id/items", h.AddItem)
	r.API().POST("/orders/:id/ship", h.Ship)
	r.API().POST("/orders/:id/cancel", h.Cancel)
	r.API().DELETE("/orders/:id", h.Delete)
	r.API().GET("/customers/:id/summary", h.CustomerSummary)
}

// Create handles POST /api/v1/orders.
func (h *OrderHandler) Create(c echo.Context) error {
	var req CreateOrderRequest
	if bindErr := c.Bind(&req); bindErr != nil {
		return httpserver.RespondErrorWithCode(
			c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
	}

	customerID, err := uuid.ParseUUID(req.CustomerID)
	if err != nil {
		return httpserver.RespondErrorWithCode(
			c, http.StatusBadRequest, "INVALID_CUSTOMER_ID", "invalid customer ID format")
	}

	if len(req.Items) > maxItemsPerRequest {
		return httpserver.RespondErrorWithCode(
			c, http.StatusBadRequest, "TOO_MANY_ITEMS", "too many items in one request")
	}

	actorID, err := parseActorID(req.ActorID)
	if err != nil {
		return httpserver.RespondErrorWithCode(
			c, http.StatusBadRequest, "INVALID_ACTOR_ID", "invalid actor ID format")
	}

	cmd := orderapp.CreateOrder{
		CustomerID: customerID,
		Items:      toItems(req.Items),
		CreatedBy:  actorID,
	}

	result, err := h.dispatcher.Dispatch(c.Request().Context(), cmd)
	if err != nil {
		return httpserver.RespondError(c, err)
	}

	return httpserver.RespondCreated(c, CommandResponse{
		OrderID: result.AggregateID.String(),
		Version: result.Version,
	})
}

// AddItem handles POST /api/v1/orders/:id/items.
func (h *OrderHandler) AddItem(c echo.Context) error {
	orderID, err := parseOrderID(c)
	if err != nil {
		return httpserver.RespondErrorWithCode(
			c, http.StatusBadRequest, "INVALID_ORDER_ID", "invalid order ID format")
	}

	var req AddItemRequest
	if bindErr := c.Bind(&req); bindErr != nil {
		return httpserver.RespondErrorWithCode(
			c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
	}

	actorID, err := parseActorID(req.ActorID)
	if err != nil {
		return httpserver.RespondErrorWithCode(
			c, http.StatusBadRequest, "INVALID_ACTOR_ID", "invalid actor ID format")
	}

	cmd := orderapp.AddItem{
		OrderID: orderID,
		Item:    order.Item{SKU: req.Item.SKU, Quantity: req.Item.Quantity},
		Version: req.Version,
		AddedBy: actorID,
	}

	result, err := h.dispatcher.Dispatch(c.Request().Context(), cmd)
	if err != nil {
		return httpserver.RespondError(c, err)
	}

	return httpserver.RespondOK(c, CommandResponse{
		OrderID: result.AggregateID.String(),
		Version: result.Version,
	})
}

// Ship handles POST /api/v1/orders/:id/ship.
func (h *OrderHandler) Ship(c echo.Context) error {
	orderID, err := parseOrderID(c)
	if err != nil {
		return httpserver.RespondErrorWithCode(
			c, http.StatusBadRequest, "INVALID_ORDER_ID", "invalid order ID format")
	}

	var req ShipOrderRequest
	if bindErr := c.Bind(&req); bindErr != nil {
		return httpserver.RespondErrorWithCode(
			c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
	}

	actorID, err := parseActorID(req.ActorID)
	if err != nil {
		return httpserver.RespondErrorWithCode(
			c, http.StatusBadRequest, "INVALID_ACTOR_ID", "invalid actor ID format")
	}

	cmd := orderapp.ShipOrder{
		OrderID:   orderID,
		Version:   req.Version,
		ShippedBy: actorID,
	}

	result, err := h.dispatcher.Dispatch(c.Request().Context(), cmd)
	if err != nil {
		return httpserver.RespondError(c, err)
	}

	return httpserver.RespondOK(c, CommandResponse{
		OrderID: result.AggregateID.String(),
		Version: result.Version,
	})
}

// Cancel handles POST /api/v1/orders/:id/cancel.
func (h *OrderHandler) Cancel(c echo.Context) error {
	orderID, err := parseOrderID(c)
	if err != nil {
		return httpserver.RespondErrorWithCode(
			c, http.StatusBadRequest, "INVALID_ORDER_ID", "invalid order ID format")
	}

	var req CancelOrderRequest
	if bindErr := c.Bind(&req); bindErr != nil {
		return httpserver.RespondErrorWithCode(
			c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
	}

	actorID, err := parseActorID(req.ActorID)
	if err != nil {
		return httpserver.RespondErrorWithCode(
			c, http.StatusBadRequest, "INVALID_ACTOR_ID", "invalid actor ID format")
	}

	cmd := orderapp.CancelOrder{
		OrderID:     orderID,
		Reason:      req.Reason,
		Version:     req.Version,
		CancelledBy: actorID,
	}

	result, err := h.dispatcher.Dispatch(c.Request().Context(), cmd)
	if err != nil {
		return httpserver.RespondError(c, err)
	}

	return httpserver.RespondOK(c, CommandResponse{
		OrderID: result.AggregateID.String(),
		Version: result.Version,
	})
}

// Delete handles DELETE /api/v1/orders/:id.
func (h *OrderHandler) Delete(c echo.Context) error {
	orderID, err := parseOrderID(c)
	if err != nil {
		return httpserver.RespondErrorWithCode(
			c, http.StatusBadRequest, "INVALID_ORDER_ID", "invalid order ID format")
	}

	var req DeleteOrderRequest
	if bindErr := c.Bind(&req); bindErr != nil {
		return httpserver.RespondErrorWithCode(
			c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
	}

	actorID, err := parseActorID(req.ActorID)
	if err != nil {
		return httpserver.RespondErrorWithCode(
			c, http.StatusBadRequest, "INVALID_ACTOR_ID", "invalid actor ID format")
	}

	cmd := orderapp.DeleteOrder{
		OrderID:   orderID,
		Version:   req.Version,
		DeletedBy: actorID,
	}

	if _, dispatchErr := h.dispatcher.Dispatch(c.Request().Context(), cmd); dispatchErr != nil {
		return httpserver.RespondError(c, dispatchErr)
	}

	return httpserver.RespondNoContent(c)
}

// Get handles GET /api/v1/orders/:id.
func (h *OrderHandler) Get(c echo.Context) error {
	orderID, err := parseOrderID(c)
	if err != nil {
		return httpserver.RespondErrorWithCode(
			c, http.StatusBadRequest, "INVALID_ORDER_ID", "invalid order ID format")
	}

	view, err := h.queries.GetOrder(c.Request().Context(), orderapp.GetOrderQuery{OrderID: orderID})
	if err != nil {
		return httpserver.RespondError(c, err)
	}

	return httpserver.RespondOK(c, view)
}

// List handles GET /api/v1/orders.
// Supported query parameters: customer_id, status, limit, offset.
func (h *OrderHandler) List(c echo.Context) error {
	criteria := orderapp.ViewCriteria{
		Limit: defaultOrderPageSize,
	}

	if raw := c.QueryParam("customer_id"); raw != "" {
		customerID, err := uuid.ParseUUID(raw)
		if err != nil {
			return httpserver.RespondErrorWithCode(
				c, http.StatusBadRequest, "INVALID_CUSTOMER_ID", "invalid customer ID format")
		}
		criteria.CustomerID = customerID
	}

	if raw := c.QueryParam("status"); raw != "" {
		status := order.Status(raw)
		if status != order.StatusPending && status != order.StatusShipped && status != order.StatusCancelled {
			return httpserver.RespondErrorWithCode(
				c, http.StatusBadRequest, "INVALID_STATUS", "unknown order status")
		}
		criteria.Status = status
	}

	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return httpserver.RespondErrorWithCode(
				c, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer")
		}
		if limit > maxOrderPageSize {
			limit = maxOrderPageSize
		}
		criteria.Limit = limit
	}

	if raw := c.QueryParam("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return httpserver.RespondErrorWithCode(
				c, http.StatusBadRequest, "INVALID_OFFSET", "offset must be a non-negative integer")
		}
		criteria.Offset = offset
	}

	// Fetch one extra row to detect whether another page exists.
	probe := criteria
	probe.Limit = criteria.Limit + 1

	views, err := h.queries.ListOrders(c.Request().Context(), orderapp.ListOrdersQuery{Criteria: probe})
	if err != nil {
		return httpserver.RespondError(c, err)
	}

	hasMore := len(views) > criteria.Limit
	if hasMore {
		views = views[:criteria.Limit]
	}

	return httpserver.RespondOK(c, OrderListResponse{
		Orders:  views,
		HasMore: hasMore,
	})
}

// CustomerSummary handles GET /api/v1/customers/:id/summary.
func (h *OrderHandler) CustomerSummary(c echo.Context) error {
	customerID, err := uuid.ParseUUID(c.Param("id"))
	if err != nil {
		return httpserver.RespondErrorWithCode(
			c, http.StatusBadRequest, "INVALID_CUSTOMER_ID", "invalid customer ID format")
	}

	summary, err := h.queries.CustomerSummary(c.Request().Context(), orderapp.CustomerSummaryQuery{CustomerID: customerID})
	if err != nil {
		return httpserver.RespondError(c, err)
	}

	return httpserver.RespondOK(c, summary)
}

// toItems converts request items to domain items.
func toItems(reqs []ItemRequest) []order.Item {
	items := make([]order.Item, 0, len(reqs))
	for _, r := range reqs {
		items = append(items, order.Item{SKU: r.SKU, Quantity: r.Quantity})
	}
	return items
}

// parseOrderID extracts and validates the order id path parameter.
func parseOrderID(c echo.Context) (uuid.UUID, error) {
	return uuid.ParseUUID(c.Param("id"))
}

// parseActorID parses an optional actor id. Empty means anonymous.
func parseActorID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return "", nil
	}
	return uuid.ParseUUID(raw)
}
