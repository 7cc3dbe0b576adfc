package order

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/orderflow/orderflow/internal/application/appcore"
	"github.com/orderflow/orderflow/internal/domain/uuid"
)

// Query names.
const (
	QueryGetOrder        = "order.get"
	QueryListOrders      = "order.list"
	QueryCustomerSummary = "order.customer_summary"
)

// GetOrderQuery requests a single order view by id.
type GetOrderQuery struct {
	OrderID uuid.UUID
}

// QueryName implements appcore.Query.
func (GetOrderQuery) QueryName() string { return QueryGetOrder }

// ListOrdersQuery requests order views matching the criteria.
type ListOrdersQuery struct {
	Criteria ViewCriteria
}

// QueryName implements appcore.Query.
func (ListOrdersQuery) QueryName() string { return QueryListOrders }

// CustomerSummaryQuery requests the per-customer summary view.
type CustomerSummaryQuery struct {
	CustomerID uuid.UUID
}

// QueryName implements appcore.Query.
func (CustomerSummaryQuery) QueryName() string { return QueryCustomerSummary }

// QueryService is the read-only facade over the read store. It never
// touches the write store; results reflect whatever the read store
// currently holds, which may lag behind committed writes.
type QueryService struct {
	reads  ReadRepository
	logger *slog.Logger
}

// QueryServiceOption configures a QueryService.
type QueryServiceOption func(*QueryService)

// WithQueryLogger sets the logger for the query service.
func WithQueryLogger(logger *slog.Logger) QueryServiceOption {
	return func(s *QueryService) {
		s.logger = logger
	}
}

// NewQueryService creates a query service over the given read repository.
func NewQueryService(reads ReadRepository, opts ...QueryServiceOption) *QueryService {
	s := &QueryService{
		reads:  reads,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// GetOrder returns a single order view or appcore.ErrNotFound.
func (s *QueryService) GetOrder(ctx context.Context, q GetOrderQuery) (*View, error) {
	if q.OrderID.IsZero() {
		return nil, appcore.NewValidationError("order_id", "must not be empty")
	}

	view, err := s.reads.GetView(ctx, q.OrderID)
	if err != nil {
		return nil, err
	}
	if view.Deleted {
		// Tombstoned views exist only for projection idempotency.
		return nil, appcore.ErrNotFound
	}

	return view, nil
}

// ListOrders returns the views matching the query criteria.
func (s *QueryService) ListOrders(ctx context.Context, q ListOrdersQuery) ([]*View, error) {
	views, err := s.reads.FindViews(ctx, q.Criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to find order views: %w", err)
	}

	return views, nil
}

// CustomerSummary returns the denormalized per-customer statistics view.
func (s *QueryService) CustomerSummary(ctx context.Context, q CustomerSummaryQuery) (*CustomerSummary, error) {
	if q.CustomerID.IsZero() {
		return nil, appcore.NewValidationError("customer_id", "must not be empty")
	}

	summary, err := s.reads.GetSummary(ctx, q.CustomerID)
	if err != nil {
		return nil, err
	}

	return summary, nil
}
