package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/orderflow/orderflow/internal/application/appcore"
	orderapp "github.com/orderflow/orderflow/internal/application/order"
	"github.com/orderflow/orderflow/internal/domain/order"
	"github.com/orderflow/orderflow/internal/domain/uuid"
)

const defaultFindLimit = 50

// OrderReadRepository is an in-memory orderapp.ReadRepository. Views and
// summaries are deep-copied on the way in and out so callers cannot mutate
// stored state.
type OrderReadRepository struct {
	mu        sync.RWMutex
	views     map[uuid.UUID]*orderapp.View
	summaries map[uuid.UUID]*orderapp.CustomerSummary
}

// NewOrderReadRepository creates an empty in-memory read repository.
func NewOrderReadRepository() *OrderReadRepository {
	return &OrderReadRepository{
		views:     make(map[uuid.UUID]*orderapp.View),
		summaries: make(map[uuid.UUID]*orderapp.CustomerSummary),
	}
}

// GetView returns the order view, tombstoned or not.
func (r *OrderReadRepository) GetView(_ context.Context, orderID uuid.UUID) (*orderapp.View, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	view, ok := r.views[orderID]
	if !ok {
		return nil, appcore.ErrNotFound
	}

	return copyView(view), nil
}

// FindViews returns the non-tombstoned views matching the criteria, newest
// first.
func (r *OrderReadRepository) FindViews(
	_ context.Context,
	criteria orderapp.ViewCriteria,
) ([]*orderapp.View, error) {
	r.mu.RLock()
	var matched []*orderapp.View
	for _, view := range r.views {
		if view.Deleted {
			continue
		}
		if !criteria.CustomerID.IsZero() && view.CustomerID != criteria.CustomerID {
			continue
		}
		if criteria.Status != "" && view.Status != criteria.Status {
			continue
		}
		matched = append(matched, copyView(view))
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	limit := criteria.Limit
	if limit <= 0 {
		limit = defaultFindLimit
	}

	if criteria.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[criteria.Offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}

	return matched, nil
}

// UpsertView atomically replaces the view.
func (r *OrderReadRepository) UpsertView(_ context.Context, view *orderapp.View) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.views[view.OrderID] = copyView(view)
	return nil
}

// DeleteView removes the view entirely.
func (r *OrderReadRepository) DeleteView(_ context.Context, orderID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.views, orderID)
	return nil
}

// GetSummary returns the customer summary.
func (r *OrderReadRepository) GetSummary(
	_ context.Context,
	customerID uuid.UUID,
) (*orderapp.CustomerSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	summary, ok := r.summaries[customerID]
	if !ok {
		return nil, appcore.ErrNotFound
	}

	return copySummary(summary), nil
}

// UpsertSummary atomically replaces the customer summary.
func (r *OrderReadRepository) UpsertSummary(_ context.Context, summary *orderapp.CustomerSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.summaries[summary.CustomerID] = copySummary(summary)
	return nil
}

func copyView(view *orderapp.View) *orderapp.View {
	clone := *view
	clone.Items = append([]order.Item(nil), view.Items...)
	if view.ShippedAt != nil {
		shippedAt := *view.ShippedAt
		clone.ShippedAt = &shippedAt
	}
	return &clone
}

func copySummary(summary *orderapp.CustomerSummary) *orderapp.CustomerSummary {
	clone := *summary
	clone.Orders = make(map[string]orderapp.OrderContribution, len(summary.Orders))
	for id, contribution := range summary.Orders {
		clone.Orders[id] = contribution
	}
	return &clone
}

var _ orderapp.ReadRepository = (*OrderReadRepository)(nil)
