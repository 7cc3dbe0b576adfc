package order

import (
	"context"

	"github.com/orderflow/orderflow/internal/domain/uuid"
)

// ReadRepository is the read-store contract consumed by the projection
// engine (writes) and the query service (reads). No other component writes
// to the read store.
type ReadRepository interface {
	// GetView returns the order view or appcore.ErrNotFound. Tombstoned
	// views are returned as well; hiding them is query-service policy.
	GetView(ctx context.Context, orderID uuid.UUID) (*View, error)

	// FindViews returns the non-tombstoned views matching the criteria.
	FindViews(ctx context.Context, criteria ViewCriteria) ([]*View, error)

	// UpsertView atomically replaces the view. The stored LastAppliedSeq
	// moves forward with each applied event.
	UpsertView(ctx context.Context, view *View) error

	// DeleteView removes the view (terminal deletion event or rebuild).
	DeleteView(ctx context.Context, orderID uuid.UUID) error

	// GetSummary returns the customer summary or appcore.ErrNotFound.
	GetSummary(ctx context.Context, customerID uuid.UUID) (*CustomerSummary, error)

	// UpsertSummary atomically replaces the customer summary.
	UpsertSummary(ctx context.Context, summary *CustomerSummary) error
}
