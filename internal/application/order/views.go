package order

import (
	"time"

	"github.com/orderflow/orderflow/internal/domain/order"
	"github.com/orderflow/orderflow/internal/domain/uuid"
)

// View is the denormalized order read model. It is derived solely from
// order events; LastAppliedSeq records the sequence number of the last
// event folded into the view, which makes redelivery idempotent and gaps
// detectable. A deleted order keeps a tombstone (Deleted=true) so late
// redeliveries stay no-ops; the query service treats it as absent.
type View struct {
	OrderID        uuid.UUID    `json:"order_id"         bson:"_id"`
	CustomerID     uuid.UUID    `json:"customer_id"      bson:"customer_id"`
	Items          []order.Item `json:"items"            bson:"items"`
	ItemCount      int          `json:"item_count"       bson:"item_count"`
	Status         order.Status `json:"status"           bson:"status"`
	CancelReason   string       `json:"cancel_reason,omitempty" bson:"cancel_reason,omitempty"`
	CreatedAt      time.Time    `json:"created_at"       bson:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"       bson:"updated_at"`
	ShippedAt      *time.Time   `json:"shipped_at,omitempty" bson:"shipped_at,omitempty"`
	Deleted        bool         `json:"deleted,omitempty" bson:"deleted,omitempty"`
	LastAppliedSeq int          `json:"last_applied_seq" bson:"last_applied_seq"`
}

// OrderContribution is the slice of a customer summary contributed by one
// order. LastSeq is the last event sequence folded in for that order, which
// makes redelivered events no-ops and lets a deletion subtract the order
// cleanly.
type OrderContribution struct {
	LastSeq int  `json:"last_seq" bson:"last_seq"`
	Items   int  `json:"items"    bson:"items"`
	Shipped bool `json:"shipped"  bson:"shipped"`
	Deleted bool `json:"deleted,omitempty" bson:"deleted,omitempty"`
}

// CustomerSummary is a second read model derived from the same event
// stream: per-customer order statistics. The totals are recomputed from
// Orders on every change so they never drift from the contributions.
type CustomerSummary struct {
	CustomerID   uuid.UUID                    `json:"customer_id"   bson:"_id"`
	OrderCount   int                          `json:"order_count"   bson:"order_count"`
	ShippedCount int                          `json:"shipped_count" bson:"shipped_count"`
	TotalItems   int                          `json:"total_items"   bson:"total_items"`
	UpdatedAt    time.Time                    `json:"updated_at"    bson:"updated_at"`
	Orders       map[string]OrderContribution `json:"orders"        bson:"orders"`
}

// Recalculate recomputes the aggregate totals from the per-order
// contributions. Deleted orders keep their LastSeq for idempotency but
// contribute nothing to the totals.
func (s *CustomerSummary) Recalculate() {
	s.OrderCount = 0
	s.ShippedCount = 0
	s.TotalItems = 0
	for _, c := range s.Orders {
		if c.Deleted {
			continue
		}
		s.OrderCount++
		if c.Shipped {
			s.ShippedCount++
		}
		s.TotalItems += c.Items
	}
}

// ViewCriteria selects order views. Zero-value fields are ignored.
type ViewCriteria struct {
	CustomerID uuid.UUID
	Status     order.Status
	Offset     int
	Limit      int
}
