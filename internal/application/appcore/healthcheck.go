package appcore

import (
	"context"
	"time"
)

// HealthChecker reports the health of one pipeline component. Checkers
// cover the outbox backlog, dead letters, the repair queue and read-store
// reachability; the readiness and details endpoints aggregate them.
type HealthChecker interface {
	// Check runs the component check and reports its current status.
	Check(ctx context.Context) HealthStatus

	// Name identifies the component in readiness reports.
	Name() string
}

// HealthStatus is the outcome of a single component check. Details carries
// checker-specific numbers such as backlog sizes.
type HealthStatus struct {
	Healthy   bool           `json:"healthy"`
	Message   string         `json:"message,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CheckedAt time.Time      `json:"checked_at"`
}
