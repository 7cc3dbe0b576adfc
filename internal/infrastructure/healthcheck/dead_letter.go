package healthcheck

import (
	"context"
	"fmt"
	"time"

	"github.com/orderflow/orderflow/internal/application/appcore"
)

// DeadLetterChecker checks the dead letter store status. Any dead letter
// means at least one aggregate's views are stalled until a rebuild.
type DeadLetterChecker struct {
	deadLetters appcore.DeadLetterStore
}

// NewDeadLetterChecker creates a new dead letter health checker.
func NewDeadLetterChecker(deadLetters appcore.DeadLetterStore) *DeadLetterChecker {
	return &DeadLetterChecker{
		deadLetters: deadLetters,
	}
}

// Name returns the name of this health checker.
func (c *DeadLetterChecker) Name() string {
	return "dead_letter_queue"
}

// Check performs the health check.
func (c *DeadLetterChecker) Check(ctx context.Context) appcore.HealthStatus {
	count, err := c.deadLetters.Count(ctx)
	if err != nil {
		return appcore.HealthStatus{
			Healthy:   false,
			Message:   fmt.Sprintf("failed to count dead letters: %v", err),
			CheckedAt: time.Now(),
		}
	}

	healthy := count == 0

	details := map[string]any{
		"dead_letters": count,
	}

	message := fmt.Sprintf("dead letter queue: %d events", count)

	return appcore.HealthStatus{
		Healthy:   healthy,
		Message:   message,
		Details:   details,
		CheckedAt: time.Now(),
	}
}
