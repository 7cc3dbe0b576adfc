package repair

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/orderflow/orderflow/internal/domain/uuid"
)

// InMemoryQueue is an in-memory Queue for tests and single-binary setups.
type InMemoryQueue struct {
	mu    sync.Mutex
	tasks []Task
}

// NewInMemoryQueue creates an empty in-memory repair queue.
func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{}
}

// Add adds a new repair task to the queue.
func (q *InMemoryQueue) Add(_ context.Context, task Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if task.ID == "" {
		task.ID = uuid.NewUUID().String()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	if task.Status == "" {
		task.Status = StatusPending
	}

	q.tasks = append(q.tasks, task)
	return nil
}

// Poll retrieves pending tasks, oldest first, and marks them processing.
func (q *InMemoryQueue) Poll(_ context.Context, batchSize int) ([]Task, error) {
	if batchSize <= 0 {
		batchSize = defaultPollBatchSize
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	var polled []Task
	now := time.Now()
	for i := range q.tasks {
		if len(polled) >= batchSize {
			break
		}
		if q.tasks[i].Status != StatusPending {
			continue
		}
		q.tasks[i].Status = StatusProcessing
		q.tasks[i].RetryCount++
		lastRetry := now
		q.tasks[i].LastRetryAt = &lastRetry
		polled = append(polled, q.tasks[i])
	}

	return polled, nil
}

// MarkCompleted marks a task as completed.
func (q *InMemoryQueue) MarkCompleted(_ context.Context, taskID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.tasks {
		if q.tasks[i].ID == taskID {
			now := time.Now()
			q.tasks[i].Status = StatusCompleted
			q.tasks[i].CompletedAt = &now
			return nil
		}
	}

	return fmt.Errorf("task not found: %s", taskID)
}

// MarkFailed marks a task as failed and records the error.
func (q *InMemoryQueue) MarkFailed(_ context.Context, taskID string, taskErr error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.tasks {
		if q.tasks[i].ID == taskID {
			q.tasks[i].Status = StatusFailed
			q.tasks[i].Error = taskErr.Error()
			return nil
		}
	}

	return fmt.Errorf("task not found: %s", taskID)
}

// GetStats returns queue statistics.
func (q *InMemoryQueue) GetStats(_ context.Context) (*QueueStats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := &QueueStats{TotalCount: int64(len(q.tasks))}
	for _, task := range q.tasks {
		switch task.Status {
		case StatusPending:
			stats.PendingCount++
		case StatusProcessing:
			stats.ProcessingCount++
		case StatusCompleted:
			stats.CompletedCount++
		case StatusFailed:
			stats.FailedCount++
		}
	}

	return stats, nil
}

var _ Queue = (*InMemoryQueue)(nil)
