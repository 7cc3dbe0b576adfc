// Package repair provides the queue of view rebuild requests raised when
// projections stall on dead-lettered events.
package repair

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/orderflow/orderflow/internal/domain/uuid"
)

// TaskType defines the type of repair task.
type TaskType string

// TaskTypeViewRebuild requests a full rebuild of one aggregate's read views.
const TaskTypeViewRebuild TaskType = "view_rebuild"

// Task statuses.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

const defaultPollBatchSize = 10

// Task represents a repair task that needs to be processed.
type Task struct {
	ID            string     `bson:"_id,omitempty"`
	AggregateID   string     `bson:"aggregate_id"`
	AggregateType string     `bson:"aggregate_type"`
	TaskType      TaskType   `bson:"task_type"`
	Error         string     `bson:"error"`
	CreatedAt     time.Time  `bson:"created_at"`
	RetryCount    int        `bson:"retry_count"`
	LastRetryAt   *time.Time `bson:"last_retry_at,omitempty"`
	CompletedAt   *time.Time `bson:"completed_at,omitempty"`
	Status        string     `bson:"status"`
}

// Queue manages repair tasks for stalled read views.
type Queue interface {
	// Add adds a new repair task to the queue.
	Add(ctx context.Context, task Task) error

	// Poll retrieves up to batchSize pending tasks, oldest first, and
	// marks them as processing.
	Poll(ctx context.Context, batchSize int) ([]Task, error)

	// MarkCompleted marks a task as completed.
	MarkCompleted(ctx context.Context, taskID string) error

	// MarkFailed marks a task as failed and records the error.
	MarkFailed(ctx context.Context, taskID string, err error) error

	// GetStats returns queue statistics.
	GetStats(ctx context.Context) (*QueueStats, error)
}

// QueueStats contains statistics about the repair queue.
type QueueStats struct {
	PendingCount    int64
	ProcessingCount int64
	CompletedCount  int64
	FailedCount     int64
	TotalCount      int64
}

// MongoQueue implements Queue using MongoDB.
type MongoQueue struct {
	collection *mongo.Collection
	logger     *slog.Logger
}

// NewMongoQueue creates a new MongoDB-based repair queue.
func NewMongoQueue(collection *mongo.Collection, logger *slog.Logger) *MongoQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &MongoQueue{
		collection: collection,
		logger:     logger,
	}
}

// Add adds a new repair task to the queue.
func (q *MongoQueue) Add(ctx context.Context, task Task) error {
	if task.ID == "" {
		task.ID = uuid.NewUUID().String()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	if task.Status == "" {
		task.Status = StatusPending
	}

	if _, err := q.collection.InsertOne(ctx, task); err != nil {
		return fmt.Errorf("failed to insert repair task: %w", err)
	}

	q.logger.InfoContext(ctx, "added repair task to queue",
		slog.String("aggregate_id", task.AggregateID),
		slog.String("aggregate_type", task.AggregateType),
		slog.String("task_type", string(task.TaskType)),
	)

	return nil
}

// Poll retrieves pending tasks from the queue.
func (q *MongoQueue) Poll(ctx context.Context, batchSize int) ([]Task, error) {
	if batchSize <= 0 {
		batchSize = defaultPollBatchSize
	}

	filter := bson.M{"status": StatusPending}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetLimit(int64(batchSize))

	cursor, err := q.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query repair tasks: %w", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	var tasks []Task
	if decodeErr := cursor.All(ctx, &tasks); decodeErr != nil {
		return nil, fmt.Errorf("failed to decode repair tasks: %w", decodeErr)
	}

	for i := range tasks {
		update := bson.M{
			"$set": bson.M{
				"status":        StatusProcessing,
				"last_retry_at": time.Now(),
			},
			"$inc": bson.M{
				"retry_count": 1,
			},
		}
		taskFilter := bson.M{"_id": tasks[i].ID}
		if _, updateErr := q.collection.UpdateOne(ctx, taskFilter, update); updateErr != nil {
			q.logger.WarnContext(ctx, "failed to mark task as processing",
				slog.String("task_id", tasks[i].ID),
				slog.String("error", updateErr.Error()),
			)
		}
	}

	return tasks, nil
}

// MarkCompleted marks a task as completed.
func (q *MongoQueue) MarkCompleted(ctx context.Context, taskID string) error {
	filter := bson.M{"_id": taskID}
	update := bson.M{
		"$set": bson.M{
			"status":       StatusCompleted,
			"completed_at": time.Now(),
		},
	}

	result, err := q.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to mark task as completed: %w", err)
	}

	if result.ModifiedCount == 0 {
		return fmt.Errorf("task not found: %s", taskID)
	}

	q.logger.InfoContext(ctx, "marked repair task as completed",
		slog.String("task_id", taskID),
	)

	return nil
}

// MarkFailed marks a task as failed and records the error.
func (q *MongoQueue) MarkFailed(ctx context.Context, taskID string, taskErr error) error {
	filter := bson.M{"_id": taskID}
	update := bson.M{
		"$set": bson.M{
			"status": StatusFailed,
			"error":  taskErr.Error(),
		},
	}

	result, err := q.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to mark task as failed: %w", err)
	}

	if result.ModifiedCount == 0 {
		return fmt.Errorf("task not found: %s", taskID)
	}

	q.logger.WarnContext(ctx, "marked repair task as failed",
		slog.String("task_id", taskID),
		slog.String("error", taskErr.Error()),
	)

	return nil
}

// GetStats returns queue statistics.
func (q *MongoQueue) GetStats(ctx context.Context) (*QueueStats, error) {
	stats := &QueueStats{}

	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$status"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}

	cursor, err := q.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to get queue stats: %w", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	type statusCount struct {
		Status string `bson:"_id"`
		Count  int64  `bson:"count"`
	}

	var results []statusCount
	if decodeErr := cursor.All(ctx, &results); decodeErr != nil {
		return nil, fmt.Errorf("failed to decode queue stats: %w", decodeErr)
	}

	for _, result := range results {
		switch result.Status {
		case StatusPending:
			stats.PendingCount = result.Count
		case StatusProcessing:
			stats.ProcessingCount = result.Count
		case StatusCompleted:
			stats.CompletedCount = result.Count
		case StatusFailed:
			stats.FailedCount = result.Count
		}
		stats.TotalCount += result.Count
	}

	return stats, nil
}

var _ Queue = (*MongoQueue)(nil)
