package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/orderflow/orderflow/internal/application/appcore"
	orderdomain "github.com/orderflow/orderflow/internal/domain/order"
	"github.com/orderflow/orderflow/internal/domain/uuid"
	"github.com/orderflow/orderflow/internal/infrastructure/repair"
)

// Default repair worker configuration values.
const (
	defaultRepairPollInterval = 30 * time.Second
	defaultRepairBatchSize    = 10
	defaultRepairMaxRetries   = 3
)

// RepairWorkerConfig contains configuration for the repair worker.
type RepairWorkerConfig struct {
	// PollInterval is the time between polling the repair queue.
	PollInterval time.Duration

	// BatchSize is the maximum number of tasks to process in each poll cycle.
	BatchSize int

	// MaxRetries is the maximum number of retry attempts for failed repairs.
	MaxRetries int

	// Enabled determines if the worker should run.
	Enabled bool
}

// DefaultRepairWorkerConfig returns sensible default configuration.
func DefaultRepairWorkerConfig() RepairWorkerConfig {
	return RepairWorkerConfig{
		PollInterval: defaultRepairPollInterval,
		BatchSize:    defaultRepairBatchSize,
		MaxRetries:   defaultRepairMaxRetries,
		Enabled:      true,
	}
}

// Rebuilder rebuilds the read views of one aggregate. The projection engine
// satisfies this across all of its projectors.
type Rebuilder interface {
	RebuildOne(ctx context.Context, aggregateID uuid.UUID) error
}

// RepairWorker turns dead letters into repair tasks and processes them by
// rebuilding the affected aggregate's read views. A successful rebuild
// clears the aggregate's dead letters, unstalling its projection.
type RepairWorker struct {
	repairQueue repair.Queue
	rebuilder   Rebuilder
	deadLetters appcore.DeadLetterStore
	logger      *slog.Logger
	config      RepairWorkerConfig
}

// NewRepairWorker creates a new repair worker.
func NewRepairWorker(
	repairQueue repair.Queue,
	rebuilder Rebuilder,
	deadLetters appcore.DeadLetterStore,
	logger *slog.Logger,
	config RepairWorkerConfig,
) *RepairWorker {
	if logger == nil {
		logger = slog.Default()
	}

	return &RepairWorker{
		repairQueue: repairQueue,
		rebuilder:   rebuilder,
		deadLetters: deadLetters,
		logger:      logger,
		config:      config,
	}
}

// Start starts the repair worker and runs until the context is cancelled.
func (w *RepairWorker) Start(ctx context.Context) error {
	if !w.config.Enabled {
		w.logger.InfoContext(ctx, "repair worker disabled")
		return nil
	}

	w.logger.InfoContext(ctx, "starting repair worker",
		slog.Duration("poll_interval", w.config.PollInterval),
		slog.Int("batch_size", w.config.BatchSize),
		slog.Int("max_retries", w.config.MaxRetries),
	)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	// Process immediately on start
	w.ProcessOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "repair worker stopped")
			return ctx.Err()
		case <-ticker.C:
			w.ProcessOnce(ctx)
		}
	}
}

// ProcessOnce runs one scheduling and processing cycle.
func (w *RepairWorker) ProcessOnce(ctx context.Context) {
	w.scheduleFromDeadLetters(ctx)
	w.processBatch(ctx)
}

// scheduleFromDeadLetters enqueues a rebuild task for every aggregate that
// currently has dead letters and no open task.
func (w *RepairWorker) scheduleFromDeadLetters(ctx context.Context) {
	ids, err := w.deadLetters.ListAggregateIDs(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "failed to list dead letter aggregates",
			slog.String("error", err.Error()),
		)
		return
	}

	if len(ids) == 0 {
		return
	}

	stats, err := w.repairQueue.GetStats(ctx)
	if err == nil && stats.PendingCount+stats.ProcessingCount >= int64(len(ids)) {
		// Every stalled aggregate already has an open task.
		return
	}

	for _, id := range ids {
		task := repair.Task{
			AggregateID:   id,
			AggregateType: orderdomain.AggregateType,
			TaskType:      repair.TaskTypeViewRebuild,
		}
		if addErr := w.repairQueue.Add(ctx, task); addErr != nil {
			w.logger.ErrorContext(ctx, "failed to enqueue repair task",
				slog.String("aggregate_id", id),
				slog.String("error", addErr.Error()),
			)
		}
	}
}

// processBatch processes a batch of repair tasks.
func (w *RepairWorker) processBatch(ctx context.Context) {
	tasks, err := w.repairQueue.Poll(ctx, w.config.BatchSize)
	if err != nil {
		w.logger.ErrorContext(ctx, "failed to poll repair queue",
			slog.String("error", err.Error()),
		)
		return
	}

	if len(tasks) == 0 {
		return
	}

	w.logger.InfoContext(ctx, "processing repair tasks",
		slog.Int("count", len(tasks)),
	)

	for _, task := range tasks {
		if processErr := w.processTask(ctx, task); processErr != nil {
			w.logger.ErrorContext(ctx, "failed to process repair task",
				slog.String("task_id", task.ID),
				slog.String("aggregate_id", task.AggregateID),
				slog.String("error", processErr.Error()),
			)

			if task.RetryCount >= w.config.MaxRetries {
				w.logger.WarnContext(ctx, "max retries exceeded, marking task as failed",
					slog.String("task_id", task.ID),
					slog.Int("retry_count", task.RetryCount),
				)
				if markErr := w.repairQueue.MarkFailed(ctx, task.ID, processErr); markErr != nil {
					w.logger.ErrorContext(ctx, "failed to mark task as failed",
						slog.String("task_id", task.ID),
						slog.String("error", markErr.Error()),
					)
				}
			} else {
				// Task stays in processing state and is retried later.
				w.logger.InfoContext(ctx, "task will be retried",
					slog.String("task_id", task.ID),
					slog.Int("retry_count", task.RetryCount),
					slog.Int("max_retries", w.config.MaxRetries),
				)
			}
			continue
		}

		if completeErr := w.repairQueue.MarkCompleted(ctx, task.ID); completeErr != nil {
			w.logger.ErrorContext(ctx, "failed to mark task as completed",
				slog.String("task_id", task.ID),
				slog.String("error", completeErr.Error()),
			)
		}
	}
}

// processTask rebuilds the aggregate's read views and clears its dead
// letters.
func (w *RepairWorker) processTask(ctx context.Context, task repair.Task) error {
	if task.TaskType != repair.TaskTypeViewRebuild {
		return fmt.Errorf("unknown task type: %s", task.TaskType)
	}

	aggregateID, err := uuid.ParseUUID(task.AggregateID)
	if err != nil {
		return fmt.Errorf("invalid aggregate ID: %w", err)
	}

	if rebuildErr := w.rebuilder.RebuildOne(ctx, aggregateID); rebuildErr != nil {
		return fmt.Errorf("failed to rebuild read views: %w", rebuildErr)
	}

	if removeErr := w.deadLetters.Remove(ctx, task.AggregateID); removeErr != nil {
		return fmt.Errorf("failed to clear dead letters: %w", removeErr)
	}

	w.logger.InfoContext(ctx, "read views rebuilt",
		slog.String("aggregate_id", task.AggregateID),
		slog.String("aggregate_type", task.AggregateType),
	)

	return nil
}

// GetStats returns repair queue statistics.
func (w *RepairWorker) GetStats(ctx context.Context) (*repair.QueueStats, error) {
	return w.repairQueue.GetStats(ctx)
}
