package repair_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderflow/orderflow/internal/domain/order"
	"github.com/orderflow/orderflow/internal/domain/uuid"
	"github.com/orderflow/orderflow/internal/infrastructure/repair"
)

func newTask() repair.Task {
	return repair.Task{
		AggregateID:   uuid.NewUUID().String(),
		AggregateType: order.AggregateType,
		TaskType:      repair.TaskTypeViewRebuild,
	}
}

func TestInMemoryQueue_AddAssignsDefaults(t *testing.T) {
	queue := repair.NewInMemoryQueue()
	ctx := context.Background()

	require.NoError(t, queue.Add(ctx, newTask()))

	tasks, err := queue.Poll(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.NotEmpty(t, tasks[0].ID)
	assert.False(t, tasks[0].CreatedAt.IsZero())
	assert.Equal(t, repair.StatusProcessing, tasks[0].Status)
	assert.Equal(t, 1, tasks[0].RetryCount)
}

func TestInMemoryQueue_PollSkipsNonPending(t *testing.T) {
	queue := repair.NewInMemoryQueue()
	ctx := context.Background()

	require.NoError(t, queue.Add(ctx, newTask()))

	first, err := queue.Poll(ctx, 10)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// The task is processing now and is not handed out again.
	second, err := queue.Poll(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, second)
}

func TestInMemoryQueue_PollHonorsBatchSize(t *testing.T) {
	queue := repair.NewInMemoryQueue()
	ctx := context.Background()

	for n := 0; n < 5; n++ {
		require.NoError(t, queue.Add(ctx, newTask()))
	}

	tasks, err := queue.Poll(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}

func TestInMemoryQueue_LifecycleAndStats(t *testing.T) {
	queue := repair.NewInMemoryQueue()
	ctx := context.Background()

	require.NoError(t, queue.Add(ctx, newTask()))
	require.NoError(t, queue.Add(ctx, newTask()))
	require.NoError(t, queue.Add(ctx, newTask()))

	tasks, err := queue.Poll(ctx, 2)
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	require.NoError(t, queue.MarkCompleted(ctx, tasks[0].ID))
	require.NoError(t, queue.MarkFailed(ctx, tasks[1].ID, errors.New("rebuild failed")))

	stats, err := queue.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalCount)
	assert.Equal(t, int64(1), stats.PendingCount)
	assert.Equal(t, int64(1), stats.CompletedCount)
	assert.Equal(t, int64(1), stats.FailedCount)
	assert.Zero(t, stats.ProcessingCount)
}

func TestInMemoryQueue_MarkUnknownTask(t *testing.T) {
	queue := repair.NewInMemoryQueue()
	ctx := context.Background()

	assert.Error(t, queue.MarkCompleted(ctx, "missing"))
	assert.Error(t, queue.MarkFailed(ctx, "missing", errors.New("boom")))
}
