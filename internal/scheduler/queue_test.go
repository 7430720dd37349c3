package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/lumapix/lumapix/internal/scheduler"
	"github.com/redis/rueidis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupRedis(t *testing.T) (rueidis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{mr.Addr()},
		DisableCache: true,
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return client, mr
}

func TestQueueEnqueue(t *testing.T) {
	t.Parallel()

	client, _ := setupRedis(t)
	queue := scheduler.NewQueue(client, zap.NewNop())

	ctx := context.Background()

	queued, err := queue.Enqueue(ctx, scheduler.NewTask(1, "test"))
	require.NoError(t, err)
	assert.True(t, queued)
	assert.Equal(t, 1, queue.Length(ctx))
}

func TestQueueDeduplicates(t *testing.T) {
	t.Parallel()

	client, _ := setupRedis(t)
	queue := scheduler.NewQueue(client, zap.NewNop())

	ctx := context.Background()

	queued, err := queue.Enqueue(ctx, scheduler.NewTask(1, "first"))
	require.NoError(t, err)
	require.True(t, queued)

	// A second task for the same user collapses into the pending one.
	queued, err = queue.Enqueue(ctx, scheduler.NewTask(1, "second"))
	require.NoError(t, err)
	assert.False(t, queued)
	assert.Equal(t, 1, queue.Length(ctx))

	// Other users queue independently.
	queued, err = queue.Enqueue(ctx, scheduler.NewTask(2, "other"))
	require.NoError(t, err)
	assert.True(t, queued)
	assert.Equal(t, 2, queue.Length(ctx))
}

func TestQueueNextOrder(t *testing.T) {
	t.Parallel()

	client, _ := setupRedis(t)
	queue := scheduler.NewQueue(client, zap.NewNop())

	ctx := context.Background()

	first := scheduler.NewTask(1, "first")
	second := scheduler.NewTask(2, "second")
	second.EnqueuedAt = first.EnqueuedAt.Add(time.Second)

	_, err := queue.Enqueue(ctx, first)
	require.NoError(t, err)
	_, err = queue.Enqueue(ctx, second)
	require.NoError(t, err)

	tasks, err := queue.Next(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, uint64(1), tasks[0].UserID)
	assert.Equal(t, uint64(2), tasks[1].UserID)

	// Next does not consume tasks.
	assert.Equal(t, 2, queue.Length(ctx))
}

func TestQueueRemove(t *testing.T) {
	t.Parallel()

	client, _ := setupRedis(t)
	queue := scheduler.NewQueue(client, zap.NewNop())

	ctx := context.Background()

	task := scheduler.NewTask(1, "test")
	_, err := queue.Enqueue(ctx, task)
	require.NoError(t, err)

	require.NoError(t, queue.Remove(ctx, task))
	assert.Equal(t, 0, queue.Length(ctx))

	// Removal clears the dedup marker, so the user can queue again.
	queued, err := queue.Enqueue(ctx, scheduler.NewTask(1, "again"))
	require.NoError(t, err)
	assert.True(t, queued)
}

func TestQueueDropsMalformedTasks(t *testing.T) {
	t.Parallel()

	client, mr := setupRedis(t)
	queue := scheduler.NewQueue(client, zap.NewNop())

	ctx := context.Background()

	_, err := queue.Enqueue(ctx, scheduler.NewTask(1, "valid"))
	require.NoError(t, err)

	_, err = mr.ZAdd("sched:tasks", 0, "not json")
	require.NoError(t, err)

	tasks, err := queue.Next(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, uint64(1), tasks[0].UserID)

	// The malformed member was purged from the queue.
	assert.Equal(t, 1, queue.Length(ctx))
}
