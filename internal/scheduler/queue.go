package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/redis/rueidis"
	"go.uber.org/zap"
)

const (
	// queueKey is the Redis sorted set holding pending recompute tasks,
	// scored by enqueue time for FIFO draining.
	queueKey = "sched:tasks"

	// pendingKeyPrefix namespaces the per-user dedup markers. A user with a
	// live marker already has a task in the queue, so repeated relationship
	// changes collapse into one recompute.
	pendingKeyPrefix = "sched_pending:"

	// pendingExpiry bounds how long a dedup marker can outlive its task if a
	// worker dies mid-batch.
	pendingExpiry = 1 * time.Hour
)

// Task describes one queued recompute request.
type Task struct {
	TaskID     string    `json:"taskId"`
	UserID     uint64    `json:"userId"`
	Reason     string    `json:"reason"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// NewTask creates a task for the given user with a fresh task ID.
func NewTask(userID uint64, reason string) *Task {
	return &Task{
		TaskID:     uuid.New().String(),
		UserID:     userID,
		Reason:     reason,
		EnqueuedAt: time.Now(),
	}
}

// Queue stores recompute tasks in a Redis sorted set. Members are serialized
// tasks scored by enqueue time; per-user dedup markers keep at most one
// pending task per user.
type Queue struct {
	client rueidis.Client
	logger *zap.Logger
}

// NewQueue initializes the recompute task queue. The client is expected to
// be connected to the scheduler database index.
func NewQueue(client rueidis.Client, logger *zap.Logger) *Queue {
	return &Queue{
		client: client,
		logger: logger.Named("scheduler_queue"),
	}
}

func pendingKey(userID uint64) string {
	return pendingKeyPrefix + strconv.FormatUint(userID, 10)
}

// Enqueue adds a task unless the user already has one pending. Returns true
// when the task was actually queued.
func (q *Queue) Enqueue(ctx context.Context, task *Task) (bool, error) {
	// SET NX doubles as the dedup check.
	set, err := q.client.Do(ctx, q.client.B().Set().
		Key(pendingKey(task.UserID)).
		Value(task.TaskID).
		Nx().
		Ex(pendingExpiry).
		Build(),
	).ToString()
	if err != nil && !rueidis.IsRedisNil(err) {
		return false, fmt.Errorf("failed to set pending marker: %w", err)
	}

	if set != "OK" {
		return false, nil
	}

	raw, err := sonic.Marshal(task)
	if err != nil {
		return false, fmt.Errorf("failed to marshal task: %w", err)
	}

	err = q.client.Do(ctx, q.client.B().Zadd().
		Key(queueKey).
		ScoreMember().
		ScoreMember(float64(task.EnqueuedAt.UnixMilli()), string(raw)).
		Build(),
	).Error()
	if err != nil {
		return false, fmt.Errorf("failed to enqueue task: %w", err)
	}

	return true, nil
}

// Next returns up to batchSize tasks in enqueue order without removing them.
// Malformed members are dropped from the queue and skipped.
func (q *Queue) Next(ctx context.Context, batchSize int) ([]*Task, error) {
	members, err := q.client.Do(ctx, q.client.B().Zrange().
		Key(queueKey).
		Min("0").
		Max(strconv.Itoa(batchSize-1)).
		Build(),
	).AsStrSlice()
	if err != nil {
		return nil, fmt.Errorf("failed to read task queue: %w", err)
	}

	tasks := make([]*Task, 0, len(members))

	for _, member := range members {
		var task Task
		if err := sonic.Unmarshal([]byte(member), &task); err != nil {
			q.logger.Error("Dropping malformed task",
				zap.String("member", member),
				zap.Error(err))

			if remErr := q.client.Do(ctx,
				q.client.B().Zrem().Key(queueKey).Member(member).Build(),
			).Error(); remErr != nil {
				q.logger.Error("Failed to drop malformed task", zap.Error(remErr))
			}

			continue
		}

		tasks = append(tasks, &task)
	}

	return tasks, nil
}

// Remove deletes a task and its dedup marker once processing finishes,
// regardless of outcome.
func (q *Queue) Remove(ctx context.Context, task *Task) error {
	raw, err := sonic.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	if err := q.client.Do(ctx,
		q.client.B().Zrem().Key(queueKey).Member(string(raw)).Build(),
	).Error(); err != nil {
		return fmt.Errorf("failed to remove task: %w", err)
	}

	if err := q.client.Do(ctx,
		q.client.B().Del().Key(pendingKey(task.UserID)).Build(),
	).Error(); err != nil {
		return fmt.Errorf("failed to clear pending marker: %w", err)
	}

	return nil
}

// Length returns the number of pending tasks.
func (q *Queue) Length(ctx context.Context) int {
	count, err := q.client.Do(ctx, q.client.B().Zcard().Key(queueKey).Build()).ToInt64()
	if err != nil {
		q.logger.Error("Failed to get queue length", zap.Error(err))
		return 0
	}

	return int(count)
}
