package scheduler

import (
	"context"
	"fmt"

	"github.com/lumapix/lumapix/internal/recommend"
	"go.uber.org/zap"
)

// Scheduler is the write-side entry point for recommendation freshness. It
// turns relationship changes and cache misses into queued recompute tasks
// without ever computing inline.
type Scheduler struct {
	queue  *Queue
	state  *StateStore
	cache  *recommend.Cache
	logger *zap.Logger
}

// New creates a scheduler over the task queue and state store.
func New(queue *Queue, state *StateStore, cache *recommend.Cache, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		queue:  queue,
		state:  state,
		cache:  cache,
		logger: logger.Named("scheduler"),
	}
}

// Dispatch queues a recompute for the user unless one is already pending or
// running. Satisfies the engine's Dispatcher interface.
func (s *Scheduler) Dispatch(ctx context.Context, userID uint64, reason string) error {
	if s.state.Get(ctx, userID) == FreshnessRecomputing {
		return nil
	}

	queued, err := s.queue.Enqueue(ctx, NewTask(userID, reason))
	if err != nil {
		return fmt.Errorf("failed to dispatch recompute for user %d: %w", userID, err)
	}

	if queued {
		s.logger.Debug("Queued recompute",
			zap.Uint64("userID", userID),
			zap.String("reason", reason))
	}

	return nil
}

// OnRelationshipChange handles a follow or unfollow involving the user:
// marks their recommendations stale, drops the display cache, and queues a
// recompute. Persisted recommendations stay servable until the recompute
// lands.
func (s *Scheduler) OnRelationshipChange(ctx context.Context, userID uint64) error {
	if err := s.state.MarkStale(ctx, userID); err != nil {
		return err
	}

	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.logger.Warn("Failed to invalidate recommendation cache",
			zap.Uint64("userID", userID),
			zap.Error(err))
	}

	return s.Dispatch(ctx, userID, "relationship change")
}
