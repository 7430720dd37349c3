package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/lumapix/lumapix/internal/recommend"
	"github.com/lumapix/lumapix/internal/setup/config"
	"github.com/lumapix/lumapix/pkg/utils"
	"go.uber.org/zap"
)

// errorWait is how long the worker backs off after a queue-level failure
// before polling again.
const errorWait = 30 * time.Second

// Worker drains the recompute queue. One task maps to one full per-user
// recomputation; a task that exhausts its attempts leaves the user stale
// with their previous recommendations intact.
type Worker struct {
	engine   *recommend.Engine
	queue    *Queue
	state    *StateStore
	reporter *StatusReporter
	cfg      *config.Scheduler
	logger   *zap.Logger
}

// NewWorker creates a recompute worker.
func NewWorker(
	engine *recommend.Engine, queue *Queue, state *StateStore,
	monitor *Monitor, cfg *config.Scheduler, logger *zap.Logger,
) *Worker {
	return &Worker{
		engine:   engine,
		queue:    queue,
		state:    state,
		reporter: NewStatusReporter(monitor, "recompute", logger),
		cfg:      cfg,
		logger:   logger.Named("recompute_worker"),
	}
}

// Run executes the worker's main loop until the context is cancelled:
// poll a batch of tasks, process each one with retries, remove them from
// the queue, repeat.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("Recompute worker started",
		zap.String("workerID", w.reporter.GetWorkerID()))
	w.reporter.Start(ctx)

	defer w.reporter.Stop()

	pollInterval := time.Duration(w.cfg.PollIntervalMS) * time.Millisecond

	for {
		if utils.ContextGuardWithLog(ctx, w.logger, "Context cancelled, stopping recompute worker") {
			return
		}

		w.reporter.SetHealthy(true)

		tasks, err := w.queue.Next(ctx, w.cfg.BatchSize)
		if err != nil {
			w.logger.Error("Failed to fetch task batch", zap.Error(err))
			w.reporter.SetHealthy(false)

			if !utils.ErrorSleep(ctx, errorWait, w.logger, "recompute worker") {
				return
			}

			continue
		}

		if len(tasks) == 0 {
			w.reporter.UpdateStatus("Idle")

			if !utils.IntervalSleep(ctx, pollInterval, w.logger, "recompute worker") {
				return
			}

			continue
		}

		for _, task := range tasks {
			if utils.ContextGuard(ctx) {
				return
			}

			w.reporter.UpdateStatus(fmt.Sprintf("Recomputing user %d", task.UserID))
			w.processTask(ctx, task)

			if err := w.queue.Remove(ctx, task); err != nil {
				w.logger.Error("Failed to remove finished task",
					zap.String("taskID", task.TaskID),
					zap.Error(err))
			}
		}
	}
}

// processTask runs one recomputation with bounded retries. The backoff
// doubles per attempt starting from the configured initial delay. On
// exhaustion the user is restored to stale so a later dispatch retries;
// previously persisted recommendations keep serving in the meantime.
func (w *Worker) processTask(ctx context.Context, task *Task) {
	if err := w.state.MarkRecomputing(ctx, task.UserID); err != nil {
		w.logger.Error("Failed to mark user recomputing",
			zap.Uint64("userID", task.UserID),
			zap.Error(err))
	}

	delay := time.Duration(w.cfg.InitialBackoffMS) * time.Millisecond

	var lastErr error

	for attempt := 1; attempt <= w.cfg.MaxAttempts; attempt++ {
		_, err := w.engine.ComputeForUser(ctx, task.UserID)
		if err == nil {
			if err := w.state.MarkFresh(ctx, task.UserID); err != nil {
				w.logger.Error("Failed to mark user fresh",
					zap.Uint64("userID", task.UserID),
					zap.Error(err))
			}

			return
		}

		lastErr = err

		w.logger.Warn("Recompute attempt failed",
			zap.Uint64("userID", task.UserID),
			zap.Int("attempt", attempt),
			zap.Error(err))

		if attempt < w.cfg.MaxAttempts {
			if utils.ContextSleep(ctx, delay) == utils.SleepCancelled {
				break
			}

			delay *= 2
		}
	}

	w.reporter.SetHealthy(false)

	if err := w.state.MarkStale(ctx, task.UserID); err != nil {
		w.logger.Error("Failed to restore stale state",
			zap.Uint64("userID", task.UserID),
			zap.Error(err))
	}

	w.logger.Error("Recompute task exhausted retries",
		zap.Uint64("userID", task.UserID),
		zap.String("reason", task.Reason),
		zap.Error(lastErr))
}
