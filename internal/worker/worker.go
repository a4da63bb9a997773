// Package worker implements the remote worker unit: it takes batch tasks,
// runs them through a local pool and reports the outcome.
package worker

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/scrapebench/internal/logging"
	"github.com/JakeFAU/scrapebench/internal/metrics"
	"github.com/JakeFAU/scrapebench/internal/scrape"
)

// BatchRunner executes one batch with the given number of threads.
type BatchRunner interface {
	RunBatch(ctx context.Context, urls scrape.Batch, threads int) (scrape.BatchResult, error)
}

// Source yields tasks for Run.
type Source interface {
	Dequeue(ctx context.Context) (scrape.Task, error)
}

// Reporter receives the final outcome of every task a worker handles.
type Reporter interface {
	Report(ctx context.Context, taskID string, result scrape.BatchResult, err error)
}

// Worker runs batch tasks with retries.
type Worker struct {
	name   string
	runner BatchRunner
	retry  RetryPolicy
	logger *zap.Logger
}

// New constructs a Worker. A nil retry policy selects the default.
func New(name string, runner BatchRunner, retry RetryPolicy, logger *zap.Logger) *Worker {
	if retry == nil {
		retry = NewExponentialRetryPolicy(0)
	}
	return &Worker{
		name:   name,
		runner: runner,
		retry:  retry,
		logger: logging.OrNop(logger).Named("worker").With(zap.String("worker", name)),
	}
}

// Run consumes tasks from source and reports each outcome until ctx ends or
// the source fails.
func (w *Worker) Run(ctx context.Context, source Source, reporter Reporter) {
	for {
		task, err := source.Dequeue(ctx)
		if err != nil {
			if ctx.Err() == nil {
				w.logger.Info("worker stopping", zap.Error(err))
			}
			return
		}
		w.logger.Debug("dequeued task", zap.String("task_id", task.ID), zap.Int("urls", len(task.URLs)))
		result, err := w.Process(ctx, task)
		reporter.Report(ctx, task.ID, result, err)
	}
}

// Process runs task, retrying per policy. A task that still fails returns an
// error wrapping scrape.ErrTaskFailed and the last cause.
func (w *Worker) Process(ctx context.Context, task scrape.Task) (scrape.BatchResult, error) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	for attempt := 1; ; attempt++ {
		result, err := w.runner.RunBatch(ctx, task.URLs, task.Threads)
		if err == nil {
			result.TaskID = task.ID
			metrics.ObserveTask("completed")
			return result, nil
		}
		if !w.retry.ShouldRetry(err, attempt) {
			metrics.ObserveTask("failed")
			w.logger.Warn("task failed",
				zap.String("task_id", task.ID),
				zap.Int("attempts", attempt),
				zap.Error(err),
			)
			if errors.Is(err, scrape.ErrTaskFailed) {
				return scrape.BatchResult{}, fmt.Errorf("task %s: %w", task.ID, err)
			}
			return scrape.BatchResult{}, fmt.Errorf("%w: task %s: %w", scrape.ErrTaskFailed, task.ID, err)
		}
		metrics.ObserveTask("retried")
		delay := w.retry.Backoff(attempt)
		w.logger.Info("retrying task",
			zap.String("task_id", task.ID),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if serr := sleep(ctx, delay); serr != nil {
			metrics.ObserveTask("failed")
			return scrape.BatchResult{}, fmt.Errorf("%w: task %s: %w", scrape.ErrTaskFailed, task.ID, serr)
		}
	}
}
