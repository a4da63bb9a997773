// Package dispatcher hands batch tasks to a pool of in-process worker units
// and routes their results back to the submitting executor.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/scrapebench/internal/logging"
	"github.com/JakeFAU/scrapebench/internal/metrics"
	"github.com/JakeFAU/scrapebench/internal/queue/memory"
	"github.com/JakeFAU/scrapebench/internal/scrape"
	"github.com/JakeFAU/scrapebench/internal/worker"
)

// backendName labels this dispatcher's backlog metrics.
const backendName = "local"

// Dispatcher implements scrape.Remote over the in-memory queue.
type Dispatcher struct {
	queue   *memory.Queue
	ids     scrape.IDGenerator
	clock   scrape.Clock
	pending *Pending
	logger  *zap.Logger
}

// New creates a Dispatcher.
func New(queue *memory.Queue, ids scrape.IDGenerator, clock scrape.Clock, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		ids:     ids,
		clock:   clock,
		pending: NewPending(),
		logger:  logging.OrNop(logger).Named("dispatcher"),
	}
}

// Submit enqueues batch and returns its handle. It blocks only while the
// queue is full.
func (d *Dispatcher) Submit(ctx context.Context, batch scrape.Batch, threads int) (scrape.Handle, error) {
	if threads <= 0 {
		return nil, fmt.Errorf("%w: threads per worker must be positive, got %d", scrape.ErrInvalidArgument, threads)
	}
	id, err := d.ids.NewID()
	if err != nil {
		return nil, fmt.Errorf("task id: %w", err)
	}
	handle, err := d.pending.Register(id)
	if err != nil {
		return nil, fmt.Errorf("register task: %w", err)
	}
	task := scrape.Task{ID: id, URLs: batch, Threads: threads, Submitted: d.clock.Now().UTC()}
	if err := d.queue.Enqueue(ctx, task); err != nil {
		d.pending.Forget(id)
		return nil, fmt.Errorf("queue enqueue: %w", err)
	}
	d.logger.Debug("task submitted", zap.String("task_id", id), zap.Int("urls", len(batch)))
	d.observeBacklog()
	return handle, nil
}

// Report satisfies worker.Reporter.
func (d *Dispatcher) Report(_ context.Context, taskID string, result scrape.BatchResult, err error) {
	if !d.pending.Resolve(taskID, result, err) {
		d.logger.Warn("dropping result for unknown task", zap.String("task_id", taskID))
	}
	d.observeBacklog()
}

func (d *Dispatcher) observeBacklog() {
	metrics.SetQueueDepth(d.queue.Len())
	metrics.SetPendingTasks(backendName, d.pending.Len())
}

// Run starts all workers and blocks until ctx finishes. Tasks still pending
// afterwards fail with scrape.ErrTaskFailed.
func (d *Dispatcher) Run(ctx context.Context, workers []*worker.Worker) {
	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx, d.queue, d)
		}(w)
	}
	<-ctx.Done()
	d.queue.Close()
	wg.Wait()
	d.pending.FailAll(fmt.Errorf("%w: %w", scrape.ErrTaskFailed, ErrStopped))
	d.observeBacklog()
}
