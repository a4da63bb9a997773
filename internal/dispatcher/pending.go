package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/scrapebench/internal/scrape"
)

// ErrStopped is returned by Register once the registry has been failed.
var ErrStopped = errors.New("dispatcher stopped")

type outcome struct {
	result scrape.BatchResult
	err    error
}

// Pending tracks submitted tasks until their result arrives.
type Pending struct {
	mu      sync.Mutex
	waiters map[string]chan outcome
	stopped error
}

// NewPending returns an empty registry.
func NewPending() *Pending {
	return &Pending{waiters: make(map[string]chan outcome)}
}

// Register creates the handle for taskID. It must be called before the task
// can possibly complete.
func (p *Pending) Register(taskID string) (*Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped != nil {
		return nil, p.stopped
	}
	if _, dup := p.waiters[taskID]; dup {
		return nil, fmt.Errorf("%w: duplicate task id %s", scrape.ErrInvalidArgument, taskID)
	}
	ch := make(chan outcome, 1)
	p.waiters[taskID] = ch
	return &Handle{id: taskID, ch: ch, pending: p}, nil
}

// Resolve delivers the outcome for taskID. It reports false when nothing is
// waiting, which happens for duplicates and tasks already forgotten.
func (p *Pending) Resolve(taskID string, result scrape.BatchResult, err error) bool {
	p.mu.Lock()
	ch, ok := p.waiters[taskID]
	delete(p.waiters, taskID)
	p.mu.Unlock()
	if !ok {
		return false
	}
	ch <- outcome{result: result, err: err}
	return true
}

// Forget drops taskID without resolving it.
func (p *Pending) Forget(taskID string) {
	p.mu.Lock()
	delete(p.waiters, taskID)
	p.mu.Unlock()
}

// Len reports the number of unresolved tasks.
func (p *Pending) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.waiters)
}

// FailAll resolves every outstanding task with err and rejects later
// registrations.
func (p *Pending) FailAll(err error) {
	p.mu.Lock()
	waiters := p.waiters
	p.waiters = make(map[string]chan outcome)
	p.stopped = err
	p.mu.Unlock()
	for _, ch := range waiters {
		ch <- outcome{err: err}
	}
}

// Handle is the future for one submitted task.
type Handle struct {
	id      string
	ch      chan outcome
	pending *Pending
}

// TaskID returns the task identifier.
func (h *Handle) TaskID() string { return h.id }

// Await blocks until the task resolves or ctx ends. A canceled wait forgets
// the task so a late result is dropped.
func (h *Handle) Await(ctx context.Context) (scrape.BatchResult, error) {
	select {
	case out := <-h.ch:
		return out.result, out.err
	case <-ctx.Done():
		h.pending.Forget(h.id)
		return scrape.BatchResult{}, fmt.Errorf("%w: task %s: %w", scrape.ErrTaskFailed, h.id, ctx.Err())
	}
}
