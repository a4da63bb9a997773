package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JakeFAU/scrapebench/internal/progress"
	"github.com/JakeFAU/scrapebench/internal/scrape"
)

// stepClock advances by step on every reading.
type stepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func newStepClock(step time.Duration) *stepClock {
	return &stepClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), step: step}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now
	c.now = c.now.Add(c.step)
	return now
}

type fakeSearcher struct {
	urls  []string
	err   error
	calls atomic.Int32
}

func (s *fakeSearcher) Search(_ context.Context, _ string, limit int) ([]string, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	if limit > 0 && limit < len(s.urls) {
		return append([]string(nil), s.urls[:limit]...), nil
	}
	return append([]string(nil), s.urls...), nil
}

// fakeExtractor returns one email per URL, named after the URL, and fails
// URLs listed in failing.
type fakeExtractor struct {
	failing  map[string]bool
	delay    time.Duration
	inFlight atomic.Int32
	peak     atomic.Int32

	mu    sync.Mutex
	order []string
}

func (e *fakeExtractor) Extract(ctx context.Context, url string) ([]string, error) {
	cur := e.inFlight.Add(1)
	defer e.inFlight.Add(-1)
	for {
		peak := e.peak.Load()
		if cur <= peak || e.peak.CompareAndSwap(peak, cur) {
			break
		}
	}
	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	e.mu.Lock()
	e.order = append(e.order, url)
	e.mu.Unlock()
	if e.failing[url] {
		return nil, fmt.Errorf("%w: %s: connection reset", scrape.ErrFetchFailed, url)
	}
	return []string{emailFor(url)}, nil
}

func (e *fakeExtractor) Order() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.order...)
}

func emailFor(url string) string {
	return "info@" + url[len("https://"):]
}

func urlList(n int) []string {
	urls := make([]string, n)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://site%02d.example", i)
	}
	return urls
}

// recorder captures progress events.
type recorder struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recorder) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recorder) Stages() []progress.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]progress.Stage, 0, len(r.events))
	for _, evt := range r.events {
		out = append(out, evt.Stage)
	}
	return out
}

// fakeRemote resolves each batch through a per-index behavior. Await blocks
// until release is closed when set.
type fakeRemote struct {
	mu        sync.Mutex
	submitted []scrape.Batch
	failIndex int
	submitErr error
	release   chan struct{}
	awaited   atomic.Int32
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{failIndex: -1}
}

func (r *fakeRemote) Submit(_ context.Context, batch scrape.Batch, threads int) (scrape.Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.submitErr != nil && len(r.submitted) == 1 {
		return nil, r.submitErr
	}
	idx := len(r.submitted)
	r.submitted = append(r.submitted, batch)
	h := &fakeHandle{remote: r, id: fmt.Sprintf("task-%d", idx)}
	if idx == r.failIndex {
		h.err = fmt.Errorf("%w: task-%d: worker crashed", scrape.ErrTaskFailed, idx)
		return h, nil
	}
	emails := make([]string, 0, len(batch))
	for _, url := range batch {
		emails = append(emails, emailFor(url))
	}
	h.res = scrape.BatchResult{
		TaskID:         h.id,
		Emails:         emails,
		FetchDurations: []time.Duration{time.Duration(idx+1) * 10 * time.Millisecond},
		Info: scrape.MachineDetail{
			Hostname:      fmt.Sprintf("worker-%d", idx),
			Threads:       threads,
			URLsProcessed: len(batch),
		},
	}
	return h, nil
}

func (r *fakeRemote) Submitted() []scrape.Batch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]scrape.Batch(nil), r.submitted...)
}

type fakeHandle struct {
	remote *fakeRemote
	id     string
	res    scrape.BatchResult
	err    error
}

func (h *fakeHandle) TaskID() string { return h.id }

func (h *fakeHandle) Await(ctx context.Context) (scrape.BatchResult, error) {
	if h.remote.release != nil {
		select {
		case <-h.remote.release:
		case <-ctx.Done():
			return scrape.BatchResult{}, ctx.Err()
		}
	}
	h.remote.awaited.Add(1)
	return h.res, h.err
}

var errSearchDown = errors.New("quota exceeded")
