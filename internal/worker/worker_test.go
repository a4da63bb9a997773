package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/scrapebench/internal/queue/memory"
	"github.com/JakeFAU/scrapebench/internal/scrape"
)

// flakyRunner fails its first fails calls.
type flakyRunner struct {
	mu    sync.Mutex
	calls int
	fails int
	err   error
}

func (r *flakyRunner) RunBatch(_ context.Context, urls scrape.Batch, threads int) (scrape.BatchResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.calls <= r.fails {
		err := r.err
		if err == nil {
			err = errors.New("transient error")
		}
		return scrape.BatchResult{}, err
	}
	emails := make([]string, 0, len(urls))
	for range urls {
		emails = append(emails, "info@acme.example")
	}
	return scrape.BatchResult{
		Emails: emails,
		Info:   scrape.MachineDetail{Hostname: "unit-1", Threads: threads, URLsProcessed: len(urls)},
	}, nil
}

func (r *flakyRunner) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// instantRetry retries up to max attempts without waiting.
type instantRetry struct{ max int }

func (p instantRetry) ShouldRetry(err error, attempt int) bool {
	return err != nil && attempt < p.max && !errors.Is(err, scrape.ErrInvalidArgument)
}

func (instantRetry) Backoff(int) time.Duration { return 0 }

type reportSink struct {
	mu      sync.Mutex
	reports map[string]error
	results map[string]scrape.BatchResult
}

func newReportSink() *reportSink {
	return &reportSink{reports: map[string]error{}, results: map[string]scrape.BatchResult{}}
}

func (s *reportSink) Report(_ context.Context, taskID string, result scrape.BatchResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[taskID] = err
	s.results[taskID] = result
}

func (s *reportSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reports)
}

func TestProcessSucceedsAfterRetry(t *testing.T) {
	t.Parallel()

	runner := &flakyRunner{fails: 2}
	w := New("w1", runner, instantRetry{max: 3}, nil)

	res, err := w.Process(context.Background(), scrape.Task{ID: "t1", URLs: scrape.Batch{"https://a.example", "https://b.example"}, Threads: 4})
	require.NoError(t, err)
	require.Equal(t, 3, runner.Calls())
	require.Equal(t, "t1", res.TaskID)
	require.Len(t, res.Emails, 2)
	require.Equal(t, 4, res.Info.Threads)
}

func TestProcessRetryExhausted(t *testing.T) {
	t.Parallel()

	runner := &flakyRunner{fails: 10}
	w := New("w1", runner, instantRetry{max: 3}, nil)

	_, err := w.Process(context.Background(), scrape.Task{ID: "t2", URLs: scrape.Batch{"https://a.example"}, Threads: 1})
	require.ErrorIs(t, err, scrape.ErrTaskFailed)
	require.ErrorContains(t, err, "transient error")
	require.Equal(t, 3, runner.Calls())
}

func TestProcessDoesNotRetryInvalidArgument(t *testing.T) {
	t.Parallel()

	runner := &flakyRunner{fails: 10, err: scrape.ErrInvalidArgument}
	w := New("w1", runner, NewExponentialRetryPolicy(5), nil)

	_, err := w.Process(context.Background(), scrape.Task{ID: "t3", Threads: 0})
	require.ErrorIs(t, err, scrape.ErrTaskFailed)
	require.ErrorIs(t, err, scrape.ErrInvalidArgument)
	require.Equal(t, 1, runner.Calls())
}

func TestRunReportsEveryTask(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(4)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(context.Background(), scrape.Task{ID: id, URLs: scrape.Batch{"https://" + id + ".example"}, Threads: 2}))
	}
	sink := newReportSink()
	w := New("w1", &flakyRunner{}, instantRetry{max: 1}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx, q, sink)
		close(done)
	}()

	require.Eventually(t, func() bool { return sink.Len() == 3 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
	require.NoError(t, sink.reports["b"])
	require.Equal(t, "b", sink.results["b"].TaskID)
}

func TestRunStopsWhenQueueCloses(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(1)
	w := New("w1", &flakyRunner{}, nil, nil)
	done := make(chan struct{})
	go func() {
		w.Run(context.Background(), q, newReportSink())
		close(done)
	}()
	q.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after queue close")
	}
}

func TestExponentialRetryPolicy(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy(3)
	transient := errors.New("boom")
	require.True(t, p.ShouldRetry(transient, 1))
	require.True(t, p.ShouldRetry(transient, 2))
	require.False(t, p.ShouldRetry(transient, 3))
	require.False(t, p.ShouldRetry(nil, 1))
	require.False(t, p.ShouldRetry(context.Canceled, 1))
	require.False(t, p.ShouldRetry(scrape.ErrInvalidArgument, 1))

	for attempt := 1; attempt <= 8; attempt++ {
		d := p.Backoff(attempt)
		require.GreaterOrEqual(t, d, time.Duration(0))
		require.LessOrEqual(t, d, 5*time.Second)
	}
	first := p.Backoff(1)
	require.GreaterOrEqual(t, first, 125*time.Millisecond)
	require.Less(t, first, 250*time.Millisecond)
}
