package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/scrapebench/internal/scrape"
)

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	result := make(chan scrape.Task, 1)
	go func() {
		task, err := q.Dequeue(context.Background())
		if err == nil {
			result <- task
		}
	}()

	require.NoError(t, q.Enqueue(context.Background(), scrape.Task{ID: "task-1", URLs: scrape.Batch{"https://a.example"}}))
	select {
	case got := <-result:
		require.Equal(t, "task-1", got.ID)
		require.Len(t, got.URLs, 1)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return task")
	}
}

func TestQueueCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewQueue(1).Dequeue(ctx)
	require.ErrorIs(t, err, context.Canceled)

	full := NewQueue(1)
	require.NoError(t, full.Enqueue(context.Background(), scrape.Task{ID: "primed"}))
	require.Equal(t, 1, full.Len())
	require.ErrorIs(t, full.Enqueue(ctx, scrape.Task{ID: "blocked"}), context.Canceled)
}

func TestQueueClose(t *testing.T) {
	t.Parallel()

	q := NewQueue(2)
	blocked := make(chan error, 1)
	go func() {
		_, err := q.Dequeue(context.Background())
		blocked <- err
	}()

	q.Close()
	q.Close()
	select {
	case err := <-blocked:
		require.True(t, errors.Is(err, ErrClosed))
	case <-time.After(time.Second):
		t.Fatal("close did not wake dequeue")
	}
	require.ErrorIs(t, q.Enqueue(context.Background(), scrape.Task{ID: "late"}), ErrClosed)
}
