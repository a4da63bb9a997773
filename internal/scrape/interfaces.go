package scrape

import (
	"context"
	"time"
)

// Searcher resolves a query into an ordered list of result URLs.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]string, error)
}

// Extractor fetches one URL and returns the distinct emails found on it.
type Extractor interface {
	Extract(ctx context.Context, url string) ([]string, error)
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// HeadlessDetector decides whether a headless fetch is warranted.
type HeadlessDetector interface {
	ShouldPromote(probe FetchResponse) bool
}

// Policy throttles outbound fetches.
type Policy interface {
	Wait(ctx context.Context, url string) error
}

// Remote is the capability the distributed executor hands batches to.
// Submit must not block on batch execution.
type Remote interface {
	Submit(ctx context.Context, batch Batch, threadsPerWorker int) (Handle, error)
}

// Handle is the future returned for one submitted batch.
type Handle interface {
	TaskID() string
	Await(ctx context.Context) (BatchResult, error)
}

// Publisher pushes payloads to a topic (Pub/Sub or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run and task IDs.
type IDGenerator interface {
	NewID() (string, error)
}
