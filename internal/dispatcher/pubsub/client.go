package pubsubdispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/scrapebench/internal/dispatcher"
	"github.com/JakeFAU/scrapebench/internal/logging"
	"github.com/JakeFAU/scrapebench/internal/metrics"
	"github.com/JakeFAU/scrapebench/internal/scrape"
)

// backendName labels this client's backlog metrics.
const backendName = "pubsub"

// ClientConfig configures the submitting side.
type ClientConfig struct {
	TaskTopic string
	// ResultTimeout bounds how long a submitted task may stay silent.
	// Zero waits for the caller's context only.
	ResultTimeout time.Duration
}

// Client implements scrape.Remote by publishing task envelopes and
// resolving handles from result envelopes.
type Client struct {
	publisher scrape.Publisher
	ids       scrape.IDGenerator
	clock     scrape.Clock
	pending   *dispatcher.Pending
	cfg       ClientConfig
	logger    *zap.Logger
}

// NewClient constructs a Client.
func NewClient(publisher scrape.Publisher, ids scrape.IDGenerator, clock scrape.Clock, cfg ClientConfig, logger *zap.Logger) *Client {
	return &Client{
		publisher: publisher,
		ids:       ids,
		clock:     clock,
		pending:   dispatcher.NewPending(),
		cfg:       cfg,
		logger:    logging.OrNop(logger).Named("dispatcher"),
	}
}

// Submit publishes batch and returns its handle.
func (c *Client) Submit(ctx context.Context, batch scrape.Batch, threads int) (scrape.Handle, error) {
	if threads <= 0 {
		return nil, fmt.Errorf("%w: threads per worker must be positive, got %d", scrape.ErrInvalidArgument, threads)
	}
	id, err := c.ids.NewID()
	if err != nil {
		return nil, fmt.Errorf("task id: %w", err)
	}
	handle, err := c.pending.Register(id)
	if err != nil {
		return nil, fmt.Errorf("register task: %w", err)
	}
	now := c.clock.Now()
	task := scrape.Task{ID: id, URLs: batch, Threads: threads, Submitted: now.UTC()}
	msgID, err := c.publisher.Publish(ctx, c.cfg.TaskTopic, task)
	if err != nil {
		c.pending.Forget(id)
		return nil, fmt.Errorf("publish task: %w", err)
	}
	c.logger.Debug("task published",
		zap.String("task_id", id),
		zap.String("message_id", msgID),
		zap.Int("urls", len(batch)),
	)
	metrics.SetPendingTasks(backendName, c.pending.Len())
	if c.cfg.ResultTimeout <= 0 {
		return handle, nil
	}
	return &timedHandle{Handle: handle, clock: c.clock, deadline: now.Add(c.cfg.ResultTimeout)}, nil
}

// HandleResult consumes one result envelope body. Results for tasks this
// client does not know are dropped; they belong to another replica or to a
// task whose caller gave up.
func (c *Client) HandleResult(_ context.Context, data []byte) error {
	var env ResultEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("decode result envelope: %w", err)
	}
	if env.TaskID == "" {
		return errors.New("decode result envelope: missing task_id")
	}
	var taskErr error
	if env.Error != "" {
		taskErr = fmt.Errorf("%w: task %s: %s", scrape.ErrTaskFailed, env.TaskID, env.Error)
	}
	if !c.pending.Resolve(env.TaskID, env.BatchResult, taskErr) {
		c.logger.Debug("ignoring result for unknown task", zap.String("task_id", env.TaskID))
	}
	metrics.SetPendingTasks(backendName, c.pending.Len())
	return nil
}

// Close fails every task still waiting for a result.
func (c *Client) Close() {
	c.pending.FailAll(fmt.Errorf("%w: %w", scrape.ErrTaskFailed, dispatcher.ErrStopped))
	metrics.SetPendingTasks(backendName, c.pending.Len())
}

// timedHandle bounds Await by a deadline read off the client's clock.
type timedHandle struct {
	*dispatcher.Handle
	clock    scrape.Clock
	deadline time.Time
}

func (h *timedHandle) Await(ctx context.Context) (scrape.BatchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, h.deadline.Sub(h.clock.Now()))
	defer cancel()
	return h.Handle.Await(ctx)
}
