package pubsubdispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/scrapebench/internal/logging"
	"github.com/JakeFAU/scrapebench/internal/scrape"
)

// TaskProcessor runs one task to completion, retries included.
type TaskProcessor interface {
	Process(ctx context.Context, task scrape.Task) (scrape.BatchResult, error)
}

// Responder is the worker-process side: it runs received tasks and
// publishes their results.
type Responder struct {
	processor   TaskProcessor
	publisher   scrape.Publisher
	resultTopic string
	logger      *zap.Logger
}

// NewResponder constructs a Responder.
func NewResponder(processor TaskProcessor, publisher scrape.Publisher, resultTopic string, logger *zap.Logger) *Responder {
	return &Responder{
		processor:   processor,
		publisher:   publisher,
		resultTopic: resultTopic,
		logger:      logging.OrNop(logger).Named("worker"),
	}
}

// HandleTask consumes one task envelope body. Undecodable envelopes are
// logged and dropped. A failed result publish is returned so the task is
// redelivered.
func (r *Responder) HandleTask(ctx context.Context, data []byte) error {
	var task scrape.Task
	if err := json.Unmarshal(data, &task); err != nil || task.ID == "" {
		r.logger.Warn("dropping malformed task envelope", zap.ByteString("body", data), zap.Error(err))
		return nil
	}

	env := ResultEnvelope{}
	result, err := r.processor.Process(ctx, task)
	if err != nil {
		env.Error = err.Error()
	} else {
		env.BatchResult = result
	}
	env.TaskID = task.ID

	if _, err := r.publisher.Publish(ctx, r.resultTopic, env); err != nil {
		return fmt.Errorf("publish result for task %s: %w", task.ID, err)
	}
	r.logger.Info("task result published",
		zap.String("task_id", task.ID),
		zap.Int("emails", len(env.Emails)),
		zap.Bool("failed", env.Error != ""),
	)
	return nil
}
