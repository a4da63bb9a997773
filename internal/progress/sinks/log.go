package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/scrapebench/internal/progress"
)

// LogSink writes every event as a structured log line at Debug, and run
// outcomes at Info.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunUUID().String()),
			zap.String("stage", string(evt.Stage)),
			zap.String("strategy", string(evt.Strategy)),
			zap.Int("emails", evt.Emails),
			zap.Duration("dur", evt.Dur),
		}
		if evt.URL != "" {
			fields = append(fields, zap.String("url", evt.URL), zap.Bool("failed", evt.Failed))
		}
		if evt.Host != "" {
			fields = append(fields, zap.String("host", evt.Host))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		switch evt.Stage {
		case progress.StageRunDone, progress.StageRunError:
			s.logger.Info("progress event", fields...)
		default:
			s.logger.Debug("progress event", fields...)
		}
	}
	return nil
}

// Close implements progress.Sink.
func (s *LogSink) Close(context.Context) error {
	return nil
}
