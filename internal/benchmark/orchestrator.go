// Package benchmark runs every execution strategy against one query and
// compares their wall-clock performance.
package benchmark

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/scrapebench/internal/logging"
	"github.com/JakeFAU/scrapebench/internal/scrape"
	"github.com/JakeFAU/scrapebench/internal/telemetry"
)

// Defaults applied when Config leaves a field at zero.
const (
	DefaultParallelConcurrency = 5
	DefaultThreadsPerWorker    = 4
)

// LocalRunner runs the single-machine strategies.
type LocalRunner interface {
	RunSequential(ctx context.Context, query string) (scrape.ExecutionReport, error)
	RunPooled(ctx context.Context, query string, concurrency int) (scrape.ExecutionReport, error)
}

// DistributedRunner runs the batched multi-machine strategy.
type DistributedRunner interface {
	Run(ctx context.Context, query string, threadsPerWorker int) (scrape.ExecutionReport, error)
}

// Config tunes the strategies.
type Config struct {
	ParallelConcurrency int
	ThreadsPerWorker    int
}

// Orchestrator compares the three strategies.
type Orchestrator struct {
	local       LocalRunner
	distributed DistributedRunner
	cfg         Config
	tracer      trace.Tracer
	logger      *zap.Logger
}

// New builds an Orchestrator.
func New(local LocalRunner, distributed DistributedRunner, cfg Config, logger *zap.Logger) *Orchestrator {
	if cfg.ParallelConcurrency <= 0 {
		cfg.ParallelConcurrency = DefaultParallelConcurrency
	}
	if cfg.ThreadsPerWorker <= 0 {
		cfg.ThreadsPerWorker = DefaultThreadsPerWorker
	}
	return &Orchestrator{
		local:       local,
		distributed: distributed,
		cfg:         cfg,
		tracer:      telemetry.Tracer(),
		logger:      logging.OrNop(logger).Named("orchestrator"),
	}
}

// Compare runs linear, parallel and distributed in that order, each with its
// own search, and derives the comparison. Any strategy failure fails the
// whole comparison.
func (o *Orchestrator) Compare(ctx context.Context, query string) (Report, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Report{}, fmt.Errorf("%w: Query is required", scrape.ErrInvalidArgument)
	}

	ctx, span := o.tracer.Start(ctx, "benchmark.compare", trace.WithAttributes(attribute.String("query", query)))
	defer span.End()

	var results Results
	steps := []struct {
		strategy scrape.Strategy
		out      *scrape.ExecutionReport
		run      func(context.Context) (scrape.ExecutionReport, error)
	}{
		{scrape.StrategyLinear, &results.Linear, func(ctx context.Context) (scrape.ExecutionReport, error) {
			return o.local.RunSequential(ctx, query)
		}},
		{scrape.StrategyParallel, &results.Parallel, func(ctx context.Context) (scrape.ExecutionReport, error) {
			return o.local.RunPooled(ctx, query, o.cfg.ParallelConcurrency)
		}},
		{scrape.StrategyDistributed, &results.DistributedParallel, func(ctx context.Context) (scrape.ExecutionReport, error) {
			return o.distributed.Run(ctx, query, o.cfg.ThreadsPerWorker)
		}},
	}
	for _, step := range steps {
		report, err := o.runStrategy(ctx, step.strategy, step.run)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "strategy failed")
			return Report{}, err
		}
		*step.out = report
	}

	comparison := Compute(results)
	for _, w := range comparison.Warnings {
		o.logger.Warn("degraded comparison", zap.String("query", query), zap.String("warning", w))
	}
	o.logger.Info("comparison complete",
		zap.String("query", query),
		zap.Float64("linear_s", comparison.ExecutionTimes.Linear),
		zap.Float64("parallel_s", comparison.ExecutionTimes.Parallel),
		zap.Float64("distributed_s", comparison.ExecutionTimes.Distributed),
	)
	return Report{Query: query, Results: results, Comparison: comparison}, nil
}

func (o *Orchestrator) runStrategy(
	ctx context.Context,
	strategy scrape.Strategy,
	run func(context.Context) (scrape.ExecutionReport, error),
) (scrape.ExecutionReport, error) {
	ctx, span := o.tracer.Start(ctx, "benchmark.strategy", trace.WithAttributes(attribute.String("strategy", string(strategy))))
	defer span.End()

	report, err := run(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return scrape.ExecutionReport{}, fmt.Errorf("compare %s: %w", strategy, err)
	}
	span.SetAttributes(
		attribute.Int("pages_scraped", report.PagesScraped),
		attribute.Int("emails_found", len(report.EmailsFound)),
		attribute.Float64("time_taken", report.TimeTaken()),
	)
	return report, nil
}
