package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/scrapebench/internal/metrics"
	"github.com/JakeFAU/scrapebench/internal/progress"
	"github.com/JakeFAU/scrapebench/internal/scrape"
)

// DefaultBatchSize is the number of URLs sent to one remote worker unit.
const DefaultBatchSize = 5

// DistributedConfig configures a Distributed executor.
type DistributedConfig struct {
	BatchSize   int
	SearchLimit int
}

// Distributed splits the search results into batches, hands every batch to a
// remote worker unit and merges the results in dispatch order.
type Distributed struct {
	searcher  scrape.Searcher
	remote    scrape.Remote
	batchSize int
	limit     int
	shared
}

// NewDistributed builds a Distributed executor.
func NewDistributed(searcher scrape.Searcher, remote scrape.Remote, cfg DistributedConfig, opts ...Option) (*Distributed, error) {
	if searcher == nil || remote == nil {
		return nil, errors.New("distributed executor requires a searcher and a remote")
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchSize < 1 {
		return nil, fmt.Errorf("%w: batch size %d must be >= 1", scrape.ErrInvalidArgument, cfg.BatchSize)
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = DefaultSearchLimit
	}
	d := &Distributed{
		searcher:  searcher,
		remote:    remote,
		batchSize: cfg.BatchSize,
		limit:     cfg.SearchLimit,
		shared:    newShared(opts),
	}
	d.logger = d.logger.Named("executor")
	return d, nil
}

// Run searches for query, submits every batch without waiting on any of them,
// then awaits all handles. Any failed batch fails the run with
// scrape.ErrTaskFailed.
func (d *Distributed) Run(ctx context.Context, query string, threadsPerWorker int) (scrape.ExecutionReport, error) {
	if threadsPerWorker < 1 {
		return scrape.ExecutionReport{}, fmt.Errorf("%w: threads per worker %d must be >= 1", scrape.ErrInvalidArgument, threadsPerWorker)
	}
	r := run{id: d.runID(), strategy: scrape.StrategyDistributed, start: d.clock.Now()}
	d.emit(progress.Event{RunID: r.id, TS: r.start, Stage: progress.StageRunStart, Strategy: r.strategy})

	urls, degraded := search(ctx, d.searcher, query, d.limit, d.logger)
	batches, err := Split(urls, d.batchSize)
	if err != nil {
		return d.fail(r, err)
	}

	handles, submitErr := d.submit(ctx, batches, threadsPerWorker)
	results, awaitErr := d.await(ctx, r, handles)
	if err := errors.Join(submitErr, awaitErr); err != nil {
		if !errors.Is(err, scrape.ErrTaskFailed) {
			err = fmt.Errorf("%w: %w", scrape.ErrTaskFailed, err)
		}
		return d.fail(r, err)
	}

	report := d.merge(urls, results, threadsPerWorker)
	report.SearchDegraded = degraded
	report.Elapsed = d.clock.Now().Sub(r.start)

	d.emit(progress.Event{
		RunID: r.id, Stage: progress.StageRunDone, Strategy: r.strategy,
		Emails: len(report.EmailsFound), Dur: report.Elapsed,
	})
	metrics.ObserveRun(string(r.strategy), "ok", report.Elapsed)
	d.logger.Info("run complete",
		zap.String("strategy", string(r.strategy)),
		zap.Int("pages", report.PagesScraped),
		zap.Int("batches", len(batches)),
		zap.Int("failed", report.URLsFailed),
		zap.Int("emails", len(report.EmailsFound)),
		zap.Duration("elapsed", report.Elapsed),
	)
	return report, nil
}

// submit hands every batch to the remote. A submit failure stops further
// submissions; handles already issued are still returned so they get awaited.
func (d *Distributed) submit(ctx context.Context, batches []scrape.Batch, threads int) ([]scrape.Handle, error) {
	handles := make([]scrape.Handle, 0, len(batches))
	for i, batch := range batches {
		h, err := d.remote.Submit(ctx, batch, threads)
		if err != nil {
			return handles, fmt.Errorf("submit batch %d: %w", i, err)
		}
		handles = append(handles, h)
	}
	return handles, nil
}

// await blocks on every handle in dispatch order, even after a failure, and
// reports the first failure.
func (d *Distributed) await(ctx context.Context, r run, handles []scrape.Handle) ([]scrape.BatchResult, error) {
	results := make([]scrape.BatchResult, len(handles))
	var firstErr error
	for i, h := range handles {
		res, err := h.Await(ctx)
		if err != nil {
			d.logger.Warn("batch failed",
				zap.Int("batch", i),
				zap.String("task_id", h.TaskID()),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = fmt.Errorf("batch %d (task %s): %w", i, h.TaskID(), err)
			}
			continue
		}
		results[i] = res
		d.emit(progress.Event{
			RunID: r.id, Stage: progress.StageBatchDone, Strategy: r.strategy,
			Host: res.Info.Hostname, Emails: len(res.Emails), Dur: d.clock.Now().Sub(r.start),
		})
	}
	return results, firstErr
}

func (d *Distributed) merge(urls []string, results []scrape.BatchResult, threads int) scrape.ExecutionReport {
	emails := []string{}
	details := make([]scrape.MachineDetail, 0, len(results))
	var (
		failed    int
		durations []time.Duration
	)
	for _, res := range results {
		emails = append(emails, res.Emails...)
		details = append(details, res.Info)
		failed += res.URLsFailed
		durations = append(durations, res.FetchDurations...)
	}
	return scrape.ExecutionReport{
		PagesScraped: len(urls),
		URLsFailed:   failed,
		EmailsFound:  emails,
		FetchLatency: Summarize(durations),
		ProcessingInfo: scrape.ProcessingInfo{
			Type:              scrape.StrategyDistributed,
			MachinesUsed:      len(results),
			ThreadsPerMachine: threads,
			TotalThreads:      len(results) * threads,
			MachineDetails:    details,
		},
	}
}

func (d *Distributed) fail(r run, err error) (scrape.ExecutionReport, error) {
	elapsed := d.clock.Now().Sub(r.start)
	d.emit(progress.Event{
		RunID: r.id, Stage: progress.StageRunError, Strategy: r.strategy,
		Dur: elapsed, Note: err.Error(),
	})
	metrics.ObserveRun(string(r.strategy), "error", elapsed)
	return scrape.ExecutionReport{}, fmt.Errorf("%s run: %w", r.strategy, err)
}
