package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/scrapebench/internal/metrics"
	"github.com/JakeFAU/scrapebench/internal/progress"
	"github.com/JakeFAU/scrapebench/internal/scrape"
)

// LocalConfig configures a Local executor.
type LocalConfig struct {
	// HostID labels this machine in reports.
	HostID string
	// SearchLimit caps the URLs requested per query.
	SearchLimit int
}

// Local runs fetch-and-extract on this machine, sequentially or through a
// bounded pool. It never retries a URL.
type Local struct {
	searcher  scrape.Searcher
	extractor scrape.Extractor
	hostID    string
	limit     int
	shared
}

// NewLocal builds a Local executor.
func NewLocal(searcher scrape.Searcher, extractor scrape.Extractor, cfg LocalConfig, opts ...Option) (*Local, error) {
	if searcher == nil || extractor == nil {
		return nil, errors.New("local executor requires a searcher and an extractor")
	}
	if cfg.HostID == "" {
		return nil, fmt.Errorf("%w: local executor requires a host id", scrape.ErrInvalidArgument)
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = DefaultSearchLimit
	}
	l := &Local{
		searcher:  searcher,
		extractor: extractor,
		hostID:    cfg.HostID,
		limit:     cfg.SearchLimit,
		shared:    newShared(opts),
	}
	l.logger = l.logger.Named("executor")
	return l, nil
}

// RunSequential searches for query and processes every URL in search order.
func (l *Local) RunSequential(ctx context.Context, query string) (scrape.ExecutionReport, error) {
	return l.runQuery(ctx, scrape.StrategyLinear, query, 1)
}

// RunPooled searches for query and processes the URLs with at most
// concurrency fetches in flight. Emails are collected in completion order.
func (l *Local) RunPooled(ctx context.Context, query string, concurrency int) (scrape.ExecutionReport, error) {
	return l.runQuery(ctx, scrape.StrategyParallel, query, concurrency)
}

// RunURLs processes an already-resolved URL list. Concurrency 1 is the
// sequential strategy; anything higher uses the pool.
func (l *Local) RunURLs(ctx context.Context, urls []string, concurrency int) (scrape.ExecutionReport, error) {
	if concurrency < 1 {
		return scrape.ExecutionReport{}, fmt.Errorf("%w: concurrency %d must be >= 1", scrape.ErrInvalidArgument, concurrency)
	}
	strategy := scrape.StrategyParallel
	if concurrency == 1 {
		strategy = scrape.StrategyLinear
	}
	run := l.startRun(strategy)
	out, err := l.process(ctx, run, urls, concurrency)
	if err != nil {
		return l.failRun(run, err)
	}
	return l.finishRun(run, urls, out, concurrency, false), nil
}

// RunBatch processes one remote batch for a worker unit, reporting the work
// under this executor's host ID.
func (l *Local) RunBatch(ctx context.Context, urls scrape.Batch, threads int) (scrape.BatchResult, error) {
	if threads < 1 {
		return scrape.BatchResult{}, fmt.Errorf("%w: threads %d must be >= 1", scrape.ErrInvalidArgument, threads)
	}
	// Batches belong to a distributed run tracked by the submitting side; only
	// fetch events are emitted here.
	batchRun := run{id: l.runID(), strategy: scrape.StrategyDistributed, start: l.clock.Now()}
	out, err := l.process(ctx, batchRun, urls, threads)
	if err != nil {
		return scrape.BatchResult{}, err
	}
	return scrape.BatchResult{
		Emails:         out.emails,
		URLsFailed:     out.failed,
		FetchDurations: out.durations,
		Info: scrape.MachineDetail{
			Hostname:      l.hostID,
			Threads:       threads,
			URLsProcessed: len(urls),
		},
	}, nil
}

func (l *Local) runQuery(ctx context.Context, strategy scrape.Strategy, query string, concurrency int) (scrape.ExecutionReport, error) {
	if concurrency < 1 {
		return scrape.ExecutionReport{}, fmt.Errorf("%w: concurrency %d must be >= 1", scrape.ErrInvalidArgument, concurrency)
	}
	run := l.startRun(strategy)
	urls, degraded := search(ctx, l.searcher, query, l.limit, l.logger)
	out, err := l.process(ctx, run, urls, concurrency)
	if err != nil {
		return l.failRun(run, err)
	}
	return l.finishRun(run, urls, out, concurrency, degraded), nil
}

// run tracks one strategy execution from its first clock reading.
type run struct {
	id       [16]byte
	strategy scrape.Strategy
	start    time.Time
}

func (l *Local) startRun(strategy scrape.Strategy) run {
	r := run{id: l.runID(), strategy: strategy, start: l.clock.Now()}
	l.emit(progress.Event{RunID: r.id, TS: r.start, Stage: progress.StageRunStart, Strategy: strategy})
	return r
}

func (l *Local) finishRun(r run, urls []string, out outcome, concurrency int, degraded bool) scrape.ExecutionReport {
	elapsed := l.clock.Now().Sub(r.start)
	report := scrape.ExecutionReport{
		Elapsed:        elapsed,
		PagesScraped:   len(urls),
		URLsFailed:     out.failed,
		EmailsFound:    out.emails,
		SearchDegraded: degraded,
		FetchLatency:   Summarize(out.durations),
		ProcessingInfo: scrape.ProcessingInfo{
			Type:              r.strategy,
			MachinesUsed:      1,
			ThreadsPerMachine: concurrency,
			TotalThreads:      concurrency,
			MachineDetails: []scrape.MachineDetail{{
				Hostname:      l.hostID,
				Threads:       concurrency,
				URLsProcessed: len(urls),
			}},
		},
	}
	l.emit(progress.Event{
		RunID: r.id, Stage: progress.StageRunDone, Strategy: r.strategy,
		Emails: len(out.emails), Dur: elapsed,
	})
	metrics.ObserveRun(string(r.strategy), "ok", elapsed)
	l.logger.Info("run complete",
		zap.String("strategy", string(r.strategy)),
		zap.Int("pages", report.PagesScraped),
		zap.Int("failed", report.URLsFailed),
		zap.Int("emails", len(report.EmailsFound)),
		zap.Duration("elapsed", elapsed),
	)
	return report
}

func (l *Local) failRun(r run, err error) (scrape.ExecutionReport, error) {
	elapsed := l.clock.Now().Sub(r.start)
	l.emit(progress.Event{
		RunID: r.id, Stage: progress.StageRunError, Strategy: r.strategy,
		Dur: elapsed, Note: err.Error(),
	})
	metrics.ObserveRun(string(r.strategy), "error", elapsed)
	return scrape.ExecutionReport{}, fmt.Errorf("%s run: %w", r.strategy, err)
}

// outcome aggregates the per-URL results of one run or batch.
type outcome struct {
	emails    []string
	failed    int
	durations []time.Duration
}

// collector is the only state pool workers share.
type collector struct {
	mu  sync.Mutex
	out outcome
}

func (c *collector) add(emails []string, failed bool, took time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.out.emails = append(c.out.emails, emails...)
	if failed {
		c.out.failed++
	}
	c.out.durations = append(c.out.durations, took)
}

func (l *Local) process(ctx context.Context, r run, urls []string, concurrency int) (outcome, error) {
	c := &collector{out: outcome{emails: []string{}}}
	if concurrency == 1 {
		for _, url := range urls {
			l.visit(ctx, r, url, c)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(concurrency)
		for _, url := range urls {
			g.Go(func() error {
				l.visit(ctx, r, url, c)
				return nil
			})
		}
		// Workers never return errors; URL failures are recorded in c.
		_ = g.Wait()
	}
	if err := ctx.Err(); err != nil {
		return outcome{}, fmt.Errorf("process urls: %w", err)
	}
	return c.out, nil
}

// visit extracts one URL. A failure is logged and contributes no emails.
func (l *Local) visit(ctx context.Context, r run, url string, c *collector) {
	start := l.clock.Now()
	emails, err := l.extractor.Extract(ctx, url)
	took := l.clock.Now().Sub(start)
	failed := err != nil
	if failed {
		l.logger.Warn("fetch failed; counting no emails",
			zap.String("strategy", string(r.strategy)),
			zap.String("url", url),
			zap.Error(err),
		)
		emails = nil
	}
	c.add(emails, failed, took)
	evt := progress.Event{
		RunID: r.id, Stage: progress.StageFetchDone, Strategy: r.strategy,
		URL: url, Emails: len(emails), Failed: failed, Dur: took,
	}
	if failed {
		evt.Note = err.Error()
	}
	l.emit(evt)
}

// search resolves query into URLs. Any failure degrades to zero URLs.
func search(ctx context.Context, searcher scrape.Searcher, query string, limit int, logger *zap.Logger) ([]string, bool) {
	urls, err := searcher.Search(ctx, query, limit)
	if err != nil {
		logger.Warn("search failed; continuing with zero urls",
			zap.String("query", query),
			zap.Error(err),
		)
		return []string{}, true
	}
	if urls == nil {
		urls = []string{}
	}
	return urls, false
}
