// Package server builds the application's dependency graph from config and
// runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/scrapebench/internal/api"
	"github.com/JakeFAU/scrapebench/internal/benchmark"
	"github.com/JakeFAU/scrapebench/internal/clock/system"
	"github.com/JakeFAU/scrapebench/internal/config"
	"github.com/JakeFAU/scrapebench/internal/dispatcher"
	pubsubdispatch "github.com/JakeFAU/scrapebench/internal/dispatcher/pubsub"
	"github.com/JakeFAU/scrapebench/internal/executor"
	"github.com/JakeFAU/scrapebench/internal/id/uuid"
	"github.com/JakeFAU/scrapebench/internal/logging"
	"github.com/JakeFAU/scrapebench/internal/metrics"
	gcppublisher "github.com/JakeFAU/scrapebench/internal/publisher/pubsub"
	queueMemory "github.com/JakeFAU/scrapebench/internal/queue/memory"
	"github.com/JakeFAU/scrapebench/internal/scrape"
	"github.com/JakeFAU/scrapebench/internal/worker"
)

// App contains the application's dependencies.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	orchestrator *benchmark.Orchestrator
	apiServer    *api.Server

	// in-process backend
	queue    *queueMemory.Queue
	dispatch *dispatcher.Dispatcher
	workers  []*worker.Worker

	// pubsub backend
	remoteClient *pubsubdispatch.Client

	infra
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(logging.Options{Development: cfg.Logging.Development, Level: cfg.Logging.Level})
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	app := &App{cfg: cfg, logger: logger}
	app.infra.logger = logger
	logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("search_provider", cfg.Search.Provider),
		zap.String("dispatch_backend", cfg.Dispatch.Backend),
		zap.String("host_id", cfg.Dispatch.HostID),
	)

	if err := app.setupTelemetry(ctx, cfg); err != nil {
		return nil, app.abort(err)
	}
	emitter, err := app.setupProgress(cfg)
	if err != nil {
		return nil, app.abort(err)
	}
	extractor, fetcher, err := app.setupExtractor(cfg)
	if err != nil {
		return nil, app.abort(err)
	}
	searcher, err := setupSearcher(cfg, fetcher, logger)
	if err != nil {
		return nil, app.abort(err)
	}

	clock := system.New()
	ids := uuid.New()
	opts := []executor.Option{
		executor.WithClock(clock),
		executor.WithIDGenerator(ids),
		executor.WithEmitter(emitter),
		executor.WithLogger(logger),
	}
	local, err := executor.NewLocal(searcher, extractor, executor.LocalConfig{
		HostID:      cfg.Dispatch.HostID,
		SearchLimit: cfg.Search.Limit,
	}, opts...)
	if err != nil {
		return nil, app.abort(fmt.Errorf("local executor init failed: %w", err))
	}

	remote, checks, err := app.setupRemote(ctx, cfg, local, ids, clock)
	if err != nil {
		return nil, app.abort(err)
	}
	distributed, err := executor.NewDistributed(searcher, remote, executor.DistributedConfig{
		BatchSize:   cfg.Executor.BatchSize,
		SearchLimit: cfg.Search.Limit,
	}, opts...)
	if err != nil {
		return nil, app.abort(fmt.Errorf("distributed executor init failed: %w", err))
	}

	app.orchestrator = benchmark.New(local, distributed, benchmark.Config{
		ParallelConcurrency: cfg.Executor.ParallelConcurrency,
		ThreadsPerWorker:    cfg.Executor.ThreadsPerWorker,
	}, logger)
	app.apiServer = api.NewServer(app.orchestrator, cfg, logger, checks...)
	return app, nil
}

func (a *App) setupRemote(
	ctx context.Context,
	cfg config.Config,
	local *executor.Local,
	ids scrape.IDGenerator,
	clock scrape.Clock,
) (scrape.Remote, []api.Check, error) {
	switch cfg.Dispatch.Backend {
	case config.DispatchBackendPubSub:
		client, publisher, err := a.setupPubSub(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		a.remoteClient = pubsubdispatch.NewClient(publisher, ids, clock, pubsubdispatch.ClientConfig{
			TaskTopic:     cfg.PubSub.TaskTopic,
			ResultTimeout: cfg.ResultTimeout(),
		}, a.logger)
		check := api.Check{Name: "pubsub", Probe: func(ctx context.Context) error {
			return gcppublisher.VerifyTopic(ctx, client, cfg.PubSub.ProjectID, cfg.PubSub.TaskTopic)
		}}
		a.logger.Info("using pubsub dispatch",
			zap.String("task_topic", cfg.PubSub.TaskTopic),
			zap.String("result_subscription", cfg.PubSub.ResultSubscription),
		)
		return a.remoteClient, []api.Check{check}, nil
	default:
		a.queue = queueMemory.NewQueue(cfg.Dispatch.QueueDepth)
		a.dispatch = dispatcher.New(a.queue, ids, clock, a.logger)
		retry := worker.NewExponentialRetryPolicy(cfg.Dispatch.MaxAttempts)
		for i := range cfg.Dispatch.Workers {
			name := fmt.Sprintf("%s-unit-%d", cfg.Dispatch.HostID, i)
			a.workers = append(a.workers, worker.New(name, local, retry, a.logger))
		}
		a.logger.Info("using in-process dispatch",
			zap.Int("workers", len(a.workers)),
			zap.Int("queue_depth", cfg.Dispatch.QueueDepth),
		)
		return a.dispatch, nil, nil
	}
}

// Orchestrator exposes the comparison entry point.
func (a *App) Orchestrator() *benchmark.Orchestrator {
	return a.orchestrator
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// start launches the dispatch backend. The returned function stops it and
// waits for it to exit.
func (a *App) start(ctx context.Context) func() {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	if a.dispatch != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.logger.Info("dispatcher started")
			a.dispatch.Run(ctx, a.workers)
		}()
	}
	if a.remoteClient != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := gcppublisher.Receive(ctx, a.pubsubClient, a.cfg.PubSub.ResultSubscription, a.remoteClient.HandleResult, a.logger)
			if err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("result receiver stopped", zap.Error(err))
			}
			a.remoteClient.Close()
		}()
	}
	return func() {
		cancel()
		wg.Wait()
	}
}

// Compare runs one comparison with the dispatch backend running.
func (a *App) Compare(ctx context.Context, query string) (benchmark.Report, error) {
	stop := a.start(ctx)
	defer stop()
	report, err := a.orchestrator.Compare(ctx, query)
	if err != nil {
		return benchmark.Report{}, fmt.Errorf("compare: %w", err)
	}
	return report, nil
}

// Run serves the HTTP API and blocks until the context is canceled or a
// termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stopBackend := a.start(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	stopBackend()
	return a.Close(shutdownCtx)
}

// Handler returns the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Close gracefully shuts down the application.
func (a *App) Close(ctx context.Context) error {
	if a.queue != nil {
		a.queue.Close()
	}
	a.infra.close(ctx)
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) abort(err error) error {
	a.infra.close(context.Background())
	return err
}
