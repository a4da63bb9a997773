package server

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/JakeFAU/scrapebench/internal/config"
	pubsubdispatch "github.com/JakeFAU/scrapebench/internal/dispatcher/pubsub"
	"github.com/JakeFAU/scrapebench/internal/executor"
	"github.com/JakeFAU/scrapebench/internal/logging"
	"github.com/JakeFAU/scrapebench/internal/metrics"
	gcppublisher "github.com/JakeFAU/scrapebench/internal/publisher/pubsub"
	"github.com/JakeFAU/scrapebench/internal/search/static"
	"github.com/JakeFAU/scrapebench/internal/worker"
)

// WorkerApp is a remote worker process fed by the task subscription.
type WorkerApp struct {
	cfg       config.Config
	responder *pubsubdispatch.Responder
	infra
}

// BuildWorker creates the worker process dependencies. It requires the
// pubsub dispatch settings.
func BuildWorker(ctx context.Context, cfg config.Config) (*WorkerApp, error) {
	if cfg.PubSub.ProjectID == "" || cfg.PubSub.TaskSubscription == "" || cfg.PubSub.ResultTopic == "" {
		return nil, errors.New("worker requires pubsub.project_id, pubsub.task_subscription and pubsub.result_topic")
	}
	logger, err := logging.New(logging.Options{Development: cfg.Logging.Development, Level: cfg.Logging.Level})
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	app := &WorkerApp{cfg: cfg}
	app.infra.logger = logger

	if err := app.setupTelemetry(ctx, cfg); err != nil {
		return nil, app.abort(err)
	}
	emitter, err := app.setupProgress(cfg)
	if err != nil {
		return nil, app.abort(err)
	}
	extractor, _, err := app.setupExtractor(cfg)
	if err != nil {
		return nil, app.abort(err)
	}
	// Workers receive resolved URLs, so the searcher is never called.
	local, err := executor.NewLocal(static.New(nil), extractor, executor.LocalConfig{HostID: cfg.Dispatch.HostID},
		executor.WithEmitter(emitter),
		executor.WithLogger(logger),
	)
	if err != nil {
		return nil, app.abort(fmt.Errorf("local executor init failed: %w", err))
	}
	if _, _, err := app.setupPubSub(ctx, cfg); err != nil {
		return nil, app.abort(err)
	}
	if err := gcppublisher.VerifyTopic(ctx, app.pubsubClient, cfg.PubSub.ProjectID, cfg.PubSub.ResultTopic); err != nil {
		return nil, app.abort(err)
	}

	unit := worker.New(cfg.Dispatch.HostID, local, worker.NewExponentialRetryPolicy(cfg.Dispatch.MaxAttempts), logger)
	app.responder = pubsubdispatch.NewResponder(unit, app.publisher, cfg.PubSub.ResultTopic, logger)
	return app, nil
}

// Run receives tasks until the context is canceled or a termination signal
// arrives.
func (w *WorkerApp) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w.logger.Info("worker started",
		zap.String("host_id", w.cfg.Dispatch.HostID),
		zap.String("subscription", w.cfg.PubSub.TaskSubscription),
	)
	err := gcppublisher.Receive(ctx, w.pubsubClient, w.cfg.PubSub.TaskSubscription, w.responder.HandleTask, w.logger)
	w.close(context.Background())
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("worker receive: %w", err)
	}
	return nil
}

func (w *WorkerApp) abort(err error) error {
	w.close(context.Background())
	return err
}
