package server

import (
	"context"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/scrapebench/internal/config"
	"github.com/JakeFAU/scrapebench/internal/extract"
	collyfetcher "github.com/JakeFAU/scrapebench/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/scrapebench/internal/fetcher/headless"
	"github.com/JakeFAU/scrapebench/internal/headless/detector"
	"github.com/JakeFAU/scrapebench/internal/policy/ratelimit"
	"github.com/JakeFAU/scrapebench/internal/policy/simple"
	"github.com/JakeFAU/scrapebench/internal/progress"
	progresssinks "github.com/JakeFAU/scrapebench/internal/progress/sinks"
	gcppublisher "github.com/JakeFAU/scrapebench/internal/publisher/pubsub"
	"github.com/JakeFAU/scrapebench/internal/scrape"
	"github.com/JakeFAU/scrapebench/internal/search/google"
	"github.com/JakeFAU/scrapebench/internal/search/static"
	"github.com/JakeFAU/scrapebench/internal/telemetry"
)

// infra holds the closeable resources shared by the server and worker
// processes.
type infra struct {
	logger         *zap.Logger
	pubsubClient   *pubsub.Client
	publisher      *gcppublisher.Publisher
	progressHub    *progress.Hub
	headless       *headlessfetcher.Fetcher
	tracerShutdown func(context.Context) error
}

func (i *infra) setupTelemetry(ctx context.Context, cfg config.Config) error {
	if !cfg.Telemetry.Enabled {
		return nil
	}
	tp, err := telemetry.InitTracerProvider(ctx, cfg.Telemetry.ServiceName)
	if err != nil {
		return fmt.Errorf("tracer init failed: %w", err)
	}
	i.tracerShutdown = tp.Shutdown
	i.logger.Info("tracing enabled", zap.String("service_name", cfg.Telemetry.ServiceName))
	return nil
}

func (i *infra) setupProgress(cfg config.Config) (progress.Emitter, error) {
	if !cfg.Progress.Enabled {
		i.logger.Info("progress tracking disabled")
		return progress.Nop{}, nil
	}
	promSink, err := progresssinks.NewPrometheusSink(nil)
	if err != nil {
		return nil, fmt.Errorf("progress prometheus sink init failed: %w", err)
	}
	sinkList := []progress.Sink{promSink}
	if cfg.Progress.LogEnabled {
		sinkList = append(sinkList, progresssinks.NewLogSink(i.logger.Named("progress_log")))
		i.logger.Debug("Added progress log sink")
	}
	hubCfg := progress.Config{
		BufferSize:     cfg.Progress.BufferSize,
		MaxBatchEvents: cfg.Progress.Batch.MaxEvents,
		MaxBatchWait:   time.Duration(cfg.Progress.Batch.MaxWaitMs) * time.Millisecond,
		SinkTimeout:    time.Duration(cfg.Progress.SinkTimeoutMs) * time.Millisecond,
		Logger:         i.logger.Named("progress_hub"),
	}
	i.progressHub = progress.NewHub(hubCfg, sinkList...)
	i.logger.Info("progress hub initialized",
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
		zap.Duration("sink_timeout", hubCfg.SinkTimeout),
	)
	return i.progressHub, nil
}

// setupExtractor builds the page extractor and returns the plain HTTP
// fetcher too, which the search client reuses.
func (i *infra) setupExtractor(cfg config.Config) (*extract.Extractor, scrape.Fetcher, error) {
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.HTTP.UserAgent,
		RespectRobots: cfg.HTTP.RespectRobots,
		Timeout:       cfg.FetchTimeout(),
	})
	i.logger.Info("using colly fetcher", zap.String("user_agent", cfg.HTTP.UserAgent))

	opts := []extract.Option{
		extract.WithRobots(cfg.HTTP.RespectRobots),
		extract.WithLogger(i.logger),
	}
	if cfg.Headless.Enabled {
		hf, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.HTTP.UserAgent,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("headless fetcher init failed: %w", err)
		}
		i.headless = hf
		opts = append(opts, extract.WithHeadless(hf, detector.NewHeuristic(cfg.Headless.PromotionThresh)))
		i.logger.Info("using headless fetcher", zap.Int("max_parallel", cfg.Headless.MaxParallel))
	}

	if cfg.RateLimit.Enabled {
		opts = append(opts, extract.WithPolicy(ratelimit.New(ratelimit.Config{
			DefaultRPS:   cfg.RateLimit.DefaultRPS,
			DefaultBurst: cfg.RateLimit.DefaultBurst,
		})))
		i.logger.Info("rate limiter enabled",
			zap.Float64("default_rps", cfg.RateLimit.DefaultRPS),
			zap.Int("default_burst", cfg.RateLimit.DefaultBurst),
		)
	} else {
		opts = append(opts, extract.WithPolicy(simple.New()))
		i.logger.Info("rate limiter disabled, using simple policy")
	}
	return extract.New(fetcher, opts...), fetcher, nil
}

func setupSearcher(cfg config.Config, fetcher scrape.Fetcher, logger *zap.Logger) (scrape.Searcher, error) {
	switch cfg.Search.Provider {
	case config.SearchProviderStatic:
		logger.Info("using static search provider", zap.Int("urls", len(cfg.Search.StaticURLs)))
		return static.New(cfg.Search.StaticURLs), nil
	default:
		searcher, err := google.New(google.Config{
			Endpoint: cfg.Search.Google.Endpoint,
			APIKey:   cfg.Search.Google.APIKey,
			CSEID:    cfg.Search.Google.CSEID,
		}, fetcher, logger)
		if err != nil {
			return nil, fmt.Errorf("google search init failed: %w", err)
		}
		logger.Info("using google search provider", zap.String("endpoint", cfg.Search.Google.Endpoint))
		return searcher, nil
	}
}

func (i *infra) setupPubSub(ctx context.Context, cfg config.Config) (*pubsub.Client, *gcppublisher.Publisher, error) {
	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	i.pubsubClient = client
	i.publisher = gcppublisher.New(client)
	i.logger.Info("Pub/Sub client initialized", zap.String("project", cfg.PubSub.ProjectID))
	return client, i.publisher, nil
}

func (i *infra) close(ctx context.Context) {
	if i.progressHub != nil {
		if err := i.progressHub.Close(ctx); err != nil {
			i.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if i.publisher != nil {
		i.publisher.Stop()
	}
	if i.pubsubClient != nil {
		if err := i.pubsubClient.Close(); err != nil {
			i.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if i.headless != nil {
		i.headless.Close()
	}
	if err := i.logger.Sync(); err != nil {
		i.logger.Debug("logger sync failed", zap.Error(err))
	}
	if i.tracerShutdown != nil {
		if err := i.tracerShutdown(ctx); err != nil {
			i.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
}
