// Package config loads and validates scrapebench configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Search providers.
const (
	SearchProviderGoogle = "google"
	SearchProviderStatic = "static"
)

// Dispatch backends.
const (
	DispatchBackendLocal  = "local"
	DispatchBackendPubSub = "pubsub"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Search    SearchConfig    `mapstructure:"search"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Executor  ExecutorConfig  `mapstructure:"executor"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Progress  ProgressConfig  `mapstructure:"progress"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// SearchConfig selects and configures the search collaborator.
type SearchConfig struct {
	Provider   string       `mapstructure:"provider"`
	Limit      int          `mapstructure:"limit"`
	Google     GoogleConfig `mapstructure:"google"`
	StaticURLs []string     `mapstructure:"static_urls"`
}

// GoogleConfig holds Custom Search JSON API credentials.
type GoogleConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	APIKey   string `mapstructure:"api_key"`
	CSEID    string `mapstructure:"cse_id"`
}

// HTTPConfig configures the page fetcher.
type HTTPConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
	RespectRobots  bool   `mapstructure:"respect_robots"`
}

// HeadlessConfig configures the headless rendering fallback.
type HeadlessConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	MaxParallel     int  `mapstructure:"max_parallel"`
	NavTimeoutSec   int  `mapstructure:"nav_timeout_seconds"`
	PromotionThresh int  `mapstructure:"promotion_threshold"`
}

// RateLimitConfig configures per-domain throttling of page fetches.
type RateLimitConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	DefaultRPS   float64 `mapstructure:"default_rps"`
	DefaultBurst int     `mapstructure:"default_burst"`
}

// ExecutorConfig holds the strategy parameters used by comparisons.
type ExecutorConfig struct {
	ParallelConcurrency int `mapstructure:"parallel_concurrency"`
	ThreadsPerWorker    int `mapstructure:"threads_per_worker"`
	BatchSize           int `mapstructure:"batch_size"`
}

// DispatchConfig configures the remote dispatch capability.
type DispatchConfig struct {
	Backend             string `mapstructure:"backend"`
	Workers             int    `mapstructure:"workers"`
	QueueDepth          int    `mapstructure:"queue_depth"`
	MaxAttempts         int    `mapstructure:"max_attempts"`
	HostID              string `mapstructure:"host_id"`
	ResultTimeoutSecond int    `mapstructure:"result_timeout_seconds"`
}

// PubSubConfig names the Pub/Sub resources used by the pubsub backend.
type PubSubConfig struct {
	ProjectID          string `mapstructure:"project_id"`
	TaskTopic          string `mapstructure:"task_topic"`
	TaskSubscription   string `mapstructure:"task_subscription"`
	ResultTopic        string `mapstructure:"result_topic"`
	ResultSubscription string `mapstructure:"result_subscription"`
}

// ProgressConfig controls the progress event hub.
type ProgressConfig struct {
	Enabled       bool        `mapstructure:"enabled"`
	LogEnabled    bool        `mapstructure:"log_enabled"`
	BufferSize    int         `mapstructure:"buffer_size"`
	SinkTimeoutMs int         `mapstructure:"sink_timeout_ms"`
	Batch         BatchConfig `mapstructure:"batch"`
}

// BatchConfig tunes progress hub batching.
type BatchConfig struct {
	MaxEvents int `mapstructure:"max_events"`
	MaxWaitMs int `mapstructure:"max_wait_ms"`
}

// TelemetryConfig toggles OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SCRAPEBENCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Dispatch.HostID == "" {
		cfg.Dispatch.HostID = hostname()
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 300)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("search.provider", SearchProviderGoogle)
	v.SetDefault("search.limit", 10)
	v.SetDefault("search.google.endpoint", "https://www.googleapis.com/customsearch/v1")
	v.SetDefault("http.timeout_seconds", 10)
	v.SetDefault("http.user_agent", "scrapebench/0.1")
	v.SetDefault("http.respect_robots", false)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("headless.promotion_threshold", 2048)
	v.SetDefault("ratelimit.enabled", false)
	v.SetDefault("ratelimit.default_rps", 2.0)
	v.SetDefault("ratelimit.default_burst", 2)
	v.SetDefault("executor.parallel_concurrency", 5)
	v.SetDefault("executor.threads_per_worker", 4)
	v.SetDefault("executor.batch_size", 5)
	v.SetDefault("dispatch.backend", DispatchBackendLocal)
	v.SetDefault("dispatch.workers", 4)
	v.SetDefault("dispatch.queue_depth", 64)
	v.SetDefault("dispatch.max_attempts", 3)
	v.SetDefault("dispatch.result_timeout_seconds", 300)
	v.SetDefault("progress.enabled", false)
	v.SetDefault("progress.log_enabled", true)
	v.SetDefault("progress.buffer_size", 4096)
	v.SetDefault("progress.sink_timeout_ms", 10000)
	v.SetDefault("progress.batch.max_events", 1000)
	v.SetDefault("progress.batch.max_wait_ms", 500)
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "scrapebench")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return errors.New("server.port must be > 0")
	}
	if c.Server.RequestTimeoutSeconds <= 0 {
		return errors.New("server.request_timeout_seconds must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return errors.New("auth.api_key must be set when auth is enabled")
	}
	if err := c.validateSearch(); err != nil {
		return err
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return errors.New("http.timeout_seconds must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return errors.New("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Executor.ParallelConcurrency <= 0 {
		return errors.New("executor.parallel_concurrency must be > 0")
	}
	if c.Executor.ThreadsPerWorker <= 0 {
		return errors.New("executor.threads_per_worker must be > 0")
	}
	if c.Executor.BatchSize <= 0 {
		return errors.New("executor.batch_size must be > 0")
	}
	return c.validateDispatch()
}

func (c Config) validateSearch() error {
	if c.Search.Limit <= 0 {
		return errors.New("search.limit must be > 0")
	}
	switch c.Search.Provider {
	case SearchProviderGoogle:
		if c.Search.Google.APIKey == "" || c.Search.Google.CSEID == "" {
			return errors.New("search.google.api_key and search.google.cse_id must be set for the google provider")
		}
	case SearchProviderStatic:
	default:
		return fmt.Errorf("unknown search.provider %q", c.Search.Provider)
	}
	return nil
}

func (c Config) validateDispatch() error {
	if c.Dispatch.MaxAttempts <= 0 {
		return errors.New("dispatch.max_attempts must be > 0")
	}
	switch c.Dispatch.Backend {
	case DispatchBackendLocal:
		if c.Dispatch.Workers <= 0 {
			return errors.New("dispatch.workers must be > 0")
		}
		if c.Dispatch.QueueDepth <= 0 {
			return errors.New("dispatch.queue_depth must be > 0")
		}
	case DispatchBackendPubSub:
		if c.PubSub.ProjectID == "" || c.PubSub.TaskTopic == "" || c.PubSub.ResultSubscription == "" {
			return errors.New("pubsub.project_id, pubsub.task_topic and pubsub.result_subscription must be set")
		}
		if c.Dispatch.ResultTimeoutSecond <= 0 {
			return errors.New("dispatch.result_timeout_seconds must be > 0")
		}
	default:
		return fmt.Errorf("unknown dispatch.backend %q", c.Dispatch.Backend)
	}
	return nil
}

// FetchTimeout converts http.timeout_seconds into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// RequestTimeout bounds a single API request, which runs all three strategies.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// ResultTimeout bounds how long the pubsub backend waits for one batch result.
func (c Config) ResultTimeout() time.Duration {
	return time.Duration(c.Dispatch.ResultTimeoutSecond) * time.Second
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "localhost"
	}
	return name
}
