// Package metrics exposes Prometheus collectors for the scrapebench service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesTotal                 *prometheus.CounterVec
	bytesTotal                 *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	robotsTLSTimeoutTotal      prometheus.Counter
	runsTotal                  *prometheus.CounterVec
	runDurationSeconds         *prometheus.HistogramVec
	tasksTotal                 *prometheus.CounterVec
	activeWorkers              prometheus.Gauge
	rateLimitDelaySeconds      *prometheus.HistogramVec
	queueDepth                 prometheus.Gauge
	pendingTasks               *prometheus.GaugeVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrapebench_pages_total",
				Help: "Total number of pages fetched, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		bytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrapebench_bytes_total",
				Help: "Total number of body bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60},
			},
			[]string{"method", "route"},
		)

		robotsTLSTimeoutTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "scrapebench_robots_tls_handshake_timeout_total",
				Help: "Total TLS handshake timeouts encountered while probing robots.txt.",
			},
		)

		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrapebench_runs_total",
				Help: "Total number of strategy runs, labeled by strategy and status.",
			},
			[]string{"strategy", "status"},
		)

		runDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scrapebench_run_duration_seconds",
				Help:    "Wall-clock duration of strategy runs, labeled by strategy.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"strategy"},
		)

		tasksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrapebench_tasks_total",
				Help: "Total number of batch task attempts, labeled by outcome.",
			},
			[]string{"status"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scrapebench_active_workers",
				Help: "Number of workers currently processing a batch task.",
			},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scrapebench_rate_limit_delay_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		queueDepth = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scrapebench_dispatch_queue_depth",
				Help: "Batch tasks waiting in the in-process queue.",
			},
		)

		pendingTasks = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "scrapebench_dispatch_pending_tasks",
				Help: "Submitted batch tasks still awaiting a result, labeled by dispatch backend.",
			},
			[]string{"backend"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePage records one page fetch outcome.
func ObservePage(site, status string, bytesFetched int) {
	if pagesTotal == nil {
		return
	}
	sanitized := SanitizeSite(site)
	pagesTotal.WithLabelValues(sanitized, status).Inc()
	if bytesFetched > 0 {
		bytesTotal.WithLabelValues(sanitized).Add(float64(bytesFetched))
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRobotsTLSTimeout increments the robots.txt handshake timeout counter.
func ObserveRobotsTLSTimeout() {
	if robotsTLSTimeoutTotal == nil {
		return
	}
	robotsTLSTimeoutTotal.Inc()
}

// ObserveRun records a finished strategy run.
func ObserveRun(strategy, status string, elapsed time.Duration) {
	if runsTotal == nil {
		return
	}
	runsTotal.WithLabelValues(strategy, status).Inc()
	runDurationSeconds.WithLabelValues(strategy).Observe(elapsed.Seconds())
}

// ObserveTask increments the task counter for the given outcome.
func ObserveTask(status string) {
	if tasksTotal == nil {
		return
	}
	tasksTotal.WithLabelValues(status).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	if activeWorkers == nil {
		return
	}
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	if activeWorkers == nil {
		return
	}
	activeWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	if rateLimitDelaySeconds == nil {
		return
	}
	rateLimitDelaySeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// SetQueueDepth records how many tasks wait in the in-process queue.
func SetQueueDepth(n int) {
	if queueDepth == nil {
		return
	}
	queueDepth.Set(float64(n))
}

// SetPendingTasks records how many tasks backend is still waiting on.
func SetPendingTasks(backend string, n int) {
	if pendingTasks == nil {
		return
	}
	pendingTasks.WithLabelValues(backend).Set(float64(n))
}
