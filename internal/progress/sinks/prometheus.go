package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/scrapebench/internal/progress"
)

// PrometheusSink turns progress events into per-strategy collectors.
type PrometheusSink struct {
	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runsInFlight  prometheus.Gauge
	fetches       *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	emailsFound   *prometheus.CounterVec
	batches       *prometheus.CounterVec

	inFlight *runTracker
}

// NewPrometheusSink registers the collectors against reg, or the default registerer when nil.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scrapebench_progress_runs_started_total",
			Help: "Strategy runs started.",
		}, []string{"strategy"}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scrapebench_progress_runs_completed_total",
			Help: "Strategy runs completed partitioned by result.",
		}, []string{"strategy", "result"}),
		runsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scrapebench_progress_runs_in_flight",
			Help: "Strategy runs currently executing.",
		}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scrapebench_progress_fetches_total",
			Help: "URL fetch-and-extract completions partitioned by strategy and result.",
		}, []string{"strategy", "result"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scrapebench_progress_fetch_duration_seconds",
			Help:    "Fetch-and-extract latency per URL.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"strategy"}),
		emailsFound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scrapebench_progress_emails_found_total",
			Help: "Emails found by completed runs.",
		}, []string{"strategy"}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scrapebench_progress_batches_total",
			Help: "Distributed batches completed, partitioned by worker host.",
		}, []string{"host"}),
		inFlight: &runTracker{running: make(map[[16]byte]struct{})},
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted, s.runsCompleted, s.runsInFlight,
		s.fetches, s.fetchDuration, s.emailsFound, s.batches,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		strategy := string(evt.Strategy)
		switch evt.Stage {
		case progress.StageRunStart:
			s.runsStarted.WithLabelValues(strategy).Inc()
			if s.inFlight.start(evt.RunID) {
				s.runsInFlight.Inc()
			}
		case progress.StageRunDone, progress.StageRunError:
			result := "success"
			if evt.Stage == progress.StageRunError {
				result = "error"
			} else {
				s.emailsFound.WithLabelValues(strategy).Add(float64(evt.Emails))
			}
			s.runsCompleted.WithLabelValues(strategy, result).Inc()
			if s.inFlight.finish(evt.RunID) {
				s.runsInFlight.Dec()
			}
		case progress.StageFetchDone:
			result := "ok"
			if evt.Failed {
				result = "failed"
			}
			s.fetches.WithLabelValues(strategy, result).Inc()
			if evt.Dur > 0 {
				s.fetchDuration.WithLabelValues(strategy).Observe(evt.Dur.Seconds())
			}
		case progress.StageBatchDone:
			s.batches.WithLabelValues(evt.Host).Inc()
		}
	}
	return nil
}

// Close implements progress.Sink.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func (t *runTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) finish(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
