package executor

import (
	"time"

	hdrhistogram "github.com/HdrHistogram/hdrhistogram-go"

	"github.com/JakeFAU/scrapebench/internal/scrape"
)

const (
	// Latencies are recorded in microseconds between 1µs and 10 minutes.
	minLatencyMicros = 1
	maxLatencyMicros = int64(10 * time.Minute / time.Microsecond)
	latencySigFigs   = 3
)

// Summarize condenses per-URL fetch latencies into percentiles.
func Summarize(durations []time.Duration) scrape.LatencySummary {
	if len(durations) == 0 {
		return scrape.LatencySummary{}
	}
	hist := hdrhistogram.New(minLatencyMicros, maxLatencyMicros, latencySigFigs)
	for _, d := range durations {
		micros := max(int64(d/time.Microsecond), minLatencyMicros)
		micros = min(micros, maxLatencyMicros)
		// In-range values never fail to record.
		_ = hist.RecordValue(micros)
	}
	return scrape.LatencySummary{
		Count: hist.TotalCount(),
		P50Ms: microsToMillis(hist.ValueAtQuantile(50)),
		P95Ms: microsToMillis(hist.ValueAtQuantile(95)),
		P99Ms: microsToMillis(hist.ValueAtQuantile(99)),
		MaxMs: microsToMillis(hist.Max()),
	}
}

func microsToMillis(v int64) float64 {
	return float64(v) / 1000
}
