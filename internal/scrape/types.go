package scrape

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Strategy tags the execution model that produced a report.
type Strategy string

// Supported strategies.
const (
	StrategyLinear      Strategy = "linear"
	StrategyParallel    Strategy = "parallel"
	StrategyDistributed Strategy = "distributed+parallel"
)

// Batch is a contiguous slice of the search result URLs routed to one worker unit.
type Batch []string

// MachineDetail describes the work one machine (or worker unit) performed.
type MachineDetail struct {
	Hostname      string `json:"hostname"`
	Threads       int    `json:"threads"`
	URLsProcessed int    `json:"urls_processed"`
}

// ProcessingInfo is the resource utilization record of one run.
type ProcessingInfo struct {
	Type              Strategy        `json:"type"`
	MachinesUsed      int             `json:"machines_used"`
	ThreadsPerMachine int             `json:"threads_per_machine"`
	TotalThreads      int             `json:"total_threads"`
	MachineDetails    []MachineDetail `json:"machine_details"`
}

// LatencySummary condenses per-URL fetch latencies.
type LatencySummary struct {
	Count int64   `json:"count"`
	P50Ms float64 `json:"p50_ms"`
	P95Ms float64 `json:"p95_ms"`
	P99Ms float64 `json:"p99_ms"`
	MaxMs float64 `json:"max_ms"`
}

// ExecutionReport is the outcome of running one strategy against one query.
type ExecutionReport struct {
	Elapsed        time.Duration  `json:"-"`
	PagesScraped   int            `json:"pages_scraped"`
	URLsFailed     int            `json:"urls_failed"`
	EmailsFound    []string       `json:"emails_found"`
	SearchDegraded bool           `json:"search_degraded"`
	FetchLatency   LatencySummary `json:"fetch_latency"`
	ProcessingInfo ProcessingInfo `json:"processing_info"`
}

// TimeTaken returns the elapsed wall-clock time in seconds.
func (r ExecutionReport) TimeTaken() float64 {
	return r.Elapsed.Seconds()
}

// MarshalJSON renders elapsed time as seconds and never emits null lists.
func (r ExecutionReport) MarshalJSON() ([]byte, error) {
	type alias ExecutionReport
	out := alias(r)
	if out.EmailsFound == nil {
		out.EmailsFound = []string{}
	}
	if out.ProcessingInfo.MachineDetails == nil {
		out.ProcessingInfo.MachineDetails = []MachineDetail{}
	}
	data, err := json.Marshal(struct {
		TimeTaken float64 `json:"time_taken"`
		alias
	}{
		TimeTaken: r.TimeTaken(),
		alias:     out,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal execution report: %w", err)
	}
	return data, nil
}

// Task is one batch travelling to a worker unit.
type Task struct {
	ID        string    `json:"task_id"`
	URLs      Batch     `json:"urls"`
	Threads   int       `json:"threads"`
	Submitted time.Time `json:"submitted_at"`
}

// BatchResult is what a worker unit reports back for one task.
type BatchResult struct {
	TaskID         string          `json:"task_id"`
	Emails         []string        `json:"emails"`
	URLsFailed     int             `json:"urls_failed"`
	FetchDurations []time.Duration `json:"fetch_durations"`
	Info           MachineDetail   `json:"processing_info"`
}

// RobotsStatus records how robots.txt evaluation ended for a fetch.
type RobotsStatus string

// Robots evaluation outcomes.
const (
	RobotsStatusUnknown       RobotsStatus = ""
	RobotsStatusIndeterminate RobotsStatus = "indeterminate"
)

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL                   string
	Headers               http.Header
	UseHeadless           bool
	RespectRobots         bool
	RespectRobotsProvided bool
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
	RobotsStatus RobotsStatus
	RobotsReason string
}
