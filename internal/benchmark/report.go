package benchmark

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/JakeFAU/scrapebench/internal/scrape"
)

// Undefined is the JSON marker for a ratio whose denominator was zero.
const Undefined = "undefined"

// Ratio is a speedup factor that may be undefined.
type Ratio struct {
	Value   float64
	Defined bool
}

// Speedup returns numerator/denominator as a Ratio. A zero denominator
// yields an undefined Ratio and scrape.ErrDivisionByZero.
func Speedup(numerator, denominator time.Duration) (Ratio, error) {
	if denominator <= 0 {
		return Ratio{}, scrape.ErrDivisionByZero
	}
	return Ratio{Value: numerator.Seconds() / denominator.Seconds(), Defined: true}, nil
}

// String renders the ratio for terminal output.
func (r Ratio) String() string {
	if !r.Defined {
		return Undefined
	}
	return fmt.Sprintf("%.2fx", r.Value)
}

// MarshalJSON emits a number or the "undefined" marker.
func (r Ratio) MarshalJSON() ([]byte, error) {
	if !r.Defined {
		return json.Marshal(Undefined)
	}
	return json.Marshal(r.Value)
}

// UnmarshalJSON accepts a number or the "undefined" marker.
func (r *Ratio) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != Undefined {
			return fmt.Errorf("decode ratio: unexpected marker %q", s)
		}
		*r = Ratio{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("decode ratio: %w", err)
	}
	*r = Ratio{Value: v, Defined: true}
	return nil
}

// Results holds the three raw execution reports.
type Results struct {
	Linear              scrape.ExecutionReport `json:"linear"`
	Parallel            scrape.ExecutionReport `json:"parallel"`
	DistributedParallel scrape.ExecutionReport `json:"distributed_parallel"`
}

// ExecutionTimes lists elapsed seconds per strategy.
type ExecutionTimes struct {
	Linear      float64 `json:"linear"`
	Parallel    float64 `json:"parallel"`
	Distributed float64 `json:"distributed"`
}

// ResourceUtilization lists the processing info per strategy.
type ResourceUtilization struct {
	Linear      scrape.ProcessingInfo `json:"linear"`
	Parallel    scrape.ProcessingInfo `json:"parallel"`
	Distributed scrape.ProcessingInfo `json:"distributed"`
}

// SpeedupFactors are the pairwise elapsed-time ratios.
type SpeedupFactors struct {
	ParallelVsLinear      Ratio `json:"parallel_vs_linear"`
	DistributedVsLinear   Ratio `json:"distributed_vs_linear"`
	DistributedVsParallel Ratio `json:"distributed_vs_parallel"`
}

// Comparison is the derived view over Results.
type Comparison struct {
	ExecutionTimes      ExecutionTimes      `json:"execution_times"`
	ResourceUtilization ResourceUtilization `json:"resource_utilization"`
	SpeedupFactors      SpeedupFactors      `json:"speedup_factors"`
	Warnings            []string            `json:"warnings"`
}

// Report is the full response for one query.
type Report struct {
	Query      string     `json:"query"`
	Results    Results    `json:"results"`
	Comparison Comparison `json:"comparison"`
}

// Compute derives the comparison from results without modifying them.
func Compute(results Results) Comparison {
	c := Comparison{
		ExecutionTimes: ExecutionTimes{
			Linear:      results.Linear.TimeTaken(),
			Parallel:    results.Parallel.TimeTaken(),
			Distributed: results.DistributedParallel.TimeTaken(),
		},
		ResourceUtilization: ResourceUtilization{
			Linear:      utilization(results.Linear.ProcessingInfo),
			Parallel:    utilization(results.Parallel.ProcessingInfo),
			Distributed: utilization(results.DistributedParallel.ProcessingInfo),
		},
		Warnings: []string{},
	}

	ratio := func(name, denomName string, num, denom time.Duration) Ratio {
		r, err := Speedup(num, denom)
		if err != nil {
			c.Warnings = append(c.Warnings, fmt.Sprintf("speedup_factors.%s: %v (%s time is 0)", name, err, denomName))
		}
		return r
	}
	lin, par, dist := results.Linear.Elapsed, results.Parallel.Elapsed, results.DistributedParallel.Elapsed
	c.SpeedupFactors = SpeedupFactors{
		ParallelVsLinear:      ratio("parallel_vs_linear", "parallel", lin, par),
		DistributedVsLinear:   ratio("distributed_vs_linear", "distributed", lin, dist),
		DistributedVsParallel: ratio("distributed_vs_parallel", "distributed", par, dist),
	}
	return c
}

// utilization copies info so the comparison never aliases a raw report.
func utilization(info scrape.ProcessingInfo) scrape.ProcessingInfo {
	details := make([]scrape.MachineDetail, len(info.MachineDetails))
	copy(details, info.MachineDetails)
	info.MachineDetails = details
	return info
}
