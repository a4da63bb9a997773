package benchmark

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/scrapebench/internal/dispatcher"
	"github.com/JakeFAU/scrapebench/internal/executor"
	"github.com/JakeFAU/scrapebench/internal/queue/memory"
	"github.com/JakeFAU/scrapebench/internal/scrape"
	"github.com/JakeFAU/scrapebench/internal/search/static"
	"github.com/JakeFAU/scrapebench/internal/worker"
)

func report(strategy scrape.Strategy, elapsed time.Duration, pages int) scrape.ExecutionReport {
	return scrape.ExecutionReport{
		Elapsed:      elapsed,
		PagesScraped: pages,
		EmailsFound:  []string{"info@acme.example"},
		ProcessingInfo: scrape.ProcessingInfo{
			Type:           strategy,
			MachinesUsed:   1,
			MachineDetails: []scrape.MachineDetail{{Hostname: "bench", Threads: 1, URLsProcessed: pages}},
		},
	}
}

type fakeLocal struct {
	mu          sync.Mutex
	calls       []string
	linear      scrape.ExecutionReport
	parallel    scrape.ExecutionReport
	concurrency int
}

func (f *fakeLocal) RunSequential(_ context.Context, query string) (scrape.ExecutionReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "linear:"+query)
	return f.linear, nil
}

func (f *fakeLocal) RunPooled(_ context.Context, query string, concurrency int) (scrape.ExecutionReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "parallel:"+query)
	f.concurrency = concurrency
	return f.parallel, nil
}

type fakeDistributed struct {
	report  scrape.ExecutionReport
	err     error
	threads int
	calls   int
}

func (f *fakeDistributed) Run(_ context.Context, _ string, threads int) (scrape.ExecutionReport, error) {
	f.calls++
	f.threads = threads
	return f.report, f.err
}

func TestCompareComputesSpeedups(t *testing.T) {
	t.Parallel()

	local := &fakeLocal{
		linear:   report(scrape.StrategyLinear, 4*time.Second, 12),
		parallel: report(scrape.StrategyParallel, 2*time.Second, 12),
	}
	dist := &fakeDistributed{report: report(scrape.StrategyDistributed, time.Second, 12)}
	o := New(local, dist, Config{}, nil)

	got, err := o.Compare(context.Background(), "  acme  ")
	require.NoError(t, err)
	require.Equal(t, "acme", got.Query)
	require.Equal(t, []string{"linear:acme", "parallel:acme"}, local.calls)
	require.Equal(t, DefaultParallelConcurrency, local.concurrency)
	require.Equal(t, DefaultThreadsPerWorker, dist.threads)

	sf := got.Comparison.SpeedupFactors
	require.Equal(t, Ratio{Value: 2, Defined: true}, sf.ParallelVsLinear)
	require.Equal(t, Ratio{Value: 4, Defined: true}, sf.DistributedVsLinear)
	require.Equal(t, Ratio{Value: 2, Defined: true}, sf.DistributedVsParallel)
	require.Empty(t, got.Comparison.Warnings)
	require.Equal(t, ExecutionTimes{Linear: 4, Parallel: 2, Distributed: 1}, got.Comparison.ExecutionTimes)
	require.Equal(t, scrape.StrategyDistributed, got.Comparison.ResourceUtilization.Distributed.Type)

	got.Comparison.ResourceUtilization.Linear.MachineDetails[0].Hostname = "mutated"
	require.Equal(t, "bench", got.Results.Linear.ProcessingInfo.MachineDetails[0].Hostname)
}

func TestCompareZeroElapsedIsUndefined(t *testing.T) {
	t.Parallel()

	local := &fakeLocal{
		linear:   report(scrape.StrategyLinear, 3*time.Second, 0),
		parallel: report(scrape.StrategyParallel, 0, 0),
	}
	dist := &fakeDistributed{report: scrape.ExecutionReport{Elapsed: 1500 * time.Millisecond}}
	o := New(local, dist, Config{ParallelConcurrency: 3, ThreadsPerWorker: 2}, nil)

	got, err := o.Compare(context.Background(), "empty")
	require.NoError(t, err)
	require.Equal(t, 3, local.concurrency)
	require.Equal(t, 2, dist.threads)
	require.False(t, got.Comparison.SpeedupFactors.ParallelVsLinear.Defined)
	require.True(t, got.Comparison.SpeedupFactors.DistributedVsLinear.Defined)
	require.InDelta(t, 0.0, got.Comparison.SpeedupFactors.DistributedVsParallel.Value, 1e-9)
	require.Len(t, got.Comparison.Warnings, 1)
	require.Contains(t, got.Comparison.Warnings[0], "parallel_vs_linear")
	require.Contains(t, got.Comparison.Warnings[0], "division by zero")

	data, err := json.Marshal(got)
	require.NoError(t, err)
	require.Contains(t, string(data), `"parallel_vs_linear":"undefined"`)
	require.Contains(t, string(data), `"distributed_vs_linear":2`)
	require.Contains(t, string(data), `"machine_details":[]`)
}

func TestCompareRejectsEmptyQuery(t *testing.T) {
	t.Parallel()

	local := &fakeLocal{}
	dist := &fakeDistributed{}
	o := New(local, dist, Config{}, nil)
	for _, q := range []string{"", "   ", "\t\n"} {
		_, err := o.Compare(context.Background(), q)
		require.ErrorIs(t, err, scrape.ErrInvalidArgument)
		require.ErrorContains(t, err, "Query is required")
	}
	require.Empty(t, local.calls)
	require.Zero(t, dist.calls)
}

func TestCompareFailsOnTaskFailure(t *testing.T) {
	t.Parallel()

	local := &fakeLocal{
		linear:   report(scrape.StrategyLinear, time.Second, 12),
		parallel: report(scrape.StrategyParallel, time.Second, 12),
	}
	dist := &fakeDistributed{err: fmt.Errorf("%w: batch 2", scrape.ErrTaskFailed)}
	got, err := New(local, dist, Config{}, nil).Compare(context.Background(), "acme")
	require.ErrorIs(t, err, scrape.ErrTaskFailed)
	require.Equal(t, Report{}, got)
}

func TestRatioJSON(t *testing.T) {
	t.Parallel()

	var r Ratio
	require.NoError(t, json.Unmarshal([]byte(`"undefined"`), &r))
	require.False(t, r.Defined)
	require.NoError(t, json.Unmarshal([]byte(`1.5`), &r))
	require.Equal(t, Ratio{Value: 1.5, Defined: true}, r)
	require.Error(t, json.Unmarshal([]byte(`"fast"`), &r))
	require.Equal(t, "1.50x", r.String())
	require.Equal(t, Undefined, Ratio{}.String())

	_, err := Speedup(time.Second, 0)
	require.ErrorIs(t, err, scrape.ErrDivisionByZero)
}

// pageExtractor returns one address per page and fails pages containing "broken".
type pageExtractor struct{}

func (pageExtractor) Extract(_ context.Context, url string) ([]string, error) {
	if strings.Contains(url, "broken") {
		return nil, fmt.Errorf("%w: %s: connection reset", scrape.ErrFetchFailed, url)
	}
	host := strings.TrimPrefix(url, "https://")
	return []string{"contact@" + host}, nil
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("00000000-0000-7000-8000-%012d", s.n), nil
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

func TestCompareEndToEnd(t *testing.T) {
	t.Parallel()

	urls := []string{
		"https://acme.example", "https://broken-1.example", "https://shop.acme.example",
		"https://blog.acme.example", "https://broken-2.example", "https://jobs.acme.example",
		"https://press.acme.example",
	}
	searcher := static.New(urls)
	local, err := executor.NewLocal(searcher, pageExtractor{}, executor.LocalConfig{HostID: "bench-host"})
	require.NoError(t, err)

	queue := memory.NewQueue(4)
	dispatch := dispatcher.New(queue, &seqIDs{}, wallClock{}, nil)
	workers := []*worker.Worker{
		worker.New("unit-0", local, nil, nil),
		worker.New("unit-1", local, nil, nil),
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		dispatch.Run(ctx, workers)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	dist, err := executor.NewDistributed(searcher, dispatch, executor.DistributedConfig{})
	require.NoError(t, err)

	got, err := New(local, dist, Config{}, nil).Compare(context.Background(), "acme")
	require.NoError(t, err)

	for name, r := range map[string]scrape.ExecutionReport{
		"linear":      got.Results.Linear,
		"parallel":    got.Results.Parallel,
		"distributed": got.Results.DistributedParallel,
	} {
		require.Equal(t, 7, r.PagesScraped, name)
		require.Equal(t, 2, r.URLsFailed, name)
		require.Len(t, r.EmailsFound, 5, name)
	}
	require.Equal(t, []string{
		"contact@acme.example", "contact@shop.acme.example", "contact@blog.acme.example",
		"contact@jobs.acme.example", "contact@press.acme.example",
	}, got.Results.Linear.EmailsFound)

	distInfo := got.Results.DistributedParallel.ProcessingInfo
	require.Equal(t, 2, distInfo.MachinesUsed)
	require.Equal(t, 8, distInfo.TotalThreads)
	require.Len(t, distInfo.MachineDetails, 2)
	require.Equal(t, 5, distInfo.MachineDetails[0].URLsProcessed)
	require.Equal(t, 2, distInfo.MachineDetails[1].URLsProcessed)
	require.Equal(t, 5, got.Results.Parallel.ProcessingInfo.TotalThreads)
}

func TestCompareWrapsStrategyName(t *testing.T) {
	t.Parallel()

	local := &fakeLocal{}
	dist := &fakeDistributed{err: errors.New("boom")}
	_, err := New(local, dist, Config{}, nil).Compare(context.Background(), "q")
	require.ErrorContains(t, err, "compare distributed+parallel: boom")
}
