package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/scrapebench/internal/benchmark"
	"github.com/JakeFAU/scrapebench/internal/scrape"
)

func writeConfig(t *testing.T, urls ...string) string {
	t.Helper()
	body := "logging:\n  level: error\nsearch:\n  provider: static\n  static_urls:\n"
	for _, u := range urls {
		body += fmt.Sprintf("    - %s\n", u)
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCompareCommandJSON(t *testing.T) {
	t.Parallel()

	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, "<html><body>hello@%s.example</body></html>", r.URL.Path[1:])
	}))
	t.Cleanup(site.Close)

	cfg := writeConfig(t, site.URL+"/alpha", site.URL+"/beta", site.URL+"/gamma")
	out, err := run(t, "--config", cfg, "compare", "--query", "acme", "--json")
	require.NoError(t, err)

	var report map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Equal(t, "acme", report["query"])
	results := report["results"].(map[string]any)
	linear := results["linear"].(map[string]any)
	require.Equal(t, []any{"hello@alpha.example", "hello@beta.example", "hello@gamma.example"}, linear["emails_found"])
	require.Contains(t, report["comparison"], "speedup_factors")
}

func TestCompareCommandRequiresQuery(t *testing.T) {
	t.Parallel()

	_, err := run(t, "--config", writeConfig(t), "compare")
	require.ErrorContains(t, err, "query")
}

func TestRootCommandRejectsBadConfig(t *testing.T) {
	t.Parallel()

	_, err := run(t, "--config", filepath.Join(t.TempDir(), "absent.yaml"), "compare", "--query", "x")
	require.ErrorContains(t, err, "load config")
}

func TestWorkerHelpDescribesTaskThreads(t *testing.T) {
	t.Parallel()

	help := newWorkerCmd().Long
	require.Contains(t, help, "threads value carried in the task")
	require.NotContains(t, help, "threads_per_worker")
}

func TestPrintReport(t *testing.T) {
	t.Parallel()

	results := benchmark.Results{
		Linear:              scrape.ExecutionReport{Elapsed: 3 * time.Second, PagesScraped: 7, EmailsFound: []string{"a@b.example"}},
		Parallel:            scrape.ExecutionReport{Elapsed: time.Second, PagesScraped: 7},
		DistributedParallel: scrape.ExecutionReport{PagesScraped: 7},
	}
	report := benchmark.Report{Query: "acme", Results: results, Comparison: benchmark.Compute(results)}

	var out bytes.Buffer
	require.NoError(t, printReport(&out, report))
	text := out.String()
	require.Contains(t, text, "Query: acme")
	require.Contains(t, text, "STRATEGY")
	require.Contains(t, text, "3.00x")
	require.Contains(t, text, "undefined")
	require.Contains(t, text, "warning: speedup_factors.distributed_vs_linear")
}
