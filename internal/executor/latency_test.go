package executor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSummarizeEmpty(t *testing.T) {
	t.Parallel()

	require.Zero(t, Summarize(nil))
}

func TestSummarizePercentiles(t *testing.T) {
	t.Parallel()

	durations := make([]time.Duration, 0, 100)
	for i := 1; i <= 100; i++ {
		durations = append(durations, time.Duration(i)*time.Millisecond)
	}
	s := Summarize(durations)
	require.Equal(t, int64(100), s.Count)
	require.InDelta(t, 50, s.P50Ms, 0.5)
	require.InDelta(t, 95, s.P95Ms, 0.5)
	require.InDelta(t, 99, s.P99Ms, 0.5)
	require.InDelta(t, 100, s.MaxMs, 0.5)
}

func TestSummarizeClampsOutliers(t *testing.T) {
	t.Parallel()

	s := Summarize([]time.Duration{0, time.Hour})
	require.Equal(t, int64(2), s.Count)
	require.InDelta(t, float64(10*time.Minute/time.Millisecond), s.MaxMs, 600)
}
