package extract

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/scrapebench/internal/scrape"
)

type fakeFetcher struct {
	mu       sync.Mutex
	body     string
	status   int
	err      error
	requests []scrape.FetchRequest
}

func (f *fakeFetcher) Fetch(_ context.Context, req scrape.FetchRequest) (scrape.FetchResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.err != nil {
		return scrape.FetchResponse{}, f.err
	}
	status := f.status
	if status == 0 {
		status = 200
	}
	return scrape.FetchResponse{URL: req.URL, StatusCode: status, Body: []byte(f.body)}, nil
}

type promoteAlways bool

func (p promoteAlways) ShouldPromote(scrape.FetchResponse) bool { return bool(p) }

type denyPolicy struct{}

func (denyPolicy) Wait(context.Context, string) error { return errors.New("throttled") }

func TestFromText(t *testing.T) {
	t.Parallel()

	got := FromText("mail sales@acme.example or info@acme.example, again sales@acme.example; not-an-email@ nor @foo.com")
	require.Equal(t, []string{"sales@acme.example", "info@acme.example"}, got)
	require.Empty(t, FromText("nothing here"))
	require.NotNil(t, FromText(""))
}

func TestFromHTML(t *testing.T) {
	t.Parallel()

	body := `<html><head><style>.x{}</style><script>var hidden = "js@acme.example";</script></head>
<body><p>Contact: sales@acme.example</p><p>Support</p>
<a href="mailto:support@acme.example">write us</a>
<div>sales@acme.example</div></body></html>`
	got, err := FromHTML([]byte(body))
	require.NoError(t, err)
	require.Equal(t, []string{"sales@acme.example", "support@acme.example"}, got)
}

func TestFromHTMLKeepsBlockBoundaries(t *testing.T) {
	t.Parallel()

	got, err := FromHTML([]byte(`<p>ops@acme.example</p><p>Hours</p>`))
	require.NoError(t, err)
	require.Equal(t, []string{"ops@acme.example"}, got)
}

func TestExtractWrapsFetchFailure(t *testing.T) {
	t.Parallel()

	e := New(&fakeFetcher{err: errors.New("connection refused")})
	_, err := e.Extract(context.Background(), "https://down.example")
	require.ErrorIs(t, err, scrape.ErrFetchFailed)
}

func TestExtractPolicyFailure(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{body: "<p>a@b.example</p>"}
	e := New(fetcher, WithPolicy(denyPolicy{}))
	_, err := e.Extract(context.Background(), "https://acme.example")
	require.ErrorIs(t, err, scrape.ErrFetchFailed)
	require.Empty(t, fetcher.requests)
}

func TestExtractPassesRobotsPreference(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{body: "<p>a@b.example</p>"}
	e := New(fetcher, WithRobots(true))
	emails, err := e.Extract(context.Background(), "https://acme.example")
	require.NoError(t, err)
	require.Equal(t, []string{"a@b.example"}, emails)
	require.Len(t, fetcher.requests, 1)
	require.True(t, fetcher.requests[0].RespectRobots)
	require.True(t, fetcher.requests[0].RespectRobotsProvided)
}

func TestExtractPromotesToHeadless(t *testing.T) {
	t.Parallel()

	probe := &fakeFetcher{body: `<div id="root"></div>`}
	rendered := &fakeFetcher{body: `<div id="root"><p>team@spa.example</p></div>`}
	e := New(probe, WithHeadless(rendered, promoteAlways(true)))

	emails, err := e.Extract(context.Background(), "https://spa.example")
	require.NoError(t, err)
	require.Equal(t, []string{"team@spa.example"}, emails)
	require.Len(t, rendered.requests, 1)
	require.True(t, rendered.requests[0].UseHeadless)
}

func TestExtractKeepsProbeWhenRenderFails(t *testing.T) {
	t.Parallel()

	probe := &fakeFetcher{body: `<p>probe@acme.example</p>`}
	rendered := &fakeFetcher{err: errors.New("chrome missing")}
	e := New(probe, WithHeadless(rendered, promoteAlways(true)))

	emails, err := e.Extract(context.Background(), "https://acme.example")
	require.NoError(t, err)
	require.Equal(t, []string{"probe@acme.example"}, emails)
}
