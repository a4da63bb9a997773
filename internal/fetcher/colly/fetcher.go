// Package collyfetcher implements scrape.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/scrapebench/internal/scrape"
)

const defaultTimeout = 15 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
}

// Fetcher performs one GET per call. Calls only share the connection pool;
// each gets its own collector and http.Client, so concurrent fetches never
// see another request's timeout or robots state.
type Fetcher struct {
	cfg       Config
	transport http.RoundTripper
}

// collectorHooks is the part of *colly.Collector a capture registers on.
type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Fetcher{cfg: cfg, transport: newHTTPTransport()}
}

// Fetch GETs request.URL. Non-2xx statuses come back from colly as errors.
// Cancelling ctx aborts the in-flight request.
func (f *Fetcher) Fetch(ctx context.Context, request scrape.FetchRequest) (scrape.FetchResponse, error) {
	c := &capture{request: request, start: time.Now()}
	collector, probe := f.collector(ctx, request)
	c.attach(collector)

	err := collector.Visit(request.URL)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return scrape.FetchResponse{}, fmt.Errorf("colly fetch canceled: %w", ctxErr)
	}
	if err != nil {
		return scrape.FetchResponse{}, fmt.Errorf("colly visit failed: %w", err)
	}
	if c.err != nil {
		return scrape.FetchResponse{}, fmt.Errorf("colly response failed: %w", c.err)
	}
	probe.annotate(&c.resp)
	return c.resp, nil
}

// collector builds the collector for one request. robots.txt is cached per
// collector, so honoring it costs one extra GET per page. The returned probe
// is nil unless robots.txt is honored.
func (f *Fetcher) collector(ctx context.Context, request scrape.FetchRequest) (*colly.Collector, *robotsProbe) {
	collector := colly.NewCollector(colly.Async(false))
	collector.Context = ctx
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)

	respect := f.cfg.RespectRobots
	if request.RespectRobotsProvided {
		respect = request.RespectRobots
	}
	collector.IgnoreRobotsTxt = !respect
	if !respect {
		collector.WithTransport(f.transport)
		return collector, nil
	}
	probe := &robotsProbe{}
	collector.WithTransport(probe.wrap(f.transport))
	return collector, probe
}

// capture records what one visit produced.
type capture struct {
	request scrape.FetchRequest
	start   time.Time
	resp    scrape.FetchResponse
	err     error
}

func (c *capture) attach(hooks collectorHooks) {
	hooks.OnRequest(func(r *colly.Request) {
		for key, values := range c.request.Headers {
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})
	hooks.OnResponse(func(r *colly.Response) {
		c.resp = scrape.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(c.start),
		}
	})
	hooks.OnError(func(_ *colly.Response, err error) {
		c.err = err
	})
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
	}
}
