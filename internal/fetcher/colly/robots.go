package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/JakeFAU/scrapebench/internal/metrics"
	"github.com/JakeFAU/scrapebench/internal/scrape"
)

const reasonTLSHandshake = "TLS handshake timeout"

const allowAllRobots = "User-agent: *\nAllow: /"

// robotsBackoff is the wait before each robots.txt retry.
var robotsBackoff = []time.Duration{250 * time.Millisecond, 500 * time.Millisecond, time.Second}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (fn roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return fn(req)
}

// robotsProbe retries robots.txt requests that time out and, when every
// attempt does, lets the page through as if robots.txt allowed everything.
// The outcome is reported on the page response.
type robotsProbe struct {
	status scrape.RobotsStatus
	reason string
}

// wrap returns a transport that only intercepts robots.txt requests.
func (p *robotsProbe) wrap(base http.RoundTripper) http.RoundTripper {
	return roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req == nil || req.URL == nil {
			return nil, errors.New("robots transport received nil request")
		}
		if !strings.EqualFold(req.URL.Path, "/robots.txt") {
			resp, err := base.RoundTrip(req)
			if err != nil {
				return nil, fmt.Errorf("robots transport base roundtrip: %w", err)
			}
			return resp, nil
		}
		return p.fetchRobots(req, base)
	})
}

func (p *robotsProbe) fetchRobots(req *http.Request, base http.RoundTripper) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		resp, err := base.RoundTrip(req.Clone(req.Context()))
		switch {
		case err == nil:
			return resp, nil
		case !timedOut(err):
			return nil, fmt.Errorf("robots roundtrip: %w", err)
		case attempt == len(robotsBackoff):
			p.giveUp(reasonTLSHandshake)
			return allowAll(req), nil
		}
		timer := time.NewTimer(robotsBackoff[attempt])
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, fmt.Errorf("robots retry wait: %w", req.Context().Err())
		case <-timer.C:
		}
	}
}

func (p *robotsProbe) giveUp(reason string) {
	if p.status == scrape.RobotsStatusIndeterminate {
		return
	}
	p.status = scrape.RobotsStatusIndeterminate
	p.reason = reason
	metrics.ObserveRobotsTLSTimeout()
}

// annotate copies the probe outcome onto resp. A nil probe is a no-op.
func (p *robotsProbe) annotate(resp *scrape.FetchResponse) {
	if p == nil || p.status == scrape.RobotsStatusUnknown {
		return
	}
	resp.RobotsStatus = p.status
	resp.RobotsReason = p.reason
}

func allowAll(req *http.Request) *http.Response {
	return &http.Response{
		StatusCode:    http.StatusOK,
		Status:        "200 OK",
		Body:          io.NopCloser(strings.NewReader(allowAllRobots)),
		ContentLength: int64(len(allowAllRobots)),
		Header:        make(http.Header),
		Request:       req,
	}
}

func timedOut(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "tls: handshake timeout")
}
