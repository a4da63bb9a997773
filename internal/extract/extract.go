// Package extract turns a fetched page into the set of email addresses it shows.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/scrapebench/internal/logging"
	"github.com/JakeFAU/scrapebench/internal/metrics"
	"github.com/JakeFAU/scrapebench/internal/scrape"
)

var emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)

const blockSelector = "address, article, br, dd, div, dt, footer, h1, h2, h3, h4, h5, h6, header, li, p, section, td, th, tr"

// Extractor implements scrape.Extractor on top of a probe fetcher, an optional
// headless fallback, and a fetch policy.
type Extractor struct {
	fetcher       scrape.Fetcher
	headless      scrape.Fetcher
	detector      scrape.HeadlessDetector
	policy        scrape.Policy
	respectRobots bool
	logger        *zap.Logger
}

// Option customizes an Extractor.
type Option func(*Extractor)

// WithHeadless enables promotion of probe responses the detector flags.
func WithHeadless(fetcher scrape.Fetcher, detector scrape.HeadlessDetector) Option {
	return func(e *Extractor) {
		e.headless = fetcher
		e.detector = detector
	}
}

// WithPolicy throttles fetches through the given policy.
func WithPolicy(policy scrape.Policy) Option {
	return func(e *Extractor) {
		e.policy = policy
	}
}

// WithRobots makes every fetch honor robots.txt.
func WithRobots(respect bool) Option {
	return func(e *Extractor) {
		e.respectRobots = respect
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Extractor) {
		e.logger = logging.OrNop(logger)
	}
}

// New builds an Extractor around the probe fetcher.
func New(fetcher scrape.Fetcher, opts ...Option) *Extractor {
	e := &Extractor{
		fetcher: fetcher,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract fetches the URL and returns the distinct emails in first-seen order.
// Every failure is reported as scrape.ErrFetchFailed.
func (e *Extractor) Extract(ctx context.Context, url string) ([]string, error) {
	if e.policy != nil {
		if err := e.policy.Wait(ctx, url); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", scrape.ErrFetchFailed, url, err)
		}
	}

	req := scrape.FetchRequest{
		URL:                   url,
		RespectRobots:         e.respectRobots,
		RespectRobotsProvided: true,
	}
	resp, err := e.fetcher.Fetch(ctx, req)
	if err != nil {
		metrics.ObservePage(url, "failed", 0)
		return nil, fmt.Errorf("%w: %s: %w", scrape.ErrFetchFailed, url, err)
	}
	if resp.RobotsStatus == scrape.RobotsStatusIndeterminate {
		e.logger.Info("robots.txt unreachable; fetched as allowed",
			zap.String("url", url),
			zap.String("reason", resp.RobotsReason),
		)
	}
	resp = e.maybeRender(ctx, req, resp)
	metrics.ObservePage(url, "ok", len(resp.Body))

	emails, err := FromHTML(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", scrape.ErrFetchFailed, url, err)
	}
	return emails, nil
}

// maybeRender swaps the probe for a headless render when the detector asks for
// one. A failed render keeps the probe.
func (e *Extractor) maybeRender(ctx context.Context, req scrape.FetchRequest, probe scrape.FetchResponse) scrape.FetchResponse {
	if e.headless == nil || e.detector == nil || !e.detector.ShouldPromote(probe) {
		return probe
	}
	req.UseHeadless = true
	rendered, err := e.headless.Fetch(ctx, req)
	if err != nil {
		e.logger.Warn("headless render failed; using probe body",
			zap.String("url", req.URL),
			zap.Error(err),
		)
		return probe
	}
	return rendered
}

// FromHTML returns the distinct emails in the page's visible text and mailto links.
func FromHTML(body []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript, template").Remove()
	// Text() joins adjacent nodes directly; keep block boundaries as whitespace.
	doc.Find(blockSelector).AfterHtml(" ")

	var b strings.Builder
	b.WriteString(doc.Text())
	doc.Find(`a[href^="mailto:"]`).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		b.WriteByte(' ')
		b.WriteString(strings.TrimPrefix(href, "mailto:"))
	})
	return FromText(b.String()), nil
}

// FromText returns the distinct email matches in text, in first-seen order.
func FromText(text string) []string {
	matches := emailPattern.FindAllString(text, -1)
	seen := make(map[string]struct{}, len(matches))
	emails := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		emails = append(emails, m)
	}
	return emails
}
