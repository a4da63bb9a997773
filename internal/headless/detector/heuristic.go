// Package detector decides when a plain HTTP probe should be re-fetched with a
// headless browser because the page is likely rendered client-side.
package detector

import (
	"bytes"
	"net/http"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/scrapebench/internal/scrape"
)

const (
	defaultThreshold = 2048
	// scriptSharePercent is the share of a small page occupied by <script> markup
	// above which the page is treated as a JS shell.
	scriptSharePercent = 25
)

// appRootSelector matches the mount points of common client-side frameworks.
const appRootSelector = "#__next, #root, #app, [data-reactroot], [ng-app], [data-server-rendered]"

// Heuristic implements scrape.HeadlessDetector with a few rule-based checks.
type Heuristic struct {
	BodyLengthThreshold int
}

// NewHeuristic creates a new detector. A zero threshold selects the default.
func NewHeuristic(threshold int) *Heuristic {
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	return &Heuristic{BodyLengthThreshold: threshold}
}

// ShouldPromote reports whether the probe response warrants a headless fetch.
func (h *Heuristic) ShouldPromote(probe scrape.FetchResponse) bool {
	if probe.StatusCode != http.StatusOK {
		return false
	}
	if len(bytes.TrimSpace(probe.Body)) == 0 {
		return true
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(probe.Body))
	if err != nil {
		return false
	}
	if doc.Find(appRootSelector).Length() > 0 {
		return true
	}
	return len(probe.Body) < h.BodyLengthThreshold && scriptHeavy(doc, len(probe.Body))
}

func scriptHeavy(doc *goquery.Document, total int) bool {
	if total == 0 {
		return false
	}
	covered := 0
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		html, err := goquery.OuterHtml(s)
		if err != nil {
			return
		}
		covered += len(html)
	})
	return covered*100/total >= scriptSharePercent
}
