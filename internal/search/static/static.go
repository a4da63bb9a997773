// Package static implements scrape.Searcher over a fixed URL list, for offline
// benchmarks and tests.
package static

import (
	"context"
	"fmt"

	"github.com/JakeFAU/scrapebench/internal/scrape"
)

// Searcher returns the same URLs for every query.
type Searcher struct {
	urls []string
}

// New copies urls into a Searcher.
func New(urls []string) *Searcher {
	return &Searcher{urls: append([]string(nil), urls...)}
}

// Search returns at most limit URLs in configured order. A non-positive limit
// returns them all.
func (s *Searcher) Search(ctx context.Context, _ string, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", scrape.ErrSearchUnavailable, err)
	}
	n := len(s.urls)
	if limit > 0 && limit < n {
		n = limit
	}
	return append([]string(nil), s.urls[:n]...), nil
}
