// Package google implements scrape.Searcher against the Google Custom Search JSON API.
package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/JakeFAU/scrapebench/internal/logging"
	"github.com/JakeFAU/scrapebench/internal/scrape"
)

// pageSize is the API's hard cap on items per call.
const pageSize = 10

// DefaultEndpoint is the public Custom Search endpoint.
const DefaultEndpoint = "https://www.googleapis.com/customsearch/v1"

// Config holds the API credentials.
type Config struct {
	Endpoint string
	APIKey   string
	CSEID    string
}

// Searcher pages through Custom Search results using the injected fetcher.
type Searcher struct {
	cfg     Config
	fetcher scrape.Fetcher
	logger  *zap.Logger
}

// New validates credentials and builds a Searcher.
func New(cfg Config, fetcher scrape.Fetcher, logger *zap.Logger) (*Searcher, error) {
	if cfg.APIKey == "" || cfg.CSEID == "" {
		return nil, fmt.Errorf("%w: google search needs an api key and a cse id", scrape.ErrInvalidArgument)
	}
	if fetcher == nil {
		return nil, errors.New("google search requires a fetcher")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	return &Searcher{cfg: cfg, fetcher: fetcher, logger: logging.OrNop(logger)}, nil
}

// Search returns up to limit result links in ranking order. Any failure,
// including a partial one mid-paging, is reported as scrape.ErrSearchUnavailable.
func (s *Searcher) Search(ctx context.Context, query string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = pageSize
	}
	links := make([]string, 0, limit)
	for start := 1; len(links) < limit; start += pageSize {
		num := min(pageSize, limit-len(links))
		page, err := s.page(ctx, query, start, num)
		if err != nil {
			return nil, err
		}
		links = append(links, page...)
		if len(page) < num {
			break
		}
	}
	s.logger.Debug("search complete", zap.String("query", query), zap.Int("results", len(links)))
	return links, nil
}

func (s *Searcher) page(ctx context.Context, query string, start, num int) ([]string, error) {
	resp, err := s.fetcher.Fetch(ctx, scrape.FetchRequest{
		URL:                   s.pageURL(query, start, num),
		Headers:               http.Header{"Accept": {"application/json"}},
		RespectRobotsProvided: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: query %q: %w", scrape.ErrSearchUnavailable, query, err)
	}
	if !gjson.ValidBytes(resp.Body) {
		return nil, fmt.Errorf("%w: query %q: response is not json", scrape.ErrSearchUnavailable, query)
	}
	if msg := gjson.GetBytes(resp.Body, "error.message"); msg.Exists() {
		return nil, fmt.Errorf("%w: query %q: %s", scrape.ErrSearchUnavailable, query, msg.String())
	}
	items := gjson.GetBytes(resp.Body, "items.#.link").Array()
	links := make([]string, 0, len(items))
	for _, item := range items {
		if link := item.String(); link != "" {
			links = append(links, link)
		}
	}
	return links, nil
}

func (s *Searcher) pageURL(query string, start, num int) string {
	params := url.Values{}
	params.Set("key", s.cfg.APIKey)
	params.Set("cx", s.cfg.CSEID)
	params.Set("q", query)
	params.Set("num", strconv.Itoa(num))
	if start > 1 {
		params.Set("start", strconv.Itoa(start))
	}
	return s.cfg.Endpoint + "?" + params.Encode()
}
