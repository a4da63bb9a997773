package executor

import (
	"fmt"

	"github.com/JakeFAU/scrapebench/internal/scrape"
)

// Split partitions urls into contiguous batches of at most size URLs, in
// order. Only the last batch may be short.
func Split(urls []string, size int) ([]scrape.Batch, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: batch size %d must be >= 1", scrape.ErrInvalidArgument, size)
	}
	batches := make([]scrape.Batch, 0, (len(urls)+size-1)/size)
	for start := 0; start < len(urls); start += size {
		end := min(start+size, len(urls))
		batches = append(batches, scrape.Batch(urls[start:end:end]))
	}
	return batches, nil
}
