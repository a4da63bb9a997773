// Package pubsubdispatch runs batches on remote worker processes connected
// through a pair of Pub/Sub topics.
package pubsubdispatch

import "github.com/JakeFAU/scrapebench/internal/scrape"

// ResultEnvelope is the message a worker publishes for each task it
// finishes. Error is set instead of the result fields when the task failed.
type ResultEnvelope struct {
	scrape.BatchResult
	Error string `json:"error,omitempty"`
}
