// Package progress defines the events executors emit while a strategy runs.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/scrapebench/internal/scrape"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart  Stage = "RUN_START"
	StageRunDone   Stage = "RUN_DONE"
	StageRunError  Stage = "RUN_ERROR"
	StageFetchDone Stage = "FETCH_DONE"
	StageBatchDone Stage = "BATCH_DONE"
)

// Event captures one milestone of a strategy run.
type Event struct {
	// RunID identifies one strategy run in 16-byte UUID form.
	RunID [16]byte
	// TS is the timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Strategy is the execution model of the run.
	Strategy scrape.Strategy
	// URL is set on fetch events.
	URL string
	// Host labels the machine that did the work for batch events.
	Host string
	// Emails counts addresses found by a fetch, batch or run.
	Emails int
	// Failed marks fetches that were swallowed as empty results.
	Failed bool
	// Dur is the fetch, batch or run latency.
	Dur time.Duration
	// Note carries low-volume context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
	case StageFetchDone:
		if e.URL == "" {
			return errors.New("fetch done requires url")
		}
	case StageBatchDone:
		if e.Host == "" {
			return errors.New("batch done requires host")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID back to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// Nop discards every event.
type Nop struct{}

// Emit implements Emitter.
func (Nop) Emit(Event) {}
