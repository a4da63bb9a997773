package executor

import (
	"go.uber.org/zap"

	"github.com/JakeFAU/scrapebench/internal/clock/system"
	iduuid "github.com/JakeFAU/scrapebench/internal/id/uuid"
	"github.com/JakeFAU/scrapebench/internal/logging"
	"github.com/JakeFAU/scrapebench/internal/progress"
	"github.com/JakeFAU/scrapebench/internal/scrape"
)

// DefaultSearchLimit mirrors the search API's page size.
const DefaultSearchLimit = 10

// shared carries the collaborators every executor accepts as options.
type shared struct {
	clock   scrape.Clock
	ids     scrape.IDGenerator
	emitter progress.Emitter
	logger  *zap.Logger
}

func newShared(opts []Option) shared {
	s := shared{
		clock:   system.New(),
		ids:     iduuid.New(),
		emitter: progress.Nop{},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Option customizes an executor.
type Option func(*shared)

// WithClock overrides the time source used for elapsed measurements.
func WithClock(clock scrape.Clock) Option {
	return func(s *shared) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithIDGenerator overrides run ID generation.
func WithIDGenerator(ids scrape.IDGenerator) Option {
	return func(s *shared) {
		if ids != nil {
			s.ids = ids
		}
	}
}

// WithEmitter sends progress events to emitter.
func WithEmitter(emitter progress.Emitter) Option {
	return func(s *shared) {
		if emitter != nil {
			s.emitter = emitter
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *shared) {
		s.logger = logging.OrNop(logger)
	}
}

// runID returns a fresh run ID in event form. Generation failures only cost
// the run its progress events, which Hub discards for a zero ID.
func (s shared) runID() [16]byte {
	id, err := s.ids.NewID()
	if err != nil {
		s.logger.Warn("generate run id", zap.Error(err))
		return [16]byte{}
	}
	return iduuid.Bytes(id)
}

func (s shared) emit(evt progress.Event) {
	if evt.TS.IsZero() {
		evt.TS = s.clock.Now()
	}
	s.emitter.Emit(evt)
}
