// Package system provides the wall clock used to time benchmark runs.
package system

import "time"

// Clock implements scrape.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time. The monotonic reading is kept so that
// Sub between two readings is immune to wall clock jumps.
func (Clock) Now() time.Time {
	return time.Now()
}
