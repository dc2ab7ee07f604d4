// Package system provides the wall clock used for run timestamps.
package system

import "time"

// Clock reads the wall clock in UTC, truncated to Precision so manifest
// and status timestamps stay short. A zero Precision keeps full resolution.
type Clock struct {
	Precision time.Duration
}

// New returns a Clock with millisecond precision.
func New() *Clock {
	return &Clock{Precision: time.Millisecond}
}

// Now returns the current UTC time.
func (c *Clock) Now() time.Time {
	now := time.Now().UTC()
	if c.Precision > 0 {
		now = now.Truncate(c.Precision)
	}
	return now
}
