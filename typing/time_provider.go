package typing

import "time"

// TimeProvider abstracts timer creation so tests can drive the quiet-period
// timer deterministically.
type TimeProvider interface {
	// AfterFunc schedules f to run after d and returns the timer.
	AfterFunc(d time.Duration, f func()) *time.Timer
}

// RealTimeProvider implements TimeProvider using the standard library.
type RealTimeProvider struct{}

// AfterFunc schedules f using time.AfterFunc.
func (RealTimeProvider) AfterFunc(d time.Duration, f func()) *time.Timer {
	return time.AfterFunc(d, f)
}
