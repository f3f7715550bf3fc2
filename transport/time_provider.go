package transport

import "time"

// TimeProvider is an interface for getting the current time and scheduling
// deferred work. This allows injecting a mock time provider for deterministic
// testing of the reconnection schedule.
type TimeProvider interface {
	// Now returns the current time.
	Now() time.Time
	// AfterFunc schedules f to run after d and returns the timer.
	AfterFunc(d time.Duration, f func()) *time.Timer
}

// RealTimeProvider implements TimeProvider using the actual system time.
type RealTimeProvider struct{}

// Now returns the current system time.
func (RealTimeProvider) Now() time.Time {
	return time.Now()
}

// AfterFunc schedules f using the standard library.
func (RealTimeProvider) AfterFunc(d time.Duration, f func()) *time.Timer {
	return time.AfterFunc(d, f)
}
