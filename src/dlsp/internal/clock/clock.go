// Package clock abstracts time so build agent timeouts and build timestamps can be controlled in tests.
package clock

import "time"

// Clock is the source of time for components with timeouts.
type Clock interface {
	// Now returns the current local time.
	Now() time.Time
	// After sends the current time on the returned channel once d has elapsed.
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

// New returns a Clock backed by the time package.
func New() Clock {
	return realClock{}
}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
