// Package system provides the wall clock used outside tests.
package system

import "time"

// Clock implements movie.Clock using the wall clock in UTC.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Since returns the time elapsed since t.
func (c Clock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}
