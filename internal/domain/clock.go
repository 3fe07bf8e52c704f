package domain

import "time"

// Clock supplies the current time. Services take a Clock instead of
// calling time.Now directly so tests can pin the date.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }
