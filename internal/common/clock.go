package common

import "time"

// SystemClock is the production clock. Loops and stores take the Clock
// interface so tests can drive abandonment and idle-termination without
// sleeping.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}
