package interfaces

import "time"

// Clock supplies the current time to anything with age-based behavior
// (abandonment, idle termination), so tests can advance time directly.
type Clock interface {
	Now() time.Time
}
