// Package clock provides an injectable time source so timer math can be
// tested without sleeping. The real clock returns time.Time values that
// carry Go's monotonic reading, which makes running-interval deltas
// immune to wall clock changes while a timer runs.
package clock

import "time"

// Clock is the minimal time source the engine depends on.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// System returns the real clock.
func System() Clock { return systemClock{} }
