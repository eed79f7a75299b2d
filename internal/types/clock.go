package types

import "time"

// Clock supplies "now" to the engine. Temporal decay and transfer momentum
// depend on it; tests inject a fixed clock for determinism.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant. Test helper.
type FixedClock struct {
	T time.Time
}

// Now implements Clock.
func (f FixedClock) Now() time.Time { return f.T }
