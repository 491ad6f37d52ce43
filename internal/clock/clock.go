// Package clock abstracts wall-clock access so time-sensitive logic can be
// tested deterministically.
package clock

import (
	"time"

	"go.uber.org/fx"
)

type Clock interface {
	Now() time.Time
}

// SystemClock reads the real wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

var Module = fx.Provide(func() Clock {
	return SystemClock{}
})
