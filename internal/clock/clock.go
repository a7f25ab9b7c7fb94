package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock abstracts wall time so acceptance and creation timestamps are testable.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// System returns the wall clock in UTC.
func System() Clock {
	return systemClock{}
}

var Module = fx.Module("clock",
	fx.Provide(System),
)
