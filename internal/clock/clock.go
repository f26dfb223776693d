package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock supplies the current time. Services take it so tests can pin dates.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

var Module = fx.Module("clock",
	fx.Provide(func() Clock { return SystemClock{} }),
)
