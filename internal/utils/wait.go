package utils

import (
	"context"
	"time"
)

// newTimer returns a channel that fires after d and a func that stops it.
var newTimer = func(d time.Duration) (<-chan time.Time, func() bool) {
	t := time.NewTimer(d)
	return t.C, t.Stop
}

// WaitFor blocks for d or until ctx is done, whichever comes first.
// The timer is released on cancel.
func WaitFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	fired, stop := newTimer(d)
	defer stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-fired:
		return nil
	}
}
