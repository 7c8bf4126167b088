package utils

import (
	"context"
	"time"
)

// SleepFunc blocks for d or until ctx is done, whichever comes first.
// Components that poll external state take one so tests can skip the wait.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the production SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
