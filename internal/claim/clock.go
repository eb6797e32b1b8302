package claim

import (
	"context"
	"time"
)

// Clock abstracts time for the polling loops so tests can fast-forward
// instead of sleeping through real polling budgets.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, returning ctx.Err() in the
	// latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the real wall clock.
var SystemClock Clock = systemClock{}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// PollBudget is a named, overridable polling budget: how many attempts at
// what interval before a wait is declared failed.
type PollBudget struct {
	MaxAttempts int
	Interval    time.Duration
}
