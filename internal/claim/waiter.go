package claim

import (
	"context"
	"log/slog"

	"github.com/yazamuk/stockgift/internal/broker"
)

// ActivationWaiter polls a newly created account's status until it reports
// ACTIVE or the budget is exhausted. Reused accounts skip this in favor of a
// single-shot status check by the workflow.
type ActivationWaiter struct {
	api    BrokerAPI
	clock  Clock
	budget PollBudget
	logger *slog.Logger
}

// NewActivationWaiter creates a waiter with the given polling budget.
func NewActivationWaiter(api BrokerAPI, clock Clock, budget PollBudget, logger *slog.Logger) *ActivationWaiter {
	return &ActivationWaiter{api: api, clock: clock, budget: budget, logger: logger}
}

// AwaitActive blocks until the account reports ACTIVE. A failed poll counts
// as an attempt rather than aborting immediately, to tolerate transient
// network and API errors; only exhausting the budget is fatal. The timeout
// error carries the last observed status and the elapsed time.
func (w *ActivationWaiter) AwaitActive(ctx context.Context, accessToken, accountID string) error {
	start := w.clock.Now()
	lastStatus := "UNKNOWN"

	for attempt := 1; attempt <= w.budget.MaxAttempts; attempt++ {
		if err := w.clock.Sleep(ctx, w.budget.Interval); err != nil {
			return err
		}

		account, err := w.api.GetAccount(ctx, accessToken, accountID)
		if err != nil {
			w.logger.Warn("account status check failed",
				"account_id", accountID,
				"attempt", attempt,
				"max_attempts", w.budget.MaxAttempts,
				"error", err)
			continue
		}

		lastStatus = account.Status
		w.logger.Debug("account status check",
			"account_id", accountID,
			"status", lastStatus,
			"attempt", attempt,
			"max_attempts", w.budget.MaxAttempts)

		if account.Status == broker.AccountStatusActive {
			w.logger.Info("account is active",
				"account_id", accountID, "attempts", attempt)
			return nil
		}
	}

	return &ActivationTimeoutError{
		AccountID:  accountID,
		LastStatus: lastStatus,
		Attempts:   w.budget.MaxAttempts,
		Elapsed:    w.clock.Now().Sub(start),
	}
}
