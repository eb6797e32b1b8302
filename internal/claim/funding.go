package claim

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"
	"github.com/yazamuk/stockgift/internal/broker"
)

// FundingOrchestrator journals cash from the firm's omnibus account into the
// claimant's account and polls until the journaled funds show up as settled
// buying power.
type FundingOrchestrator struct {
	api    BrokerAPI
	clock  Clock
	budget PollBudget
	logger *slog.Logger
}

// NewFundingOrchestrator creates an orchestrator with the given settlement
// polling budget.
func NewFundingOrchestrator(api BrokerAPI, clock Clock, budget PollBudget, logger *slog.Logger) *FundingOrchestrator {
	return &FundingOrchestrator{api: api, clock: clock, budget: budget, logger: logger}
}

// Fund submits a cash journal moving the full gift amount from the firm
// account to the destination account. A failure here stops the workflow:
// no order is ever placed without a journal accepted at the API level.
func (f *FundingOrchestrator) Fund(ctx context.Context, accessToken, firmAccountID, destAccountID string, amount decimal.Decimal) error {
	journal, err := f.api.CreateJournal(ctx, accessToken, broker.JournalRequest{
		EntryType:   "JNLC",
		FromAccount: firmAccountID,
		ToAccount:   destAccountID,
		Amount:      amountString(amount),
	})
	if err != nil {
		return &FundingError{Err: err}
	}

	f.logger.Info("cash journal submitted",
		"journal_id", journal.ID,
		"to_account", destAccountID,
		"amount", amountString(amount))
	return nil
}

// AwaitSettlement polls the account's buying power until it covers the full
// journaled amount. The gate is deliberately the pre-collar gift amount, not
// the smaller order notional: requiring the larger figure avoids placing an
// order against funds that have not actually cleared.
func (f *FundingOrchestrator) AwaitSettlement(ctx context.Context, accessToken, accountID string, required decimal.Decimal) error {
	observed := decimal.Zero

	for attempt := 1; attempt <= f.budget.MaxAttempts; attempt++ {
		if err := f.clock.Sleep(ctx, f.budget.Interval); err != nil {
			return err
		}

		available, err := f.buyingPower(ctx, accessToken, accountID)
		if err != nil {
			f.logger.Warn("buying power check failed",
				"account_id", accountID,
				"attempt", attempt,
				"max_attempts", f.budget.MaxAttempts,
				"error", err)
			continue
		}

		observed = available
		if available.GreaterThanOrEqual(required) {
			f.logger.Info("buying power settled",
				"account_id", accountID,
				"available", amountString(available),
				"required", amountString(required))
			return nil
		}

		f.logger.Debug("waiting for buying power",
			"account_id", accountID,
			"available", amountString(available),
			"required", amountString(required),
			"attempt", attempt,
			"max_attempts", f.budget.MaxAttempts)
	}

	return &SettlementTimeoutError{
		Observed:      observed,
		Required:      required,
		OrderNotional: OrderNotional(required),
		Attempts:      f.budget.MaxAttempts,
	}
}

// buyingPower reads the trading-account endpoint, falling back to the
// general account endpoint when the trading view is unavailable.
func (f *FundingOrchestrator) buyingPower(ctx context.Context, accessToken, accountID string) (decimal.Decimal, error) {
	trading, err := f.api.GetTradingAccount(ctx, accessToken, accountID)
	if err == nil {
		return trading.AvailableBuyingPower(), nil
	}
	if !broker.IsNotFound(err) {
		return decimal.Zero, err
	}

	account, err := f.api.GetAccount(ctx, accessToken, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	return account.AvailableBuyingPower(), nil
}
