package claim

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Sentinel errors callers branch on with errors.Is.
var (
	// ErrGiftNotFound: no gift exists under the requested id.
	ErrGiftNotFound = errors.New("gift not found")
	// ErrGiftAlreadyClaimed: the gift is no longer PENDING. Raised before
	// any external call is made, and again by the conditional completion
	// update if a concurrent claimer won the race.
	ErrGiftAlreadyClaimed = errors.New("gift has already been claimed")
	// ErrClaimInProgress: another claim holds the per-gift lock.
	ErrClaimInProgress = errors.New("another claim for this gift is already in progress")
)

// ValidationError rejects a claim before any external call is made.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// ConfigError reports exactly which brokerage configuration values are
// absent. Fatal and not retryable.
type ConfigError struct {
	Missing []string
}

func (e *ConfigError) Error() string {
	return "missing broker API configuration: " + strings.Join(e.Missing, ", ")
}

// AuthError: the broker rejected our service credentials or returned no
// token. Detail carries the provider-supplied description when available.
type AuthError struct {
	Detail string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Detail != "" {
		return "failed to authenticate with broker: " + e.Detail
	}
	return "failed to authenticate with broker"
}

func (e *AuthError) Unwrap() error { return e.Err }

// ResolutionConflictError is the deliberate terminal state of account
// resolution: an account exists under this email but could not be adopted.
// User-actionable — the claimant should log in instead of retrying.
type ResolutionConflictError struct {
	Email string
}

func (e *ResolutionConflictError) Error() string {
	return "an account with this email already exists; please log in to access your portfolio"
}

// AccountInactiveError: a reused account's single-shot status check found it
// in a non-active state.
type AccountInactiveError struct {
	AccountID string
	Status    string
}

func (e *AccountInactiveError) Error() string {
	return fmt.Sprintf("account is not active (status %q); please contact support", e.Status)
}

// ActivationTimeoutError: a newly created account never reported ACTIVE
// within the polling budget. Carries the last observed status and elapsed
// time — the most common "it's just slow" support diagnosis.
type ActivationTimeoutError struct {
	AccountID  string
	LastStatus string
	Attempts   int
	Elapsed    time.Duration
}

func (e *ActivationTimeoutError) Error() string {
	return fmt.Sprintf(
		"account did not become active in time: status is %q after %d checks over %s; it may need manual review or more time",
		e.LastStatus, e.Attempts, e.Elapsed.Round(time.Second),
	)
}

// FundingError: the cash journal submission itself failed. Fatal — no order
// is placed without a successful journal.
type FundingError struct {
	Err error
}

func (e *FundingError) Error() string { return "failed to journal cash: " + e.Err.Error() }

func (e *FundingError) Unwrap() error { return e.Err }

// SettlementTimeoutError: journaled funds never showed up as buying power
// within the polling budget. Reports observed vs required vs the order
// notional so a human can tell a slow settlement from a true shortfall.
type SettlementTimeoutError struct {
	Observed      decimal.Decimal
	Required      decimal.Decimal
	OrderNotional decimal.Decimal
	Attempts      int
}

func (e *SettlementTimeoutError) Error() string {
	return fmt.Sprintf(
		"insufficient buying power after journal: $%s available, $%s required to place a market order of $%s (5%% collar included); the journal may need more time to settle",
		e.Observed.StringFixed(2), e.Required.StringFixed(2), e.OrderNotional.StringFixed(2),
	)
}

// OrderError: order submission failed after funds already moved. Especially
// important to reconcile — the claim attempt ledger records the journal.
type OrderError struct {
	Err error
}

func (e *OrderError) Error() string { return "failed to place order: " + e.Err.Error() }

func (e *OrderError) Unwrap() error { return e.Err }
