// Package claim implements the gift-claim workflow: authenticate against the
// broker, resolve or create the claimant's brokerage account, wait for it to
// activate, journal the gift amount from the firm account, wait for
// settlement, place a collar-adjusted market buy, and persist the
// gift/user/account linkage. Every collaborator is an interface so the
// workflow is testable without a broker, a database or real time.
package claim

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/yazamuk/stockgift/internal/broker"
	"github.com/yazamuk/stockgift/internal/models"
)

// BrokerAPI is the slice of the broker client the workflow drives.
// *broker.Client satisfies it.
type BrokerAPI interface {
	Authenticate(ctx context.Context) (*broker.Token, error)
	CreateAccount(ctx context.Context, accessToken string, req broker.AccountRequest) (*broker.Account, error)
	GetAccount(ctx context.Context, accessToken, accountID string) (*broker.Account, error)
	SearchAccountsByEmail(ctx context.Context, accessToken, email string) ([]broker.Account, error)
	GetTradingAccount(ctx context.Context, accessToken, accountID string) (*broker.TradingAccount, error)
	CreateJournal(ctx context.Context, accessToken string, req broker.JournalRequest) (*broker.Journal, error)
	CreateOrder(ctx context.Context, accessToken, accountID string, req broker.OrderRequest) (*broker.Order, error)
}

// GiftStore is the gift persistence the workflow needs. FindByID returns
// (nil, nil) when no gift exists. MarkCompleted must be conditional on the
// gift still being PENDING and return ErrGiftAlreadyClaimed otherwise.
type GiftStore interface {
	FindByID(ctx context.Context, id string) (*models.Gift, error)
	MarkCompleted(ctx context.Context, giftID, accountID string, userID uint) error
}

// UserStore is the user persistence the workflow and resolver need.
// FindByEmail returns (nil, nil) when no user exists.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	UpdateBrokerAccountID(ctx context.Context, userID uint, accountID string) error
}

// Locker provides per-gift mutual exclusion, taken after validation and
// before any external call so only one concurrent claimer proceeds.
type Locker interface {
	Acquire(ctx context.Context, giftID string) (bool, error)
	Release(ctx context.Context, giftID string) error
}

// AttemptRecorder keeps the committed-step ledger for a claim. Recording
// failures never abort a claim; implementations and callers log and move on.
type AttemptRecorder interface {
	Begin(ctx context.Context, giftID string) (attemptID string, err error)
	AppendStep(ctx context.Context, attemptID, step, detail string) error
	Finish(ctx context.Context, attemptID, status, errorMessage string) error
}

// Amount formatting used on the wire: the broker expects 2-decimal strings.
func amountString(d decimal.Decimal) string { return d.StringFixed(2) }
