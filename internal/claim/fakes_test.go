package claim

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/yazamuk/stockgift/internal/broker"
	"github.com/yazamuk/stockgift/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock advances instantly on Sleep so polling loops run without delay.
type fakeClock struct {
	now      time.Time
	sleeps   []time.Duration
	sleepErr error
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if c.sleepErr != nil {
		return c.sleepErr
	}
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

// fakeBroker records every call by name and dispatches to per-method
// functions. An unset function fails the call, so each test declares exactly
// the surface it expects to be exercised.
type fakeBroker struct {
	calls []string

	authenticateFn    func(ctx context.Context) (*broker.Token, error)
	createAccountFn   func(ctx context.Context, accessToken string, req broker.AccountRequest) (*broker.Account, error)
	getAccountFn      func(ctx context.Context, accessToken, accountID string) (*broker.Account, error)
	searchAccountsFn  func(ctx context.Context, accessToken, email string) ([]broker.Account, error)
	tradingAccountFn  func(ctx context.Context, accessToken, accountID string) (*broker.TradingAccount, error)
	createJournalFn   func(ctx context.Context, accessToken string, req broker.JournalRequest) (*broker.Journal, error)
	createOrderFn     func(ctx context.Context, accessToken, accountID string, req broker.OrderRequest) (*broker.Order, error)
}

func (b *fakeBroker) callCount(name string) int {
	n := 0
	for _, c := range b.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (b *fakeBroker) Authenticate(ctx context.Context) (*broker.Token, error) {
	b.calls = append(b.calls, "Authenticate")
	if b.authenticateFn == nil {
		return nil, errors.New("unexpected call: Authenticate")
	}
	return b.authenticateFn(ctx)
}

func (b *fakeBroker) CreateAccount(ctx context.Context, accessToken string, req broker.AccountRequest) (*broker.Account, error) {
	b.calls = append(b.calls, "CreateAccount")
	if b.createAccountFn == nil {
		return nil, errors.New("unexpected call: CreateAccount")
	}
	return b.createAccountFn(ctx, accessToken, req)
}

func (b *fakeBroker) GetAccount(ctx context.Context, accessToken, accountID string) (*broker.Account, error) {
	b.calls = append(b.calls, "GetAccount")
	if b.getAccountFn == nil {
		return nil, errors.New("unexpected call: GetAccount")
	}
	return b.getAccountFn(ctx, accessToken, accountID)
}

func (b *fakeBroker) SearchAccountsByEmail(ctx context.Context, accessToken, email string) ([]broker.Account, error) {
	b.calls = append(b.calls, "SearchAccountsByEmail")
	if b.searchAccountsFn == nil {
		return nil, errors.New("unexpected call: SearchAccountsByEmail")
	}
	return b.searchAccountsFn(ctx, accessToken, email)
}

func (b *fakeBroker) GetTradingAccount(ctx context.Context, accessToken, accountID string) (*broker.TradingAccount, error) {
	b.calls = append(b.calls, "GetTradingAccount")
	if b.tradingAccountFn == nil {
		return nil, errors.New("unexpected call: GetTradingAccount")
	}
	return b.tradingAccountFn(ctx, accessToken, accountID)
}

func (b *fakeBroker) CreateJournal(ctx context.Context, accessToken string, req broker.JournalRequest) (*broker.Journal, error) {
	b.calls = append(b.calls, "CreateJournal")
	if b.createJournalFn == nil {
		return nil, errors.New("unexpected call: CreateJournal")
	}
	return b.createJournalFn(ctx, accessToken, req)
}

func (b *fakeBroker) CreateOrder(ctx context.Context, accessToken, accountID string, req broker.OrderRequest) (*broker.Order, error) {
	b.calls = append(b.calls, "CreateOrder")
	if b.createOrderFn == nil {
		return nil, errors.New("unexpected call: CreateOrder")
	}
	return b.createOrderFn(ctx, accessToken, accountID, req)
}

type fakeGifts struct {
	gift    *models.Gift
	findErr error
	markErr error

	completedAccountID string
	completedUserID    uint
	completed          bool
}

func (g *fakeGifts) FindByID(ctx context.Context, id string) (*models.Gift, error) {
	if g.findErr != nil {
		return nil, g.findErr
	}
	if g.gift == nil || g.gift.ID != id {
		return nil, nil
	}
	return g.gift, nil
}

func (g *fakeGifts) MarkCompleted(ctx context.Context, giftID, accountID string, userID uint) error {
	if g.markErr != nil {
		return g.markErr
	}
	g.completed = true
	g.completedAccountID = accountID
	g.completedUserID = userID
	g.gift.Status = models.GiftStatusCompleted
	return nil
}

type fakeUsers struct {
	byEmail map[string]*models.User
	findErr error

	created []*models.User
	updated map[uint]string
}

func (u *fakeUsers) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if u.findErr != nil {
		return nil, u.findErr
	}
	return u.byEmail[email], nil
}

func (u *fakeUsers) Create(ctx context.Context, user *models.User) error {
	user.ID = uint(100 + len(u.created))
	u.created = append(u.created, user)
	return nil
}

func (u *fakeUsers) UpdateBrokerAccountID(ctx context.Context, userID uint, accountID string) error {
	if u.updated == nil {
		u.updated = make(map[uint]string)
	}
	u.updated[userID] = accountID
	return nil
}

type fakeLocks struct {
	busy     bool
	acquired []string
	released []string
}

func (l *fakeLocks) Acquire(ctx context.Context, giftID string) (bool, error) {
	if l.busy {
		return false, nil
	}
	l.acquired = append(l.acquired, giftID)
	return true, nil
}

func (l *fakeLocks) Release(ctx context.Context, giftID string) error {
	l.released = append(l.released, giftID)
	return nil
}

type fakeAttempts struct {
	steps  []string
	status string
	errMsg string
}

func (a *fakeAttempts) Begin(ctx context.Context, giftID string) (string, error) {
	return "attempt-1", nil
}

func (a *fakeAttempts) AppendStep(ctx context.Context, attemptID, step, detail string) error {
	a.steps = append(a.steps, step)
	return nil
}

func (a *fakeAttempts) Finish(ctx context.Context, attemptID, status, errorMessage string) error {
	a.status = status
	a.errMsg = errorMessage
	return nil
}

func fakeHash(password string) (string, error) {
	return "hashed:" + password, nil
}
