package claim

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yazamuk/stockgift/internal/broker"
	"github.com/yazamuk/stockgift/internal/models"
)

func pendingGift() *models.Gift {
	return &models.Gift{
		ID:              "gift-1",
		SenderName:      "Sam Sender",
		SenderMobile:    "+12025550100",
		RecipientName:   "Jane Doe",
		RecipientEmail:  "jane@example.com",
		RecipientMobile: "+12025550101",
		Amount:          decimal.RequireFromString("119.98"),
		StockSymbol:     "TSLA",
		Status:          models.GiftStatusPending,
	}
}

type workflowEnv struct {
	api      *fakeBroker
	gifts    *fakeGifts
	users    *fakeUsers
	locks    *fakeLocks
	attempts *fakeAttempts
	clock    *fakeClock
	workflow *Workflow
}

func newWorkflowEnv(api *fakeBroker, gifts *fakeGifts, users *fakeUsers) *workflowEnv {
	env := &workflowEnv{
		api:      api,
		gifts:    gifts,
		users:    users,
		locks:    &fakeLocks{},
		attempts: &fakeAttempts{},
		clock:    newFakeClock(),
	}
	env.workflow = NewWorkflow(WorkflowParams{
		Broker:        api,
		Gifts:         gifts,
		Users:         users,
		Locks:         env.locks,
		Attempts:      env.attempts,
		Clock:         env.clock,
		Logger:        discardLogger(),
		FirmAccountID: "firm-1",
		Activation:    PollBudget{MaxAttempts: 30, Interval: 2 * time.Second},
		Settlement:    PollBudget{MaxAttempts: 10, Interval: 2 * time.Second},
		HashPassword:  fakeHash,
	})
	return env
}

func onboardingRequest() ClaimRequest {
	return ClaimRequest{
		GiftID:        "gift-1",
		FirstName:     "Jane",
		LastName:      "Doe",
		Email:         "jane@example.com",
		DateOfBirth:   "1990-01-15",
		TaxID:         "123-45-6789",
		StreetAddress: "1 Main St",
		City:          "Austin",
		State:         "TX",
		ZipCode:       "78701",
		Password:      "secret1",
		ClientIP:      "203.0.113.9",
	}
}

// happyBroker wires every endpoint for a successful new-claimant claim:
// account created, active on the first poll, funds settled on the first poll.
func happyBroker() *fakeBroker {
	api := &fakeBroker{}
	api.authenticateFn = func(ctx context.Context) (*broker.Token, error) {
		return &broker.Token{AccessToken: "tok"}, nil
	}
	api.createAccountFn = func(ctx context.Context, accessToken string, req broker.AccountRequest) (*broker.Account, error) {
		return &broker.Account{ID: "acct-new", Status: broker.AccountStatusSubmitted}, nil
	}
	api.getAccountFn = func(ctx context.Context, accessToken, accountID string) (*broker.Account, error) {
		return &broker.Account{ID: accountID, Status: broker.AccountStatusActive}, nil
	}
	api.tradingAccountFn = func(ctx context.Context, accessToken, accountID string) (*broker.TradingAccount, error) {
		return &broker.TradingAccount{ID: accountID, BuyingPower: "119.98"}, nil
	}
	api.createJournalFn = func(ctx context.Context, accessToken string, req broker.JournalRequest) (*broker.Journal, error) {
		return &broker.Journal{ID: "journal-1", Status: "queued"}, nil
	}
	api.createOrderFn = func(ctx context.Context, accessToken, accountID string, req broker.OrderRequest) (*broker.Order, error) {
		return &broker.Order{ID: "order-1", Symbol: req.Symbol, Notional: req.Notional, Status: "accepted"}, nil
	}
	return api
}

func TestClaimNewClaimant(t *testing.T) {
	api := happyBroker()
	var journalReq broker.JournalRequest
	var orderReq broker.OrderRequest
	api.createJournalFn = func(ctx context.Context, accessToken string, req broker.JournalRequest) (*broker.Journal, error) {
		journalReq = req
		return &broker.Journal{ID: "journal-1"}, nil
	}
	api.createOrderFn = func(ctx context.Context, accessToken, accountID string, req broker.OrderRequest) (*broker.Order, error) {
		orderReq = req
		return &broker.Order{ID: "order-1"}, nil
	}

	gifts := &fakeGifts{gift: pendingGift()}
	users := &fakeUsers{}
	env := newWorkflowEnv(api, gifts, users)

	result, err := env.workflow.Claim(context.Background(), onboardingRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.AccountID != "acct-new" {
		t.Errorf("expected acct-new, got %q", result.AccountID)
	}
	if result.IsExistingUser {
		t.Error("expected a new user")
	}
	if !result.SessionEligible {
		t.Error("expected a new signup to be session eligible")
	}

	if journalReq.EntryType != "JNLC" || journalReq.FromAccount != "firm-1" || journalReq.ToAccount != "acct-new" {
		t.Errorf("expected JNLC journal firm-1 -> acct-new, got %+v", journalReq)
	}
	if journalReq.Amount != "119.98" {
		t.Errorf("expected full gift amount journaled, got %q", journalReq.Amount)
	}
	if orderReq.Symbol != "TSLA" || orderReq.Notional != "114.27" {
		t.Errorf("expected TSLA order for the collar-adjusted 114.27, got %+v", orderReq)
	}

	if len(users.created) != 1 {
		t.Fatalf("expected one user created, got %d", len(users.created))
	}
	created := users.created[0]
	if created.Email != "jane@example.com" || created.PasswordHash != "hashed:secret1" {
		t.Errorf("unexpected created user %+v", created)
	}
	if !created.HasBrokerAccount() || *created.BrokerAccountID != "acct-new" {
		t.Error("expected the created user to carry the new account id")
	}

	if !gifts.completed {
		t.Fatal("expected the gift to be marked completed")
	}
	if gifts.completedAccountID != "acct-new" || gifts.completedUserID != created.ID {
		t.Errorf("expected completion linkage acct-new/%d, got %s/%d",
			created.ID, gifts.completedAccountID, gifts.completedUserID)
	}

	if env.attempts.status != models.ClaimAttemptCompleted {
		t.Errorf("expected a completed attempt record, got %q", env.attempts.status)
	}
	if len(env.locks.acquired) != 1 || len(env.locks.released) != 1 {
		t.Errorf("expected the gift lock acquired and released once, got %v / %v",
			env.locks.acquired, env.locks.released)
	}
}

func TestClaimReturningClaimant(t *testing.T) {
	api := happyBroker()
	gifts := &fakeGifts{gift: pendingGift()}
	users := &fakeUsers{
		byEmail: map[string]*models.User{
			"jane@example.com": userWithAccount(7, "jane@example.com", "acct-on-file"),
		},
	}
	env := newWorkflowEnv(api, gifts, users)

	// A returning claimant needs only the gift id and email.
	result, err := env.workflow.Claim(context.Background(), ClaimRequest{
		GiftID: "gift-1",
		Email:  "jane@example.com",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.AccountID != "acct-on-file" {
		t.Errorf("expected the account on file, got %q", result.AccountID)
	}
	if !result.IsExistingUser {
		t.Error("expected an existing user")
	}
	if result.SessionEligible {
		t.Error("expected no session without a supplied password")
	}

	if api.callCount("CreateAccount") != 0 {
		t.Error("expected no account creation for a returning claimant")
	}
	if got := api.callCount("GetAccount"); got != 1 {
		t.Errorf("expected a single-shot status check for a reused account, got %d polls", got)
	}
	if len(users.created) != 0 {
		t.Errorf("expected no new user record, got %d", len(users.created))
	}
	if !gifts.completed || gifts.completedUserID != 7 {
		t.Error("expected the gift completed against the existing user")
	}
}

func TestClaimReturningClaimantWithPasswordIsSessionEligible(t *testing.T) {
	api := happyBroker()
	gifts := &fakeGifts{gift: pendingGift()}
	users := &fakeUsers{
		byEmail: map[string]*models.User{
			"jane@example.com": userWithAccount(7, "jane@example.com", "acct-on-file"),
		},
	}
	env := newWorkflowEnv(api, gifts, users)

	result, err := env.workflow.Claim(context.Background(), ClaimRequest{
		GiftID:   "gift-1",
		Email:    "jane@example.com",
		Password: "secret1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.SessionEligible {
		t.Error("expected a supplied password to make the claim session eligible")
	}
}

func TestClaimGiftNotFound(t *testing.T) {
	env := newWorkflowEnv(&fakeBroker{}, &fakeGifts{}, &fakeUsers{})

	_, err := env.workflow.Claim(context.Background(), onboardingRequest())
	if !errors.Is(err, ErrGiftNotFound) {
		t.Fatalf("expected ErrGiftNotFound, got %v", err)
	}
}

func TestClaimCompletedGiftMakesNoBrokerCalls(t *testing.T) {
	api := &fakeBroker{}
	gift := pendingGift()
	gift.Status = models.GiftStatusCompleted
	env := newWorkflowEnv(api, &fakeGifts{gift: gift}, &fakeUsers{})

	_, err := env.workflow.Claim(context.Background(), onboardingRequest())
	if !errors.Is(err, ErrGiftAlreadyClaimed) {
		t.Fatalf("expected ErrGiftAlreadyClaimed, got %v", err)
	}
	if len(api.calls) != 0 {
		t.Errorf("expected zero broker calls for a completed gift, got %v", api.calls)
	}
	if len(env.locks.acquired) != 0 {
		t.Error("expected no lock taken for a completed gift")
	}
}

func TestClaimFallsBackToGiftRecipientEmail(t *testing.T) {
	api := happyBroker()
	var createdEmail string
	api.createAccountFn = func(ctx context.Context, accessToken string, req broker.AccountRequest) (*broker.Account, error) {
		createdEmail = req.Contact.EmailAddress
		return &broker.Account{ID: "acct-new"}, nil
	}
	env := newWorkflowEnv(api, &fakeGifts{gift: pendingGift()}, &fakeUsers{})

	req := onboardingRequest()
	req.Email = ""
	if _, err := env.workflow.Claim(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if createdEmail != "jane@example.com" {
		t.Errorf("expected the gift's recipient email, got %q", createdEmail)
	}
}

func TestClaimValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ClaimRequest)
		wantMsg string
	}{
		{"missing first name", func(r *ClaimRequest) { r.FirstName = "" }, "firstName"},
		{"missing tax id", func(r *ClaimRequest) { r.TaxID = "" }, "taxId"},
		{"missing password", func(r *ClaimRequest) { r.Password = "" }, "password"},
		{"short password", func(r *ClaimRequest) { r.Password = "abc" }, "at least 6"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeBroker{}
			env := newWorkflowEnv(api, &fakeGifts{gift: pendingGift()}, &fakeUsers{})

			req := onboardingRequest()
			tt.mutate(&req)

			_, err := env.workflow.Claim(context.Background(), req)
			var validationErr *ValidationError
			if !errors.As(err, &validationErr) {
				t.Fatalf("expected *ValidationError, got %T: %v", err, err)
			}
			if !strings.Contains(validationErr.Reason, tt.wantMsg) {
				t.Errorf("expected reason mentioning %q, got %q", tt.wantMsg, validationErr.Reason)
			}
			if len(api.calls) != 0 {
				t.Errorf("expected validation to reject before any broker call, got %v", api.calls)
			}
		})
	}
}

func TestClaimMissingConfig(t *testing.T) {
	api := &fakeBroker{}
	gifts := &fakeGifts{gift: pendingGift()}
	env := newWorkflowEnv(api, gifts, &fakeUsers{})
	env.workflow.missingConfig = []string{"BROKER_API_KEY", "FIRM_ACCOUNT_ID"}

	_, err := env.workflow.Claim(context.Background(), onboardingRequest())
	var configErr *ConfigError
	if !errors.As(err, &configErr) {
		t.Fatalf("expected *ConfigError, got %T: %v", err, err)
	}
	if len(configErr.Missing) != 2 {
		t.Errorf("expected both missing names reported, got %v", configErr.Missing)
	}
	if len(api.calls) != 0 {
		t.Errorf("expected no broker calls with missing config, got %v", api.calls)
	}
}

func TestClaimLockBusy(t *testing.T) {
	api := &fakeBroker{}
	env := newWorkflowEnv(api, &fakeGifts{gift: pendingGift()}, &fakeUsers{})
	env.locks.busy = true

	_, err := env.workflow.Claim(context.Background(), onboardingRequest())
	if !errors.Is(err, ErrClaimInProgress) {
		t.Fatalf("expected ErrClaimInProgress, got %v", err)
	}
	if len(api.calls) != 0 {
		t.Errorf("expected no broker calls while another claim holds the lock, got %v", api.calls)
	}
}

func TestClaimAuthFailure(t *testing.T) {
	api := happyBroker()
	api.authenticateFn = func(ctx context.Context) (*broker.Token, error) {
		return nil, &broker.APIError{StatusCode: 401, Message: "invalid client credentials"}
	}
	env := newWorkflowEnv(api, &fakeGifts{gift: pendingGift()}, &fakeUsers{})

	_, err := env.workflow.Claim(context.Background(), onboardingRequest())
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *AuthError, got %T: %v", err, err)
	}
	if authErr.Detail != "invalid client credentials" {
		t.Errorf("expected the provider description, got %q", authErr.Detail)
	}
	if env.attempts.status != models.ClaimAttemptAborted {
		t.Errorf("expected an aborted attempt record, got %q", env.attempts.status)
	}
	if len(env.locks.released) != 1 {
		t.Error("expected the lock released after an aborted claim")
	}
}

func TestClaimMissingCredentialsBecomesConfigError(t *testing.T) {
	api := happyBroker()
	api.authenticateFn = func(ctx context.Context) (*broker.Token, error) {
		return nil, broker.ErrMissingCredentials
	}
	env := newWorkflowEnv(api, &fakeGifts{gift: pendingGift()}, &fakeUsers{})

	_, err := env.workflow.Claim(context.Background(), onboardingRequest())
	var configErr *ConfigError
	if !errors.As(err, &configErr) {
		t.Fatalf("expected *ConfigError, got %T: %v", err, err)
	}
}

func TestClaimActivationTimeoutLeavesGiftPending(t *testing.T) {
	api := happyBroker()
	api.getAccountFn = func(ctx context.Context, accessToken, accountID string) (*broker.Account, error) {
		return &broker.Account{ID: accountID, Status: broker.AccountStatusSubmitted}, nil
	}
	gifts := &fakeGifts{gift: pendingGift()}
	env := newWorkflowEnv(api, gifts, &fakeUsers{})

	_, err := env.workflow.Claim(context.Background(), onboardingRequest())
	var timeoutErr *ActivationTimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("expected *ActivationTimeoutError, got %T: %v", err, err)
	}

	if api.callCount("CreateJournal") != 0 || api.callCount("CreateOrder") != 0 {
		t.Error("expected no funding or order after an activation timeout")
	}
	if gifts.completed {
		t.Error("expected the gift to remain pending")
	}
	if env.attempts.status != models.ClaimAttemptAborted {
		t.Errorf("expected an aborted attempt record, got %q", env.attempts.status)
	}
}

func TestClaimReusedAccountInactive(t *testing.T) {
	api := happyBroker()
	api.getAccountFn = func(ctx context.Context, accessToken, accountID string) (*broker.Account, error) {
		return &broker.Account{ID: accountID, Status: "ACTION_REQUIRED"}, nil
	}
	users := &fakeUsers{
		byEmail: map[string]*models.User{
			"jane@example.com": userWithAccount(7, "jane@example.com", "acct-on-file"),
		},
	}
	env := newWorkflowEnv(api, &fakeGifts{gift: pendingGift()}, users)

	_, err := env.workflow.Claim(context.Background(), ClaimRequest{GiftID: "gift-1", Email: "jane@example.com"})
	var inactiveErr *AccountInactiveError
	if !errors.As(err, &inactiveErr) {
		t.Fatalf("expected *AccountInactiveError, got %T: %v", err, err)
	}
	if inactiveErr.Status != "ACTION_REQUIRED" {
		t.Errorf("expected the observed status, got %q", inactiveErr.Status)
	}
	if api.callCount("GetAccount") != 1 {
		t.Errorf("expected a single status check, got %d", api.callCount("GetAccount"))
	}
}

func TestClaimCompletionRaceAborts(t *testing.T) {
	api := happyBroker()
	gifts := &fakeGifts{gift: pendingGift(), markErr: ErrGiftAlreadyClaimed}
	env := newWorkflowEnv(api, gifts, &fakeUsers{})

	_, err := env.workflow.Claim(context.Background(), onboardingRequest())
	if !errors.Is(err, ErrGiftAlreadyClaimed) {
		t.Fatalf("expected ErrGiftAlreadyClaimed from the conditional update, got %v", err)
	}
	if env.attempts.status != models.ClaimAttemptAborted {
		t.Errorf("expected an aborted attempt record, got %q", env.attempts.status)
	}
}
