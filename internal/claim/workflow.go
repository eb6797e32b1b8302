package claim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/yazamuk/stockgift/internal/broker"
	"github.com/yazamuk/stockgift/internal/models"
)

// State names the claim workflow's progress. Recorded into the claim attempt
// ledger as each transition commits.
type State string

const (
	StateReceived        State = "RECEIVED"
	StateValidated       State = "VALIDATED"
	StateAuthenticated   State = "AUTHENTICATED"
	StateAccountResolved State = "ACCOUNT_RESOLVED"
	StateAccountActive   State = "ACCOUNT_ACTIVE"
	StateFunded          State = "FUNDED"
	StateSettled         State = "SETTLED"
	StateOrderPlaced     State = "ORDER_PLACED"
	StatePersisted       State = "PERSISTED"
	StateAborted         State = "ABORTED"
)

// ClaimRequest is the claimant-submitted payload for a gift claim.
type ClaimRequest struct {
	GiftID        string
	FirstName     string
	LastName      string
	Email         string
	DateOfBirth   string
	TaxID         string
	StreetAddress string
	City          string
	State         string
	ZipCode       string
	Password      string
	// ClientIP is stamped onto the broker's legal agreements.
	ClientIP string
}

// ClaimResult is the outcome of a successful claim.
type ClaimResult struct {
	AccountID      string
	User           *models.User
	IsExistingUser bool
	// SessionEligible: issue a session credential only for a new signup or
	// a claimant who supplied a password. A returning, already-credentialed
	// user claiming without one is left to authenticate separately.
	SessionEligible bool
}

// WorkflowParams wires a Workflow's collaborators and policy.
type WorkflowParams struct {
	Broker   BrokerAPI
	Gifts    GiftStore
	Users    UserStore
	Locks    Locker
	Attempts AttemptRecorder
	Clock    Clock
	Logger   *slog.Logger

	FirmAccountID string
	// MissingConfig names absent broker configuration values; a non-empty
	// list fails validation before any external call.
	MissingConfig []string
	Activation    PollBudget
	Settlement    PollBudget
	HashPassword  func(string) (string, error)
}

// Workflow sequences the claim: validate, authenticate, resolve the account,
// wait for activation, fund, wait for settlement, place the order, persist.
// Any step's failure aborts the whole operation, leaving the gift at its last
// safe state — a partial claim is never silently completed.
type Workflow struct {
	api      BrokerAPI
	gifts    GiftStore
	users    UserStore
	locks    Locker
	attempts AttemptRecorder
	clock    Clock
	logger   *slog.Logger

	resolver *Resolver
	waiter   *ActivationWaiter
	funding  *FundingOrchestrator
	placer   *OrderPlacer

	firmAccountID string
	missingConfig []string
	hashPassword  func(string) (string, error)
}

// NewWorkflow builds a Workflow and its step components from params.
func NewWorkflow(p WorkflowParams) *Workflow {
	if p.Clock == nil {
		p.Clock = SystemClock
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	return &Workflow{
		api:           p.Broker,
		gifts:         p.Gifts,
		users:         p.Users,
		locks:         p.Locks,
		attempts:      p.Attempts,
		clock:         p.Clock,
		logger:        p.Logger,
		resolver:      NewResolver(p.Broker, p.Users, p.HashPassword, p.Logger),
		waiter:        NewActivationWaiter(p.Broker, p.Clock, p.Activation, p.Logger),
		funding:       NewFundingOrchestrator(p.Broker, p.Clock, p.Settlement, p.Logger),
		placer:        NewOrderPlacer(p.Broker, p.Logger),
		firmAccountID: p.FirmAccountID,
		missingConfig: p.MissingConfig,
		hashPassword:  p.HashPassword,
	}
}

// Claim runs the full workflow for one gift claim. It blocks for up to
// roughly the sum of both polling budgets in the worst case.
func (w *Workflow) Claim(ctx context.Context, req ClaimRequest) (*ClaimResult, error) {
	// Validation happens before any external call: the cheapest failures
	// first, and a COMPLETED gift is rejected with zero broker traffic.
	gift, err := w.gifts.FindByID(ctx, req.GiftID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch gift: %w", err)
	}
	if gift == nil {
		return nil, ErrGiftNotFound
	}
	if gift.Status != models.GiftStatusPending {
		return nil, ErrGiftAlreadyClaimed
	}

	email := req.Email
	if email == "" {
		email = gift.RecipientEmail
	}
	if email == "" {
		return nil, &ValidationError{Reason: "email is required"}
	}

	existing, err := w.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	// A fully onboarded returning claimant needs only the gift id and
	// email; everyone else must supply the whole onboarding profile.
	isExisting := existing.HasBrokerAccount()
	if !isExisting {
		if err := validateOnboarding(req); err != nil {
			return nil, err
		}
	}

	if len(w.missingConfig) > 0 {
		return nil, &ConfigError{Missing: w.missingConfig}
	}

	// Per-gift mutual exclusion, taken before the first external call so
	// only one concurrent claimer proceeds past this point.
	acquired, err := w.locks.Acquire(ctx, gift.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire claim lock: %w", err)
	}
	if !acquired {
		return nil, ErrClaimInProgress
	}
	defer func() {
		if err := w.locks.Release(context.WithoutCancel(ctx), gift.ID); err != nil {
			w.logger.Warn("failed to release claim lock", "gift_id", gift.ID, "error", err)
		}
	}()

	attemptID := w.beginAttempt(ctx, gift.ID)
	w.record(ctx, attemptID, StateValidated, "claimant "+email)

	token, err := w.api.Authenticate(ctx)
	if err != nil {
		return nil, w.abort(ctx, attemptID, StateAuthenticated, asAuthError(err))
	}
	w.record(ctx, attemptID, StateAuthenticated, "")

	passwordHash := ""
	if req.Password != "" {
		passwordHash, err = w.hashPassword(req.Password)
		if err != nil {
			return nil, w.abort(ctx, attemptID, StateAuthenticated, fmt.Errorf("failed to hash password: %w", err))
		}
	}

	resolution, err := w.resolver.Resolve(ctx, token.AccessToken, email, existing, OnboardingProfile{
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Email:         email,
		DateOfBirth:   req.DateOfBirth,
		TaxID:         req.TaxID,
		StreetAddress: req.StreetAddress,
		City:          req.City,
		State:         req.State,
		ZipCode:       req.ZipCode,
		PasswordHash:  passwordHash,
		SignedAt:      w.clock.Now(),
		IPAddress:     req.ClientIP,
	})
	if err != nil {
		return nil, w.abort(ctx, attemptID, StateAccountResolved, err)
	}
	w.record(ctx, attemptID, StateAccountResolved,
		fmt.Sprintf("account %s (%s)", resolution.AccountID, resolution.Kind))

	// A just-created account polls for ACTIVE; a reused account gets a
	// single-shot status check.
	if resolution.WasPreexisting {
		account, err := w.api.GetAccount(ctx, token.AccessToken, resolution.AccountID)
		if err != nil {
			return nil, w.abort(ctx, attemptID, StateAccountActive,
				fmt.Errorf("failed to verify account: %w", err))
		}
		if account.Status != broker.AccountStatusActive {
			return nil, w.abort(ctx, attemptID, StateAccountActive, &AccountInactiveError{
				AccountID: resolution.AccountID,
				Status:    account.Status,
			})
		}
	} else {
		if err := w.waiter.AwaitActive(ctx, token.AccessToken, resolution.AccountID); err != nil {
			return nil, w.abort(ctx, attemptID, StateAccountActive, err)
		}
	}
	w.record(ctx, attemptID, StateAccountActive, "")

	if err := w.funding.Fund(ctx, token.AccessToken, w.firmAccountID, resolution.AccountID, gift.Amount); err != nil {
		return nil, w.abort(ctx, attemptID, StateFunded, err)
	}
	w.record(ctx, attemptID, StateFunded, "journaled $"+amountString(gift.Amount))

	if err := w.funding.AwaitSettlement(ctx, token.AccessToken, resolution.AccountID, gift.Amount); err != nil {
		return nil, w.abort(ctx, attemptID, StateSettled, err)
	}
	w.record(ctx, attemptID, StateSettled, "")

	order, err := w.placer.PlaceMarketBuy(ctx, token.AccessToken, resolution.AccountID, gift.StockSymbol, gift.Amount)
	if err != nil {
		return nil, w.abort(ctx, attemptID, StateOrderPlaced, err)
	}
	w.record(ctx, attemptID, StateOrderPlaced,
		fmt.Sprintf("order %s for $%s of %s", order.ID, amountString(OrderNotional(gift.Amount)), gift.StockSymbol))

	user, err := w.persistUser(ctx, resolution, email, passwordHash)
	if err != nil {
		return nil, w.abort(ctx, attemptID, StatePersisted, err)
	}

	if err := w.gifts.MarkCompleted(ctx, gift.ID, resolution.AccountID, user.ID); err != nil {
		// Funds have already moved; the ledger holds every committed step
		// for the operator to reconcile.
		w.logger.Error("gift completion failed after order placement",
			"gift_id", gift.ID, "account_id", resolution.AccountID, "error", err)
		return nil, w.abort(ctx, attemptID, StatePersisted, err)
	}
	w.record(ctx, attemptID, StatePersisted, "")
	w.finishAttempt(ctx, attemptID, models.ClaimAttemptCompleted, "")

	w.logger.Info("gift claimed",
		"gift_id", gift.ID,
		"account_id", resolution.AccountID,
		"user_id", user.ID,
		"claimant", resolution.Kind.String())

	return &ClaimResult{
		AccountID:       resolution.AccountID,
		User:            user,
		IsExistingUser:  isExisting,
		SessionEligible: !isExisting || req.Password != "",
	}, nil
}

// persistUser creates the claimant's user record or records a newly learned
// brokerage account id on the existing one.
func (w *Workflow) persistUser(ctx context.Context, resolution *Resolution, email, passwordHash string) (*models.User, error) {
	user := resolution.User
	if user == nil {
		accountID := resolution.AccountID
		user = &models.User{
			Email:           email,
			PasswordHash:    passwordHash,
			BrokerAccountID: &accountID,
		}
		if err := w.users.Create(ctx, user); err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
		return user, nil
	}

	if !user.HasBrokerAccount() || *user.BrokerAccountID != resolution.AccountID {
		if err := w.users.UpdateBrokerAccountID(ctx, user.ID, resolution.AccountID); err != nil {
			return nil, fmt.Errorf("failed to record account id: %w", err)
		}
		accountID := resolution.AccountID
		user.BrokerAccountID = &accountID
	}
	return user, nil
}

func validateOnboarding(req ClaimRequest) error {
	required := []struct {
		name, value string
	}{
		{"firstName", req.FirstName},
		{"lastName", req.LastName},
		{"dateOfBirth", req.DateOfBirth},
		{"taxId", req.TaxID},
		{"streetAddress", req.StreetAddress},
		{"city", req.City},
		{"state", req.State},
		{"zipCode", req.ZipCode},
		{"password", req.Password},
	}
	for _, field := range required {
		if field.value == "" {
			return &ValidationError{Reason: "missing required field: " + field.name}
		}
	}
	if len(req.Password) < 6 {
		return &ValidationError{Reason: "password must be at least 6 characters"}
	}
	return nil
}

// asAuthError converts a broker authentication failure into the workflow's
// taxonomy, preserving the provider's description when one was returned.
func asAuthError(err error) error {
	if errors.Is(err, broker.ErrMissingCredentials) {
		return &ConfigError{Missing: []string{"BROKER_API_KEY", "BROKER_API_SECRET"}}
	}
	var apiErr *broker.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return &AuthError{Detail: apiErr.Message, Err: err}
	}
	return &AuthError{Detail: err.Error(), Err: err}
}

// Attempt-ledger helpers. Ledger failures are logged, never fatal: record
// keeping must not take down a claim that is otherwise succeeding.

func (w *Workflow) beginAttempt(ctx context.Context, giftID string) string {
	attemptID, err := w.attempts.Begin(ctx, giftID)
	if err != nil {
		w.logger.Warn("failed to begin claim attempt record", "gift_id", giftID, "error", err)
		return ""
	}
	return attemptID
}

func (w *Workflow) record(ctx context.Context, attemptID string, state State, detail string) {
	if attemptID == "" {
		return
	}
	if err := w.attempts.AppendStep(ctx, attemptID, string(state), detail); err != nil {
		w.logger.Warn("failed to record claim step", "attempt_id", attemptID, "state", state, "error", err)
	}
}

func (w *Workflow) finishAttempt(ctx context.Context, attemptID, status, errorMessage string) {
	if attemptID == "" {
		return
	}
	if err := w.attempts.Finish(ctx, attemptID, status, errorMessage); err != nil {
		w.logger.Warn("failed to finish claim attempt record", "attempt_id", attemptID, "error", err)
	}
}

// abort records the failed transition, closes the attempt ledger entry and
// returns the step error unchanged for the caller to classify.
func (w *Workflow) abort(ctx context.Context, attemptID string, at State, err error) error {
	w.logger.Error("claim workflow aborted", "state", string(at), "error", err)
	w.record(ctx, attemptID, StateAborted, fmt.Sprintf("at %s: %v", at, err))
	w.finishAttempt(ctx, attemptID, models.ClaimAttemptAborted, err.Error())
	return err
}
