package claim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/yazamuk/stockgift/internal/broker"
	"github.com/yazamuk/stockgift/internal/models"
)

// ClaimantKind tags how the authoritative brokerage account was determined.
// Produced once by the resolver and consumed uniformly by later steps
// instead of re-checking flags throughout the workflow.
type ClaimantKind int

const (
	// NewClaimant: a brokerage account was just created from the
	// onboarding profile.
	NewClaimant ClaimantKind = iota
	// ReturningClaimant: the claimant's local user record already carried
	// an account id; it is trusted over any broker-side search.
	ReturningClaimant
	// RecoveredViaSearch: the broker rejected creation as a duplicate and
	// the account was recovered via broker search or the local store.
	RecoveredViaSearch
)

func (k ClaimantKind) String() string {
	switch k {
	case NewClaimant:
		return "new"
	case ReturningClaimant:
		return "returning"
	case RecoveredViaSearch:
		return "recovered"
	default:
		return "unknown"
	}
}

// Resolution is the outcome of account resolution: exactly one authoritative
// account id, tagged with how it was obtained.
type Resolution struct {
	Kind           ClaimantKind
	AccountID      string
	WasPreexisting bool
	// User is the local record, if one existed or was created during
	// recovery. Nil for a brand-new claimant until the workflow persists.
	User *models.User
}

// OnboardingProfile is the identity, address and legal-agreement data
// required to open a new brokerage account.
type OnboardingProfile struct {
	FirstName     string
	LastName      string
	Email         string
	PhoneNumber   string
	DateOfBirth   string
	TaxID         string
	StreetAddress string
	City          string
	State         string
	ZipCode       string
	// PasswordHash is the claimant-supplied credential, already hashed.
	// Empty when the claimant supplied none.
	PasswordHash string
	// SignedAt and IPAddress are stamped onto the legal agreements at
	// submission time, as the broker requires.
	SignedAt  time.Time
	IPAddress string
}

// Resolver determines the authoritative brokerage account for a claimant:
// reuse, create, or recover via broker-side email search.
type Resolver struct {
	api    BrokerAPI
	users  UserStore
	hash   func(string) (string, error)
	logger *slog.Logger
}

// NewResolver creates a Resolver. hash is used to generate a placeholder
// credential when a local user record must be created for an account found
// via broker search and the claimant supplied no password.
func NewResolver(api BrokerAPI, users UserStore, hash func(string) (string, error), logger *slog.Logger) *Resolver {
	return &Resolver{api: api, users: users, hash: hash, logger: logger}
}

// Resolve runs the ordered resolution algorithm. existing is the claimant's
// local user record, or nil. On success exactly one of "created" or "reused"
// holds: a NewClaimant resolution is never preexisting, the other kinds
// always are.
func (r *Resolver) Resolve(ctx context.Context, accessToken, email string, existing *models.User, profile OnboardingProfile) (*Resolution, error) {
	// A known mapping is trusted over any broker-side search, even if
	// stale: re-resolving on every claim would be wasteful and racy.
	if existing.HasBrokerAccount() {
		r.logger.Info("reusing brokerage account on file",
			"account_id", *existing.BrokerAccountID)
		return &Resolution{
			Kind:           ReturningClaimant,
			AccountID:      *existing.BrokerAccountID,
			WasPreexisting: true,
			User:           existing,
		}, nil
	}

	account, err := r.api.CreateAccount(ctx, accessToken, buildAccountRequest(profile))
	if err == nil {
		r.logger.Info("created brokerage account", "account_id", account.ID)
		return &Resolution{
			Kind:      NewClaimant,
			AccountID: account.ID,
			User:      existing,
		}, nil
	}

	var apiErr *broker.APIError
	if !errors.As(err, &apiErr) || !apiErr.IsEmailTaken() {
		return nil, fmt.Errorf("failed to create brokerage account: %w", err)
	}

	// The broker says this email is already registered: try to recover the
	// account id, first from the broker itself, then from the local store.
	r.logger.Info("broker reports email already registered, searching for account", "email", email)
	return r.recover(ctx, accessToken, email, existing, profile)
}

func (r *Resolver) recover(ctx context.Context, accessToken, email string, existing *models.User, profile OnboardingProfile) (*Resolution, error) {
	accounts, err := r.api.SearchAccountsByEmail(ctx, accessToken, email)
	if err != nil {
		r.logger.Warn("broker account search failed, falling back to local store", "error", err)
		return r.recoverFromStore(ctx, email, existing)
	}

	var match *broker.Account
	for i := range accounts {
		if accounts[i].Contact.EmailAddress == email {
			match = &accounts[i]
			break
		}
	}
	if match == nil {
		return r.recoverFromStore(ctx, email, existing)
	}

	r.logger.Info("recovered brokerage account via broker search", "account_id", match.ID)

	// Persist the adopted id so the next claim short-circuits.
	user := existing
	if user == nil {
		hash := profile.PasswordHash
		if hash == "" {
			// The claimant supplied no credential; generate an
			// unguessable placeholder so the record can exist. They
			// authenticate later via password reset/setup.
			hash, err = r.hash("placeholder-" + uuid.NewString())
			if err != nil {
				return nil, fmt.Errorf("failed to generate placeholder credential: %w", err)
			}
		}
		accountID := match.ID
		user = &models.User{
			Email:           email,
			PasswordHash:    hash,
			BrokerAccountID: &accountID,
		}
		if err := r.users.Create(ctx, user); err != nil {
			return nil, fmt.Errorf("failed to create user for recovered account: %w", err)
		}
	} else if !user.HasBrokerAccount() {
		if err := r.users.UpdateBrokerAccountID(ctx, user.ID, match.ID); err != nil {
			return nil, fmt.Errorf("failed to record recovered account id: %w", err)
		}
		accountID := match.ID
		user.BrokerAccountID = &accountID
	}

	return &Resolution{
		Kind:           RecoveredViaSearch,
		AccountID:      match.ID,
		WasPreexisting: true,
		User:           user,
	}, nil
}

// recoverFromStore is the last resort: a previously recorded account id in
// the local user store. Exhaustion is the deliberate terminal
// "account already exists, please log in" state, not a retryable failure.
func (r *Resolver) recoverFromStore(ctx context.Context, email string, existing *models.User) (*Resolution, error) {
	user := existing
	if user == nil {
		var err error
		user, err = r.users.FindByEmail(ctx, email)
		if err != nil {
			return nil, fmt.Errorf("failed to look up user: %w", err)
		}
	}
	if user.HasBrokerAccount() {
		r.logger.Info("recovered brokerage account from local store", "account_id", *user.BrokerAccountID)
		return &Resolution{
			Kind:           RecoveredViaSearch,
			AccountID:      *user.BrokerAccountID,
			WasPreexisting: true,
			User:           user,
		}, nil
	}
	return nil, &ResolutionConflictError{Email: email}
}

// buildAccountRequest maps an onboarding profile to the broker's account
// creation payload, stamping the required legal agreements with the
// submission time and originating address.
func buildAccountRequest(p OnboardingProfile) broker.AccountRequest {
	phone := p.PhoneNumber
	if phone == "" {
		// Sandbox default; the broker requires a phone number.
		phone = "+12025551234"
	}
	signedAt := p.SignedAt.UTC().Format(time.RFC3339)
	agreements := make([]broker.Agreement, 0, 3)
	for _, name := range []string{"customer_agreement", "account_agreement", "margin_agreement"} {
		agreements = append(agreements, broker.Agreement{
			Agreement: name,
			SignedAt:  signedAt,
			IPAddress: p.IPAddress,
		})
	}

	return broker.AccountRequest{
		Contact: broker.Contact{
			EmailAddress:  p.Email,
			PhoneNumber:   phone,
			StreetAddress: []string{p.StreetAddress},
			City:          p.City,
			State:         p.State,
			PostalCode:    p.ZipCode,
			Country:       "USA",
		},
		Identity: broker.Identity{
			GivenName:             p.FirstName,
			FamilyName:            p.LastName,
			DateOfBirth:           p.DateOfBirth,
			TaxID:                 p.TaxID,
			TaxIDType:             "USA_SSN",
			CountryOfCitizenship:  "USA",
			CountryOfBirth:        "USA",
			CountryOfTaxResidence: "USA",
			FundingSource:         []string{"employment_income"},
		},
		Disclosures: broker.Disclosures{},
		Agreements:  agreements,
		Documents:   []any{},
		TrustedContact: broker.TrustedContact{
			GivenName:    p.FirstName,
			FamilyName:   p.LastName,
			EmailAddress: p.Email,
		},
	}
}
