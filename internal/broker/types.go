// Package broker is a typed HTTP client for the brokerage's Broker API:
// OAuth token issuance, account creation/lookup/search, cash journals and
// order submission. It performs no retries; polling and recovery policy
// belong to the claim workflow that drives it.
package broker

import (
	"github.com/shopspring/decimal"
)

// Account status values reported by the broker. ACTIVE is the terminal
// state the claim workflow waits for.
const (
	AccountStatusActive    = "ACTIVE"
	AccountStatusSubmitted = "SUBMITTED"
)

// Token is a short-lived OAuth access credential.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Contact carries the account holder's contact details.
type Contact struct {
	EmailAddress  string   `json:"email_address"`
	PhoneNumber   string   `json:"phone_number"`
	StreetAddress []string `json:"street_address"`
	City          string   `json:"city"`
	State         string   `json:"state"`
	PostalCode    string   `json:"postal_code"`
	Country       string   `json:"country"`
}

// Identity carries the account holder's identity details.
type Identity struct {
	GivenName             string   `json:"given_name"`
	FamilyName            string   `json:"family_name"`
	DateOfBirth           string   `json:"date_of_birth"`
	TaxID                 string   `json:"tax_id"`
	TaxIDType             string   `json:"tax_id_type"`
	CountryOfCitizenship  string   `json:"country_of_citizenship"`
	CountryOfBirth        string   `json:"country_of_birth"`
	CountryOfTaxResidence string   `json:"country_of_tax_residence"`
	FundingSource         []string `json:"funding_source"`
}

// Disclosures carries the regulatory disclosure answers.
type Disclosures struct {
	IsControlPerson             bool `json:"is_control_person"`
	IsAffiliatedExchangeOrFINRA bool `json:"is_affiliated_exchange_or_finra"`
	IsPoliticallyExposed        bool `json:"is_politically_exposed"`
	ImmediateFamilyExposed      bool `json:"immediate_family_exposed"`
}

// Agreement records a legal agreement signed at submission time, with the
// originating IP address the broker requires.
type Agreement struct {
	Agreement string `json:"agreement"`
	SignedAt  string `json:"signed_at"`
	IPAddress string `json:"ip_address"`
}

// TrustedContact is the account's emergency contact.
type TrustedContact struct {
	GivenName    string `json:"given_name"`
	FamilyName   string `json:"family_name"`
	EmailAddress string `json:"email_address"`
}

// AccountRequest is the onboarding payload for account creation.
type AccountRequest struct {
	Contact        Contact        `json:"contact"`
	Identity       Identity       `json:"identity"`
	Disclosures    Disclosures    `json:"disclosures"`
	Agreements     []Agreement    `json:"agreements"`
	Documents      []any          `json:"documents"`
	TrustedContact TrustedContact `json:"trusted_contact"`
}

// Account is a brokerage account as returned by the accounts endpoints.
type Account struct {
	ID         string  `json:"id"`
	Status     string  `json:"status"`
	Contact    Contact `json:"contact"`
	LastEquity string  `json:"last_equity"`
}

// TradingAccount is the trading view of an account, carrying the settled
// buying-power figures the funding orchestrator polls for.
type TradingAccount struct {
	ID          string `json:"id"`
	BuyingPower string `json:"buying_power"`
	Cash        string `json:"cash"`
	Equity      string `json:"equity"`
}

// AvailableBuyingPower reads whichever of buying-power/cash/equity the broker
// populated, in that preference order.
func (t *TradingAccount) AvailableBuyingPower() decimal.Decimal {
	return firstDecimal(t.BuyingPower, t.Cash, t.Equity)
}

// AvailableBuyingPower is the fallback read for the non-trading account
// endpoint, which only exposes last equity.
func (a *Account) AvailableBuyingPower() decimal.Decimal {
	return firstDecimal(a.LastEquity)
}

func firstDecimal(candidates ...string) decimal.Decimal {
	for _, s := range candidates {
		if s == "" {
			continue
		}
		if d, err := decimal.NewFromString(s); err == nil {
			return d
		}
	}
	return decimal.Zero
}

// JournalRequest moves cash between two brokerage accounts.
type JournalRequest struct {
	EntryType   string `json:"entry_type"` // "JNLC" for cash
	FromAccount string `json:"from_account"`
	ToAccount   string `json:"to_account"`
	Amount      string `json:"amount"`
}

// Journal is a submitted journal instruction.
type Journal struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// OrderRequest is a notional order submission.
type OrderRequest struct {
	Symbol      string `json:"symbol"`
	Notional    string `json:"notional"`
	Side        string `json:"side"`
	Type        string `json:"type"`
	TimeInForce string `json:"time_in_force"`
}

// Order is a submitted order as returned by the orders endpoints.
type Order struct {
	ID          string `json:"id"`
	Symbol      string `json:"symbol"`
	Notional    string `json:"notional"`
	Side        string `json:"side"`
	Type        string `json:"type"`
	TimeInForce string `json:"time_in_force"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
	FilledAt    string `json:"filled_at"`
	FilledQty   string `json:"filled_qty"`
}
