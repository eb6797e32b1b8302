package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Gift status constants
const (
	GiftStatusPending   = "PENDING"
	GiftStatusCompleted = "COMPLETED"
)

// allowedSymbols is the fixed set of stocks a gift can be pledged against.
var allowedSymbols = map[string]bool{
	"TSLA": true,
	"AAPL": true,
	"NVDA": true,
}

// IsAllowedSymbol reports whether symbol is on the giftable allow-list.
func IsAllowedSymbol(symbol string) bool {
	return allowedSymbols[strings.ToUpper(symbol)]
}

// Gift represents a pledged transfer of money-as-stock from sender to
// recipient. Created PENDING; moved to COMPLETED exactly once by the claim
// workflow, at which point both BrokerAccountID and UserID must be set.
type Gift struct {
	ID              string          `gorm:"type:uuid;primaryKey"`
	SenderName      string          `gorm:"not null"`
	SenderMobile    string          `gorm:"not null"`
	RecipientName   string          `gorm:"not null"`
	RecipientEmail  string          `gorm:"not null;index"` // may be a synthesized placeholder
	RecipientMobile string          `gorm:"not null"`
	Amount          decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	StockSymbol     string          `gorm:"not null"`
	Status          string          `gorm:"not null;default:'PENDING';index"`
	BrokerAccountID *string
	UserID          *uint
	RemindedAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// BeforeCreate assigns a UUID primary key when none was supplied.
func (g *Gift) BeforeCreate(tx *gorm.DB) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	return nil
}

// PlaceholderRecipientEmail synthesizes a deterministic, non-routable email
// address from a phone number, used when a gift is created with only a mobile
// number for the recipient. Normalizing to digits keeps the key stable across
// formatting variants of the same number, and the RFC 2606 .invalid TLD
// guarantees the address can never be registered or delivered to.
func PlaceholderRecipientEmail(mobile string) string {
	var digits strings.Builder
	for _, r := range mobile {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	return digits.String() + "@gift.invalid"
}
