package models

import (
	"gorm.io/gorm"
)

// User is a platform identity optionally bound to a brokerage account.
// Email is the natural key for brokerage-account deduplication. PasswordHash
// may be empty: a user discovered through broker-side search exists before
// they ever set a credential.
type User struct {
	gorm.Model
	Email           string `gorm:"uniqueIndex:idx_users_email_not_deleted,where:deleted_at IS NULL;not null"`
	PasswordHash    string `gorm:"type:text"`
	BrokerAccountID *string
}

// HasBrokerAccount reports whether the user is fully onboarded with the broker.
func (u *User) HasBrokerAccount() bool {
	return u != nil && u.BrokerAccountID != nil && *u.BrokerAccountID != ""
}
