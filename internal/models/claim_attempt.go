package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Claim attempt status constants
const (
	ClaimAttemptRunning   = "running"
	ClaimAttemptCompleted = "completed"
	ClaimAttemptAborted   = "aborted"
)

// ClaimAttempt is the per-claim ledger of committed external steps. The
// workflow appends an entry after each brokerage side effect (account
// created, cash journaled, order placed) so that an operator can reconcile
// a partial failure: a journal that succeeded before an order failed is not
// reversed automatically, but it is always on record here.
type ClaimAttempt struct {
	ID           string         `gorm:"type:uuid;primaryKey"`
	GiftID       string         `gorm:"not null;index"`
	Status       string         `gorm:"not null;default:'running';index"`
	Steps        datatypes.JSON `gorm:"type:jsonb"`
	ErrorMessage string         `gorm:"type:text"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ClaimStep is a single entry in a ClaimAttempt's Steps ledger.
type ClaimStep struct {
	Step   string    `json:"step"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}

// BeforeCreate assigns a UUID primary key when none was supplied.
func (a *ClaimAttempt) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
