package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yazamuk/stockgift/internal/models"
)

// ClaimAttempts is the gorm-backed claim attempt ledger. A single workflow
// invocation is the only writer of its attempt row, so append is a plain
// read-modify-write.
type ClaimAttempts struct {
	db *gorm.DB
}

// NewClaimAttempts creates a ClaimAttempts repository.
func NewClaimAttempts(db *gorm.DB) *ClaimAttempts {
	return &ClaimAttempts{db: db}
}

// Begin opens a running attempt for the gift and returns its id.
func (a *ClaimAttempts) Begin(ctx context.Context, giftID string) (string, error) {
	attempt := models.ClaimAttempt{
		GiftID: giftID,
		Status: models.ClaimAttemptRunning,
		Steps:  datatypes.JSON([]byte("[]")),
	}
	if err := a.db.WithContext(ctx).Create(&attempt).Error; err != nil {
		return "", fmt.Errorf("failed to create claim attempt: %w", err)
	}
	return attempt.ID, nil
}

// AppendStep appends a committed step to the attempt's ledger.
func (a *ClaimAttempts) AppendStep(ctx context.Context, attemptID, step, detail string) error {
	var attempt models.ClaimAttempt
	if err := a.db.WithContext(ctx).First(&attempt, "id = ?", attemptID).Error; err != nil {
		return fmt.Errorf("failed to fetch claim attempt: %w", err)
	}

	var steps []models.ClaimStep
	if len(attempt.Steps) > 0 {
		if err := json.Unmarshal(attempt.Steps, &steps); err != nil {
			return fmt.Errorf("failed to decode claim steps: %w", err)
		}
	}
	steps = append(steps, models.ClaimStep{
		Step:   step,
		Detail: detail,
		At:     time.Now().UTC(),
	})

	encoded, err := json.Marshal(steps)
	if err != nil {
		return fmt.Errorf("failed to encode claim steps: %w", err)
	}
	if err := a.db.WithContext(ctx).
		Model(&attempt).
		Update("steps", datatypes.JSON(encoded)).Error; err != nil {
		return fmt.Errorf("failed to update claim steps: %w", err)
	}
	return nil
}

// Finish closes the attempt with its terminal status.
func (a *ClaimAttempts) Finish(ctx context.Context, attemptID, status, errorMessage string) error {
	if err := a.db.WithContext(ctx).
		Model(&models.ClaimAttempt{}).
		Where("id = ?", attemptID).
		Updates(map[string]interface{}{
			"status":        status,
			"error_message": errorMessage,
		}).Error; err != nil {
		return fmt.Errorf("failed to finish claim attempt: %w", err)
	}
	return nil
}
