// Package store provides the gorm- and redis-backed implementations of the
// claim workflow's persistence interfaces.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/yazamuk/stockgift/internal/claim"
	"github.com/yazamuk/stockgift/internal/models"
)

// Gifts is the gorm-backed gift repository.
type Gifts struct {
	db *gorm.DB
}

// NewGifts creates a Gifts repository.
func NewGifts(db *gorm.DB) *Gifts {
	return &Gifts{db: db}
}

// Create persists a new gift.
func (g *Gifts) Create(ctx context.Context, gift *models.Gift) error {
	if err := g.db.WithContext(ctx).Create(gift).Error; err != nil {
		return fmt.Errorf("failed to create gift: %w", err)
	}
	return nil
}

// FindByID returns the gift, or (nil, nil) when none exists.
func (g *Gifts) FindByID(ctx context.Context, id string) (*models.Gift, error) {
	var gift models.Gift
	err := g.db.WithContext(ctx).Where("id = ?", id).First(&gift).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch gift: %w", err)
	}
	return &gift, nil
}

// MarkCompleted links the gift to its account and user and moves it to
// COMPLETED, conditional on it still being PENDING. The WHERE clause is the
// compare-and-swap that makes the transition happen at most once even if two
// claimers raced past the earlier status check.
func (g *Gifts) MarkCompleted(ctx context.Context, giftID, accountID string, userID uint) error {
	result := g.db.WithContext(ctx).
		Model(&models.Gift{}).
		Where("id = ? AND status = ?", giftID, models.GiftStatusPending).
		Updates(map[string]interface{}{
			"status":            models.GiftStatusCompleted,
			"broker_account_id": accountID,
			"user_id":           userID,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to complete gift: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return claim.ErrGiftAlreadyClaimed
	}
	return nil
}

// ListStalePending returns PENDING gifts created before cutoff that have not
// yet received a reminder nudge.
func (g *Gifts) ListStalePending(ctx context.Context, cutoff time.Time) ([]models.Gift, error) {
	var gifts []models.Gift
	err := g.db.WithContext(ctx).
		Where("status = ? AND created_at < ? AND reminded_at IS NULL", models.GiftStatusPending, cutoff).
		Find(&gifts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list stale gifts: %w", err)
	}
	return gifts, nil
}

// MarkReminded stamps the gift as having received its reminder.
func (g *Gifts) MarkReminded(ctx context.Context, giftID string, at time.Time) error {
	if err := g.db.WithContext(ctx).
		Model(&models.Gift{}).
		Where("id = ?", giftID).
		Update("reminded_at", at).Error; err != nil {
		return fmt.Errorf("failed to mark gift reminded: %w", err)
	}
	return nil
}
