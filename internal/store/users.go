package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/yazamuk/stockgift/internal/models"
)

// Users is the gorm-backed user repository.
type Users struct {
	db *gorm.DB
}

// NewUsers creates a Users repository.
func NewUsers(db *gorm.DB) *Users {
	return &Users{db: db}
}

// FindByEmail returns the user, or (nil, nil) when none exists.
func (u *Users) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := u.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}
	return &user, nil
}

// Create persists a new user.
func (u *Users) Create(ctx context.Context, user *models.User) error {
	if err := u.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// UpdateBrokerAccountID records a newly learned brokerage account id.
func (u *Users) UpdateBrokerAccountID(ctx context.Context, userID uint, accountID string) error {
	if err := u.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("broker_account_id", accountID).Error; err != nil {
		return fmt.Errorf("failed to update user account id: %w", err)
	}
	return nil
}
