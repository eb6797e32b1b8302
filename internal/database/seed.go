package database

import (
	"log/slog"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/yazamuk/stockgift/internal/auth"
	"github.com/yazamuk/stockgift/internal/models"
)

// SeedDevData populates the database with development test data.
// Idempotent: skips if data already exists.
func SeedDevData(db *gorm.DB) error {
	var existingUser models.User
	result := db.Where("email = ?", "dev@stockgift.local").First(&existingUser)
	if result.Error == nil {
		slog.Info("Seed data already exists, skipping")
		return nil
	}

	hash, err := auth.HashPassword("devpassword")
	if err != nil {
		return err
	}
	user := models.User{
		Email:        "dev@stockgift.local",
		PasswordHash: hash,
	}
	if err := db.Create(&user).Error; err != nil {
		return err
	}

	// A pending gift to exercise the claim flow end to end in sandbox
	gift := models.Gift{
		SenderName:      "Dev Sender",
		SenderMobile:    "+12025550100",
		RecipientName:   "Dev Recipient",
		RecipientEmail:  "dev@stockgift.local",
		RecipientMobile: "+12025550101",
		Amount:          decimal.NewFromFloat(119.98),
		StockSymbol:     "TSLA",
		Status:          models.GiftStatusPending,
	}
	if err := db.Create(&gift).Error; err != nil {
		return err
	}

	slog.Info("Seeded dev data", "user", user.Email, "gift_id", gift.ID)
	return nil
}
