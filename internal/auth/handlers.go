package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/yazamuk/stockgift/internal/models"
)

// RegisterInput is the signup payload. BrokerAccountID is set when a user
// registers after claiming a gift on a device where the claim flow could not
// issue a session.
type RegisterInput struct {
	Email           string `json:"email" binding:"required,email"`
	Password        string `json:"password" binding:"required,min=6"`
	BrokerAccountID string `json:"brokerAccountId"`
}

// LoginInput is the login payload.
type LoginInput struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// CheckUserInput asks whether an email is already registered.
type CheckUserInput struct {
	Email string `json:"email" binding:"required"`
}

// RegisterHandler creates a user, links any gifts already claimed under the
// same email and account, and starts a session.
func RegisterHandler(db *gorm.DB, sessions *Sessions) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input RegisterInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		var existing models.User
		err := db.Where("email = ?", input.Email).First(&existing).Error
		if err == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "User with this email already exists"})
			return
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
			return
		}

		hash, err := HashPassword(input.Password)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
			return
		}

		user := models.User{Email: input.Email, PasswordHash: hash}
		if input.BrokerAccountID != "" {
			user.BrokerAccountID = &input.BrokerAccountID
		}
		if err := db.Create(&user).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
			return
		}

		// Adopt gifts that were claimed into this account before the
		// user record existed.
		if input.BrokerAccountID != "" {
			db.Model(&models.Gift{}).
				Where("recipient_email = ? AND broker_account_id = ?", input.Email, input.BrokerAccountID).
				Update("user_id", user.ID)
		}

		token, err := sessions.Issue(user.ID, user.Email)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue session"})
			return
		}
		sessions.SetCookie(c, token)

		c.JSON(http.StatusCreated, gin.H{
			"success": true,
			"user":    userJSON(&user),
		})
	}
}

// LoginHandler verifies credentials and starts a session.
func LoginHandler(db *gorm.DB, sessions *Sessions) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input LoginInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		var user models.User
		if err := db.Where("email = ?", input.Email).First(&user).Error; err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}

		// Users discovered via broker search carry a placeholder hash no
		// one knows; they fail here until they set a real password.
		if user.PasswordHash == "" || !CheckPassword(user.PasswordHash, input.Password) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}

		token, err := sessions.Issue(user.ID, user.Email)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue session"})
			return
		}
		sessions.SetCookie(c, token)

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"user":    userJSON(&user),
		})
	}
}

// LogoutHandler clears the session cookie.
func LogoutHandler(sessions *Sessions) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessions.ClearCookie(c)
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// MeHandler returns the authenticated user.
func MeHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := c.Get("user_id")
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		var user models.User
		if err := db.First(&user, userID.(uint)).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": userJSON(&user)})
	}
}

// CheckUserHandler reports whether an email is registered and whether it is
// already bound to a brokerage account; the claim page uses this to decide
// between the full onboarding form and the short returning-claimant form.
func CheckUserHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input CheckUserInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		var user models.User
		err := db.Where("email = ?", input.Email).First(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusOK, gin.H{"exists": false, "hasBrokerAccount": false})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"exists":           true,
			"hasBrokerAccount": user.HasBrokerAccount(),
		})
	}
}

func userJSON(user *models.User) gin.H {
	var accountID any
	if user.BrokerAccountID != nil {
		accountID = *user.BrokerAccountID
	}
	return gin.H{
		"id":              user.ID,
		"email":           user.Email,
		"brokerAccountId": accountID,
	}
}
