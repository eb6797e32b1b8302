// Package gifts exposes the gift creation, lookup and claim HTTP endpoints.
package gifts

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/yazamuk/stockgift/internal/auth"
	"github.com/yazamuk/stockgift/internal/claim"
	"github.com/yazamuk/stockgift/internal/models"
)

// GiftRepository is the persistence the handlers need. *store.Gifts
// satisfies it.
type GiftRepository interface {
	Create(ctx context.Context, gift *models.Gift) error
	FindByID(ctx context.Context, id string) (*models.Gift, error)
}

// Claimer runs the gift-claim workflow. *claim.Workflow satisfies it.
type Claimer interface {
	Claim(ctx context.Context, req claim.ClaimRequest) (*claim.ClaimResult, error)
}

// NotificationEnqueuer enqueues the recipient notification task for a gift.
type NotificationEnqueuer func(giftID string) error

// CreateGiftRequest is the gift creation payload. The recipient email is
// optional; a placeholder is synthesized from the mobile number when absent.
type CreateGiftRequest struct {
	SenderName      string `json:"senderName" binding:"required"`
	SenderMobile    string `json:"senderMobile" binding:"required"`
	RecipientName   string `json:"receiverName" binding:"required"`
	RecipientEmail  string `json:"receiverEmail"`
	RecipientMobile string `json:"receiverMobile" binding:"required"`
	Amount          string `json:"amount" binding:"required"`
	StockSymbol     string `json:"stockSymbol" binding:"required"`
}

// ClaimGiftRequest is the claim payload. Onboarding fields are required only
// for claimants without an existing linked brokerage account.
type ClaimGiftRequest struct {
	GiftID        string `json:"giftId" binding:"required"`
	FirstName     string `json:"firstName"`
	LastName      string `json:"lastName"`
	Email         string `json:"email"`
	DateOfBirth   string `json:"dateOfBirth"`
	TaxID         string `json:"taxId"`
	StreetAddress string `json:"streetAddress"`
	City          string `json:"city"`
	State         string `json:"state"`
	ZipCode       string `json:"zipCode"`
	Password      string `json:"password"`
}

// CreateGiftHandler validates and persists a new PENDING gift, then enqueues
// the recipient notification. Payment is mocked as successful at creation,
// and a notification failure never fails the gift.
func CreateGiftHandler(repo GiftRepository, enqueue NotificationEnqueuer, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateGiftRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields"})
			return
		}

		amount, err := decimal.NewFromString(req.Amount)
		if err != nil || !amount.IsPositive() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Amount must be a positive number"})
			return
		}
		if !models.IsAllowedSymbol(req.StockSymbol) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Stock symbol is not giftable"})
			return
		}

		email := req.RecipientEmail
		if email == "" {
			email = models.PlaceholderRecipientEmail(req.RecipientMobile)
		}

		gift := models.Gift{
			SenderName:      req.SenderName,
			SenderMobile:    req.SenderMobile,
			RecipientName:   req.RecipientName,
			RecipientEmail:  email,
			RecipientMobile: req.RecipientMobile,
			Amount:          amount,
			StockSymbol:     req.StockSymbol,
			Status:          models.GiftStatusPending,
		}
		if err := repo.Create(c.Request.Context(), &gift); err != nil {
			logger.Error("failed to create gift", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create gift"})
			return
		}

		// Fire-and-forget: the recipient nudge must never fail creation.
		if err := enqueue(gift.ID); err != nil {
			logger.Warn("failed to enqueue gift notification", "gift_id", gift.ID, "error", err)
		}

		c.JSON(http.StatusOK, gin.H{"giftId": gift.ID})
	}
}

// GetGiftHandler returns a gift by id, backing the claim page.
func GetGiftHandler(repo GiftRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		gift, err := repo.FindByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch gift"})
			return
		}
		if gift == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Gift not found"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"id":             gift.ID,
			"senderName":     gift.SenderName,
			"receiverName":   gift.RecipientName,
			"receiverEmail":  gift.RecipientEmail,
			"receiverMobile": gift.RecipientMobile,
			"amount":         gift.Amount.StringFixed(2),
			"stockSymbol":    gift.StockSymbol,
			"status":         gift.Status,
		})
	}
}

// ClaimGiftHandler drives the claim workflow and maps its error taxonomy to
// HTTP responses: one human-readable message per failure kind, with the
// richer operator diagnostics in the details field.
func ClaimGiftHandler(claimer Claimer, sessions *auth.Sessions, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ClaimGiftRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields"})
			return
		}

		result, err := claimer.Claim(c.Request.Context(), claim.ClaimRequest{
			GiftID:        req.GiftID,
			FirstName:     req.FirstName,
			LastName:      req.LastName,
			Email:         req.Email,
			DateOfBirth:   req.DateOfBirth,
			TaxID:         req.TaxID,
			StreetAddress: req.StreetAddress,
			City:          req.City,
			State:         req.State,
			ZipCode:       req.ZipCode,
			Password:      req.Password,
			ClientIP:      c.ClientIP(),
		})
		if err != nil {
			status, payload := claimErrorResponse(err)
			c.JSON(status, payload)
			return
		}

		response := gin.H{
			"success":        true,
			"accountId":      result.AccountID,
			"isExistingUser": result.IsExistingUser,
		}
		if result.SessionEligible {
			token, err := sessions.Issue(result.User.ID, result.User.Email)
			if err != nil {
				// The claim itself succeeded; report it rather than
				// failing over a login convenience.
				logger.Error("failed to issue session after claim", "user_id", result.User.ID, "error", err)
			} else {
				sessions.SetCookie(c, token)
				response["token"] = token
			}
		}

		c.JSON(http.StatusOK, response)
	}
}

func claimErrorResponse(err error) (int, gin.H) {
	var (
		validationErr *claim.ValidationError
		configErr     *claim.ConfigError
		authErr       *claim.AuthError
		conflictErr   *claim.ResolutionConflictError
		inactiveErr   *claim.AccountInactiveError
		activationErr *claim.ActivationTimeoutError
		fundingErr    *claim.FundingError
		settlementErr *claim.SettlementTimeoutError
		orderErr      *claim.OrderError
	)

	switch {
	case errors.Is(err, claim.ErrGiftNotFound):
		return http.StatusNotFound, gin.H{"error": "Gift not found"}
	case errors.Is(err, claim.ErrGiftAlreadyClaimed):
		return http.StatusBadRequest, gin.H{"error": "Gift has already been claimed"}
	case errors.Is(err, claim.ErrClaimInProgress):
		return http.StatusConflict, gin.H{"error": "This gift is being claimed right now, please try again shortly"}
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, gin.H{"error": validationErr.Reason}
	case errors.As(err, &conflictErr):
		return http.StatusBadRequest, gin.H{
			"error":   "An account with this email already exists. Please log in to access your portfolio.",
			"details": "If you already claimed a gift, use the login page to access your account.",
		}
	case errors.As(err, &inactiveErr):
		return http.StatusBadRequest, gin.H{
			"error":   "Account is not active",
			"details": inactiveErr.Error(),
		}
	case errors.As(err, &configErr):
		return http.StatusInternalServerError, gin.H{
			"error":   "Missing broker API credentials",
			"details": configErr.Error(),
		}
	case errors.As(err, &authErr):
		return http.StatusInternalServerError, gin.H{
			"error":   "Failed to authenticate with broker",
			"details": authErr.Detail,
		}
	case errors.As(err, &activationErr):
		return http.StatusInternalServerError, gin.H{
			"error":   "Account did not become active in time",
			"details": activationErr.Error(),
		}
	case errors.As(err, &settlementErr):
		return http.StatusInternalServerError, gin.H{
			"error":   "Insufficient buying power after journal",
			"details": settlementErr.Error(),
		}
	case errors.As(err, &fundingErr):
		return http.StatusInternalServerError, gin.H{"error": fundingErr.Error()}
	case errors.As(err, &orderErr):
		return http.StatusInternalServerError, gin.H{"error": orderErr.Error()}
	default:
		return http.StatusInternalServerError, gin.H{"error": "Failed to claim gift"}
	}
}
