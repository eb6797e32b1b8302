// Package orders exposes the per-account order listing endpoint backing the
// portfolio page.
package orders

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yazamuk/stockgift/internal/broker"
)

// OrderLister is the slice of the broker client the handler needs.
// *broker.Client satisfies it.
type OrderLister interface {
	Authenticate(ctx context.Context) (*broker.Token, error)
	ListOrders(ctx context.Context, accessToken, accountID, status string) ([]broker.Order, error)
}

// ListOrdersHandler proxies the broker's order list for an account,
// optionally filtered by ?status=open|closed (default all).
func ListOrdersHandler(api OrderLister, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID := c.Param("accountId")
		if accountID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Account ID is required"})
			return
		}
		status := c.DefaultQuery("status", "all")

		ctx := c.Request.Context()
		token, err := api.Authenticate(ctx)
		if err != nil {
			if errors.Is(err, broker.ErrMissingCredentials) {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Missing broker API credentials"})
				return
			}
			logger.Error("broker authentication failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to authenticate with broker"})
			return
		}

		orders, err := api.ListOrders(ctx, token.AccessToken, accountID, status)
		if err != nil {
			logger.Error("failed to list orders", "account_id", accountID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch orders"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"orders": orders})
	}
}
