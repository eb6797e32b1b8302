package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"gorm.io/gorm"

	"github.com/yazamuk/stockgift/internal/config"
	"github.com/yazamuk/stockgift/internal/logging"
	"github.com/yazamuk/stockgift/internal/models"
	"github.com/yazamuk/stockgift/internal/notify"
	"github.com/yazamuk/stockgift/internal/store"
)

// asynqLoggerAdapter wraps slog.Logger to implement asynq.Logger interface
type asynqLoggerAdapter struct {
	logger *slog.Logger
}

func (a *asynqLoggerAdapter) Debug(args ...interface{}) {
	a.logger.Debug(fmt.Sprint(args...))
}

func (a *asynqLoggerAdapter) Info(args ...interface{}) {
	a.logger.Info(fmt.Sprint(args...))
}

func (a *asynqLoggerAdapter) Warn(args ...interface{}) {
	a.logger.Warn(fmt.Sprint(args...))
}

func (a *asynqLoggerAdapter) Error(args ...interface{}) {
	a.logger.Error(fmt.Sprint(args...))
}

func (a *asynqLoggerAdapter) Fatal(args ...interface{}) {
	a.logger.Error(fmt.Sprint(args...))
	panic(fmt.Sprint(args...))
}

// Run starts the Asynq worker server and blocks until shutdown signal.
// Use this for standalone worker mode.
func Run(cfg *config.Config, db *gorm.DB, notifier *notify.Client) error {
	srv, mux, err := newServer(cfg, db, notifier)
	if err != nil {
		return err
	}
	return srv.Run(mux)
}

// Start starts the Asynq worker in non-blocking mode and returns a stop
// function. Use this for embedded mode so the caller can coordinate shutdown.
func Start(cfg *config.Config, db *gorm.DB, notifier *notify.Client) (stop func(), err error) {
	srv, mux, err := newServer(cfg, db, notifier)
	if err != nil {
		return nil, err
	}
	if err := srv.Start(mux); err != nil {
		return nil, fmt.Errorf("failed to start worker: %w", err)
	}
	return func() { srv.Shutdown() }, nil
}

func newServer(cfg *config.Config, db *gorm.DB, notifier *notify.Client) (*asynq.Server, *asynq.ServeMux, error) {
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency:     5,
			ShutdownTimeout: 30 * time.Second,
			ErrorHandler:    asynq.ErrorHandlerFunc(makeErrorHandler(logger)),
			Logger:          &asynqLoggerAdapter{logger: logger},
		},
	)

	gifts := store.NewGifts(db)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskNotifyGift, handleNotifyGift(logger, gifts, notifier, cfg.PublicBaseURL))
	mux.HandleFunc(TaskGiftReminders, handleGiftReminders(logger, gifts, notifier, cfg))

	logger.Info("Worker starting", "concurrency", 5, "redis", cfg.RedisURL)
	return srv, mux, nil
}

// handleNotifyGift sends the recipient their claim link over WhatsApp.
func handleNotifyGift(logger *slog.Logger, gifts *store.Gifts, notifier *notify.Client, baseURL string) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, task *asynq.Task) error {
		var payload struct {
			GiftID string `json:"gift_id"`
		}
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			// Invalid payload - don't retry
			return fmt.Errorf("invalid payload: %w", asynq.SkipRetry)
		}

		gift, err := gifts.FindByID(ctx, payload.GiftID)
		if err != nil {
			// Database error - retryable
			return fmt.Errorf("failed to fetch gift: %w", err)
		}
		if gift == nil {
			logger.Error("Gift not found for notification", "gift_id", payload.GiftID)
			return fmt.Errorf("gift not found: %w", asynq.SkipRetry)
		}

		// A gift claimed between enqueue and delivery needs no nudge.
		if gift.Status != models.GiftStatusPending {
			logger.Info("Gift no longer pending, skipping notification", "gift_id", gift.ID)
			return nil
		}

		logger.Info("Sending gift notification",
			"gift_id", gift.ID,
			"recipient", gift.RecipientMobile,
		)

		message := giftMessage(gift, baseURL)
		if err := notifier.Send(ctx, gift.RecipientMobile, message, stockImageURL(gift.StockSymbol, baseURL)); err != nil {
			// Transport failure - retryable
			return fmt.Errorf("failed to send notification: %w", err)
		}

		return nil
	}
}

// handleGiftReminders re-nudges recipients of gifts that have sat unclaimed
// past the configured age. Each gift gets at most one reminder.
func handleGiftReminders(logger *slog.Logger, gifts *store.Gifts, notifier *notify.Client, cfg *config.Config) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, task *asynq.Task) error {
		cutoff := time.Now().Add(-cfg.ReminderAfter)

		stale, err := gifts.ListStalePending(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("failed to list stale gifts: %w", err)
		}

		if len(stale) == 0 {
			return nil
		}
		logger.Info("Sending gift claim reminders", "count", len(stale))

		var failed int
		for i := range stale {
			gift := &stale[i]
			message := reminderMessage(gift, cfg.PublicBaseURL)
			if err := notifier.Send(ctx, gift.RecipientMobile, message, ""); err != nil {
				logger.Warn("Failed to send reminder", "gift_id", gift.ID, "error", err)
				failed++
				continue
			}
			if err := gifts.MarkReminded(ctx, gift.ID, time.Now()); err != nil {
				logger.Warn("Failed to stamp reminder", "gift_id", gift.ID, "error", err)
			}
		}

		if failed > 0 {
			// Retryable: unstamped gifts are picked up again next run.
			return fmt.Errorf("%d of %d reminders failed", failed, len(stale))
		}
		return nil
	}
}

func giftMessage(gift *models.Gift, baseURL string) string {
	claimURL := fmt.Sprintf("%s/claim/%s", strings.TrimRight(baseURL, "/"), gift.ID)
	return fmt.Sprintf(
		"🎁 You received a gift from %s!\n\n%s gifted you $%s worth of %s stock!\n\nClaim your gift here: %s",
		gift.SenderName, gift.SenderName, gift.Amount.StringFixed(2), gift.StockSymbol, claimURL,
	)
}

func reminderMessage(gift *models.Gift, baseURL string) string {
	claimURL := fmt.Sprintf("%s/claim/%s", strings.TrimRight(baseURL, "/"), gift.ID)
	return fmt.Sprintf(
		"⏰ Reminder: %s gifted you $%s of %s stock and it's still waiting for you!\n\nClaim it here: %s",
		gift.SenderName, gift.Amount.StringFixed(2), gift.StockSymbol, claimURL,
	)
}

// stockImageURL returns the public image for a symbol, or empty when the
// base URL is not publicly reachable (Twilio cannot fetch localhost media).
func stockImageURL(symbol, baseURL string) string {
	if strings.Contains(baseURL, "localhost") || strings.Contains(baseURL, "127.0.0.1") {
		return ""
	}
	return fmt.Sprintf("%s/images/%s.png", strings.TrimRight(baseURL, "/"), strings.ToLower(symbol))
}

// makeErrorHandler creates an error handler function with logger closure.
func makeErrorHandler(logger *slog.Logger) func(context.Context, *asynq.Task, error) {
	return func(ctx context.Context, task *asynq.Task, err error) {
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)

		logger.Error(
			"Task execution failed",
			"task_type", task.Type(),
			"error", err.Error(),
			"retry_count", retried,
			"max_retry", maxRetry,
		)

		if retried >= maxRetry {
			logger.Error(
				"Task moved to dead letter queue (all retries exhausted)",
				"task_type", task.Type(),
				"payload", string(task.Payload()),
			)
		}
	}
}
