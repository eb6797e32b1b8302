package worker

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

// Task type constants
const (
	TaskNotifyGift    = "notify:gift"
	TaskGiftReminders = "gift:reminders"
)

// Package-level Asynq client (singleton)
var client *asynq.Client

// InitClient initializes the global Asynq client for task enqueueing.
// Must be called before any EnqueueX functions.
func InitClient(redisURL string) error {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return err
	}

	client = asynq.NewClient(opt)
	return nil
}

// CloseClient closes the Asynq client connection gracefully.
func CloseClient() error {
	if client != nil {
		return client.Close()
	}
	return nil
}

// EnqueueGiftNotification enqueues the recipient WhatsApp notification for a
// freshly created gift. Retries on transport failures; a gift that
// disappears before delivery is skipped, not retried.
func EnqueueGiftNotification(giftID string) error {
	payload, err := json.Marshal(map[string]string{
		"gift_id": giftID,
	})
	if err != nil {
		return err
	}

	task := asynq.NewTask(
		TaskNotifyGift,
		payload,
		asynq.MaxRetry(5),
		asynq.Timeout(time.Minute),
		asynq.Retention(24*time.Hour),
	)

	_, err = client.Enqueue(task)
	return err
}
