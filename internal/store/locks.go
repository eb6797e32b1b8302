package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// claimLockTTL must comfortably exceed the worst-case workflow duration
// (activation wait + settlement wait, roughly 80s) so a live claim never
// loses its lock, while still expiring abandoned locks from crashed workers.
const claimLockTTL = 3 * time.Minute

// ClaimLocks provides per-gift mutual exclusion via redis SETNX, so two
// concurrent claims of the same gift cannot both race past the PENDING
// status check.
type ClaimLocks struct {
	rdb *redis.Client
}

// NewClaimLocks creates a ClaimLocks from a redis URL.
func NewClaimLocks(redisURL string) (*ClaimLocks, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	return &ClaimLocks{rdb: redis.NewClient(opts)}, nil
}

// Acquire takes the gift's claim lock. Returns false when another claim
// already holds it.
func (l *ClaimLocks) Acquire(ctx context.Context, giftID string) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, lockKey(giftID), "1", claimLockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire claim lock: %w", err)
	}
	return ok, nil
}

// Release frees the gift's claim lock.
func (l *ClaimLocks) Release(ctx context.Context, giftID string) error {
	if err := l.rdb.Del(ctx, lockKey(giftID)).Err(); err != nil {
		return fmt.Errorf("failed to release claim lock: %w", err)
	}
	return nil
}

// Close closes the redis connection.
func (l *ClaimLocks) Close() error {
	return l.rdb.Close()
}

func lockKey(giftID string) string {
	return "gift:claim:" + giftID
}
