package shared

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"
)

// ErrLockBusy indicates the critical section is held by another worker.
var ErrLockBusy = errors.New("shared: lock busy")

// Locker serialises cross-process critical sections on redis.
type Locker struct {
	client *redislock.Client
	ttl    time.Duration
}

// NewLocker wraps a redis client with redislock.
func NewLocker(rdb redis.UniversalClient, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &Locker{client: redislock.New(rdb), ttl: ttl}
}

// WithLock runs fn while holding the named lock. Acquisition uses a short
// exponential backoff; a still-held lock surfaces ErrLockBusy.
func (l *Locker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if l == nil {
		return fn(ctx)
	}
	lock, err := l.client.Obtain(ctx, key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.ExponentialBackoff(50*time.Millisecond, 1*time.Second), 5),
	})
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return ErrLockBusy
		}
		return fmt.Errorf("shared: obtain lock %s: %w", key, err)
	}
	defer func() {
		_ = lock.Release(context.WithoutCancel(ctx))
	}()
	return fn(ctx)
}

// PeriodCloseLockKey names the critical section for closing a channel period.
func PeriodCloseLockKey(channelID int64) string {
	return fmt.Sprintf("ledger:period:%d:close", channelID)
}

// AllocationLockKey names the critical section for batch consumption of one
// (channel, location, variant) stock bucket. The tuple is digested so keys
// stay bounded regardless of identifier size.
func AllocationLockKey(channelID, locationID, variantID int64) string {
	sum := blake2b.Sum256([]byte(fmt.Sprintf("%d:%d:%d", channelID, locationID, variantID)))
	return "inventory:alloc:" + hex.EncodeToString(sum[:8])
}
