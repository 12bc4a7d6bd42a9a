package balances

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache wraps Redis based caching for ledger balances. Balances change
// on every posting, so entries carry a short TTL and postings invalidate
// the touched accounts eagerly.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cache{client: client, ttl: ttl}
}

func balanceKey(channelID int64, accountCode string, q Query) string {
	return fmt.Sprintf("ledger:balance:%d:%s:%s:%s:%s:%s:%s",
		channelID, accountCode,
		dateKey(q.StartDate), dateKey(q.EndDate), q.CustomerID, q.SupplierID, q.SessionID)
}

func dateKey(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}

// FetchJSON loads a cached value or populates it using the loader.
func (c *Cache) FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
	if loader == nil {
		return errors.New("balances: cache loader required")
	}
	if c == nil || c.client == nil {
		value, err := loader(ctx)
		if err != nil {
			return err
		}
		return roundTrip(value, dest)
	}
	// Redis is an accelerator here, not a dependency: any failure,
	// transport errors included, falls through to the loader, and the
	// write-back is best effort.
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		return json.Unmarshal(raw, dest)
	}
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_ = c.client.Set(ctx, key, encoded, c.ttl).Err()
	return json.Unmarshal(encoded, dest)
}

// InvalidateAccounts drops every cached window for the given accounts.
// Posting-time windows are unbounded, so this scans by key prefix.
func (c *Cache) InvalidateAccounts(ctx context.Context, channelID int64, codes []string) {
	if c == nil || c.client == nil {
		return
	}
	for _, code := range codes {
		pattern := fmt.Sprintf("ledger:balance:%d:%s:*", channelID, code)
		iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
		for iter.Next(ctx) {
			_ = c.client.Del(ctx, iter.Val()).Err()
		}
	}
}

func roundTrip(value, dest any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}
