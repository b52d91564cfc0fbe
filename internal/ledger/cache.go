package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "finreport:ledger:"

// CachedSource memoises datasets in Redis for ttl. A nil client disables caching.
type CachedSource struct {
	next   Source
	client *redis.Client
	ttl    time.Duration
}

// NewCachedSource wraps next with a Redis cache.
func NewCachedSource(next Source, client *redis.Client, ttl time.Duration) *CachedSource {
	return &CachedSource{next: next, client: client, ttl: ttl}
}

// Fetch implements Source.
func (c *CachedSource) Fetch(ctx context.Context, q Query) (Dataset, error) {
	if c == nil || c.next == nil {
		return Dataset{}, errors.New("ledger: cached source not configured")
	}
	if c.client == nil || c.ttl <= 0 {
		return c.next.Fetch(ctx, q)
	}
	key := cacheKeyPrefix + q.Key()
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var ds Dataset
		if err := json.Unmarshal(payload, &ds); err != nil {
			return Dataset{}, err
		}
		return ds, nil
	}
	if err != redis.Nil {
		return Dataset{}, err
	}
	ds, err := c.next.Fetch(ctx, q)
	if err != nil {
		return Dataset{}, err
	}
	raw, err := json.Marshal(ds)
	if err != nil {
		return Dataset{}, err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return Dataset{}, err
	}
	return ds, nil
}

// Invalidate drops every cached dataset.
func (c *CachedSource) Invalidate(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	iter := c.client.Scan(ctx, 0, cacheKeyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}
