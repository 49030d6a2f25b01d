/**
 * @description
 * Redis fast-path deduplication for processor webhook deliveries. The cache is an
 * optimization in front of the processed_events table: a hit short-circuits a
 * replay without touching PostgreSQL, a miss (or Redis being down) falls through
 * to the authoritative database check.
 */
package app

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisEventCache remembers recently seen webhook event ids.
type RedisEventCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisEventCache creates an event cache with the given key prefix and TTL.
func NewRedisEventCache(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisEventCache {
	trimmedPrefix := strings.TrimSpace(prefix)
	if trimmedPrefix == "" {
		trimmedPrefix = "wallet:webhook_events"
	}
	trimmedPrefix = strings.TrimSuffix(trimmedPrefix, ":")

	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &RedisEventCache{
		client: client,
		prefix: trimmedPrefix,
		ttl:    ttl,
	}
}

// Seen marks an event id as seen and reports whether it was already present.
// Errors degrade to "not seen" so the database boundary stays authoritative.
func (c *RedisEventCache) Seen(ctx context.Context, eventID string) bool {
	if c == nil || c.client == nil || eventID == "" {
		return false
	}

	created, err := c.client.SetNX(ctx, c.prefix+":"+eventID, 1, c.ttl).Result()
	if err != nil {
		return false
	}
	return !created
}

// Forget removes an event id so a failed dispatch can be retried by the
// processor's redelivery.
func (c *RedisEventCache) Forget(ctx context.Context, eventID string) {
	if c == nil || c.client == nil || eventID == "" {
		return
	}
	_ = c.client.Del(ctx, c.prefix+":"+eventID).Err()
}
