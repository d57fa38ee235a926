package inbox

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a Redis fast path in front of the inbox ledger: recently
// processed event ids are kept with a TTL so hot duplicates skip a ledger
// round trip. It is advisory only; the ledger stays authoritative, so cache
// errors and misses just fall through.
type Cache struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

func NewCache(rdb *redis.Client, ttl time.Duration, prefix string) *Cache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "inbox"
	}
	return &Cache{rdb: rdb, ttl: ttl, prefix: prefix}
}

func (c *Cache) key(consumer, eventID string) string {
	return c.prefix + ":" + consumer + ":" + eventID
}

// Seen reports whether the event was recently marked processed.
func (c *Cache) Seen(ctx context.Context, consumer, eventID string) (bool, error) {
	_, err := c.rdb.Get(ctx, c.key(consumer, eventID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MarkProcessed records the event id; best effort.
func (c *Cache) MarkProcessed(ctx context.Context, consumer, eventID string) error {
	return c.rdb.SetNX(ctx, c.key(consumer, eventID), "1", c.ttl).Err()
}
