package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func dedupKey(itemID string) string {
	return fmt.Sprintf("dedup:item:%s", itemID)
}

// DedupCache suppresses duplicate ingestion with short-TTL membership keys.
// It is a cheap pre-check only: the durable store's uniqueness constraint is
// the final arbiter, so at-least-once marking here is safe.
type DedupCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewDedupCache creates a dedup cache with the given entry TTL.
func NewDedupCache(client *Client, ttl time.Duration) *DedupCache {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &DedupCache{rdb: client.rdb, ttl: ttl}
}

// ExistsAndMark reports whether the item id was already seen, marking it
// seen when it was not. SETNX makes check-and-mark a single round trip.
func (d *DedupCache) ExistsAndMark(ctx context.Context, itemID string) (bool, error) {
	set, err := d.rdb.SetNX(ctx, dedupKey(itemID), "1", d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup check failed for %s: %w", itemID, err)
	}
	// set=true means the key did not exist before: not a duplicate.
	return !set, nil
}
