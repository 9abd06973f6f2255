package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/minhngt/harvester/internal/core/domain"
)

const endpointCacheKey = "endpoints:ranked"

// EndpointCache stores the ranked endpoint list with a TTL so repeated
// crawl cycles do not re-probe the mirror pool.
type EndpointCache struct {
	rdb *redis.Client
}

// NewEndpointCache creates the cache.
func NewEndpointCache(client *Client) *EndpointCache {
	return &EndpointCache{rdb: client.rdb}
}

// Get returns the cached ranked list, or found=false when absent/expired.
func (c *EndpointCache) Get(ctx context.Context) ([]domain.Endpoint, bool, error) {
	data, err := c.rdb.Get(ctx, endpointCacheKey).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read endpoint cache: %w", err)
	}

	var endpoints []domain.Endpoint
	if err := json.Unmarshal(data, &endpoints); err != nil {
		// A corrupt entry is treated as a miss; the next refresh overwrites it.
		return nil, false, nil
	}
	return endpoints, true, nil
}

// Set writes the ranked list with the given TTL.
func (c *EndpointCache) Set(ctx context.Context, endpoints []domain.Endpoint, ttl time.Duration) error {
	data, err := json.Marshal(endpoints)
	if err != nil {
		return fmt.Errorf("failed to marshal endpoints: %w", err)
	}
	if err := c.rdb.Set(ctx, endpointCacheKey, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write endpoint cache: %w", err)
	}
	return nil
}
