package memory

import (
	"context"
	"sync"
	"time"

	"github.com/minhngt/harvester/internal/core/domain"
)

// EndpointCache is the in-memory analog of the Redis endpoint ranking cache.
type EndpointCache struct {
	mu        sync.RWMutex
	endpoints []domain.Endpoint
	expiresAt time.Time
	now       func() time.Time
}

func NewEndpointCache() *EndpointCache {
	return &EndpointCache{now: time.Now}
}

// SetClock overrides the time source (tests).
func (c *EndpointCache) SetClock(now func() time.Time) {
	c.now = now
}

func (c *EndpointCache) Get(ctx context.Context) ([]domain.Endpoint, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.endpoints == nil || c.now().After(c.expiresAt) {
		return nil, false, nil
	}
	out := make([]domain.Endpoint, len(c.endpoints))
	copy(out, c.endpoints)
	return out, true, nil
}

func (c *EndpointCache) Set(ctx context.Context, endpoints []domain.Endpoint, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endpoints = make([]domain.Endpoint, len(endpoints))
	copy(c.endpoints, endpoints)
	c.expiresAt = c.now().Add(ttl)
	return nil
}
