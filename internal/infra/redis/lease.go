package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lease only when the stored token matches the
// caller's, so a lease that expired and was re-acquired by another process
// cannot be released by the original holder.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

func leaseKey(name string) string {
	return fmt.Sprintf("lease:%s", name)
}

// Lease grants short-lived exclusive leases backed by Redis SET NX EX.
type Lease struct {
	rdb *redis.Client
}

// NewLease creates a Redis-backed lease service.
func NewLease(client *Client) *Lease {
	return &Lease{rdb: client.rdb}
}

// Acquire attempts to take the named lease for ttl. It returns the owner
// token on success, or ok=false when another process holds the lease.
func (l *Lease) Acquire(ctx context.Context, name string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()

	acquired, err := l.rdb.SetNX(ctx, leaseKey(name), token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to acquire lease %s: %w", name, err)
	}
	if !acquired {
		return "", false, nil
	}
	return token, true, nil
}

// Release deletes the lease if token still owns it. A mismatched token is a
// no-op returning false, not an error.
func (l *Lease) Release(ctx context.Context, name string, token string) (bool, error) {
	res, err := releaseScript.Run(ctx, l.rdb, []string{leaseKey(name)}, token).Int()
	if err != nil {
		return false, fmt.Errorf("failed to release lease %s: %w", name, err)
	}
	return res == 1, nil
}
