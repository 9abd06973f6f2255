package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type leaseEntry struct {
	token     string
	expiresAt time.Time
}

// Lease is an in-memory lease service with the same token contract as the
// Redis implementation. Used in development mode and by unit tests.
type Lease struct {
	mu     sync.Mutex
	leases map[string]leaseEntry
	now    func() time.Time
}

func NewLease() *Lease {
	return &Lease{
		leases: make(map[string]leaseEntry),
		now:    time.Now,
	}
}

// SetClock overrides the time source (tests).
func (l *Lease) SetClock(now func() time.Time) {
	l.now = now
}

// Acquire grants the named lease for ttl unless a live lease exists.
func (l *Lease) Acquire(ctx context.Context, name string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if entry, ok := l.leases[name]; ok && now.Before(entry.expiresAt) {
		return "", false, nil
	}

	token := uuid.NewString()
	l.leases[name] = leaseEntry{token: token, expiresAt: now.Add(ttl)}
	return token, true, nil
}

// Release deletes the lease only when token matches the current holder.
func (l *Lease) Release(ctx context.Context, name string, token string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.leases[name]
	if !ok || entry.token != token {
		return false, nil
	}
	delete(l.leases, name)
	return true, nil
}
