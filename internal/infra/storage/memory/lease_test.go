package memory

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestLease_MutualExclusion(t *testing.T) {
	l := NewLease()
	ctx := context.Background()

	token, ok, err := l.Acquire(ctx, "crawl:main", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first acquire failed: ok=%v err=%v", ok, err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	_, ok, err = l.Acquire(ctx, "crawl:main", time.Minute)
	if err != nil {
		t.Fatalf("second acquire errored: %v", err)
	}
	if ok {
		t.Fatal("second acquire should fail while lease is held")
	}

	// A different name is independent.
	_, ok, err = l.Acquire(ctx, "crawl:other", time.Minute)
	if err != nil || !ok {
		t.Fatalf("acquire of different name failed: ok=%v err=%v", ok, err)
	}
}

func TestLease_ConcurrentAcquire(t *testing.T) {
	l := NewLease()
	ctx := context.Background()

	const n = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok, _ := l.Acquire(ctx, "crawl:main", time.Minute); ok {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if granted != 1 {
		t.Fatalf("expected exactly 1 grant, got %d", granted)
	}
}

func TestLease_ExpiryAllowsReacquire(t *testing.T) {
	l := NewLease()
	ctx := context.Background()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.SetClock(func() time.Time { return now })

	tokenA, ok, _ := l.Acquire(ctx, "crawl:main", 30*time.Second)
	if !ok {
		t.Fatal("initial acquire failed")
	}

	now = now.Add(10 * time.Second)
	if _, ok, _ := l.Acquire(ctx, "crawl:main", 30*time.Second); ok {
		t.Fatal("acquire before expiry should fail")
	}

	now = now.Add(25 * time.Second)
	tokenB, ok, _ := l.Acquire(ctx, "crawl:main", 30*time.Second)
	if !ok {
		t.Fatal("acquire after expiry should succeed")
	}
	if tokenB == tokenA {
		t.Fatal("re-acquired lease must carry a fresh token")
	}

	// The stale holder's release must not free the new lease.
	if released, _ := l.Release(ctx, "crawl:main", tokenA); released {
		t.Fatal("stale token must not release the lease")
	}
	if _, ok, _ := l.Acquire(ctx, "crawl:main", 30*time.Second); ok {
		t.Fatal("lease should still be held by tokenB")
	}
}

func TestLease_ReleaseTokenSafety(t *testing.T) {
	l := NewLease()
	ctx := context.Background()

	token, ok, _ := l.Acquire(ctx, "crawl:main", time.Minute)
	if !ok {
		t.Fatal("acquire failed")
	}

	if released, err := l.Release(ctx, "crawl:main", "not-the-token"); err != nil || released {
		t.Fatalf("mismatched token release must be a no-op: released=%v err=%v", released, err)
	}

	if released, err := l.Release(ctx, "crawl:main", token); err != nil || !released {
		t.Fatalf("owner release failed: released=%v err=%v", released, err)
	}

	if _, ok, _ := l.Acquire(ctx, "crawl:main", time.Minute); !ok {
		t.Fatal("acquire after release should succeed")
	}
}
