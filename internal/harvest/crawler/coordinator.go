package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/minhngt/harvester/internal/core/domain"
	"github.com/minhngt/harvester/internal/harvest/metrics"
	"github.com/minhngt/harvester/internal/infra/parse"
	"github.com/minhngt/harvester/internal/infra/storage"
)

// leaseName is the single mutual-exclusion point for crawl cycles.
const leaseName = "crawl:main"

// LeaseService grants named exclusive leases with token-verified release.
type LeaseService interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, name string, token string) (bool, error)
}

// EndpointProvider returns the ranked endpoint list, cached or freshly probed.
type EndpointProvider interface {
	Refresh(ctx context.Context, force bool) ([]domain.Endpoint, error)
}

// Fetcher retrieves an author's raw timeline page from one endpoint.
type Fetcher interface {
	Fetch(ctx context.Context, baseURL, username string) (string, error)
}

// ExistenceCache suppresses duplicate ingestion before touching the store.
type ExistenceCache interface {
	ExistsAndMark(ctx context.Context, itemID string) (bool, error)
}

// Config holds coordinator wiring and tuning.
type Config struct {
	Items    storage.ItemRepository
	Authors  storage.AuthorRepository
	Lease    LeaseService
	Registry EndpointProvider
	Fetcher  Fetcher
	Parse    parse.Func
	Dedup    ExistenceCache
	Log      *slog.Logger

	CycleInterval   time.Duration
	RefreshInterval time.Duration
	PerAuthorBudget time.Duration
	AuthorDelay     time.Duration
	MaxItems        int
}

// Coordinator runs crawl cycles. At most one coordinator is active
// system-wide, enforced by the lease; everything inside a cycle is
// sequential so the outstanding load on mirror endpoints stays predictable.
type Coordinator struct {
	cfg     Config
	running atomic.Bool
	stop    chan struct{}
	now     func() time.Time
}

// NewCoordinator creates a crawl coordinator.
func NewCoordinator(cfg Config) *Coordinator {
	return &Coordinator{
		cfg:  cfg,
		stop: make(chan struct{}),
		now:  time.Now,
	}
}

// Start runs the crawl loop until the context is cancelled or Stop is called.
func (c *Coordinator) Start(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return fmt.Errorf("coordinator already running")
	}
	defer c.running.Store(false)

	c.cfg.Log.Info("crawl coordinator started",
		"cycle_interval", c.cfg.CycleInterval,
		"refresh_interval", c.cfg.RefreshInterval)

	for {
		if err := c.runCycle(ctx); err != nil {
			c.cfg.Log.Error("crawl cycle failed", "error", err)
			metrics.CrawlCycles.WithLabelValues("error").Inc()
		}
		if !c.sleep(ctx, c.cfg.CycleInterval) {
			return nil
		}
	}
}

// Stop signals the loop to exit after the current cycle.
func (c *Coordinator) Stop() error {
	if c.running.Load() {
		close(c.stop)
	}
	return nil
}

// runCycle executes one crawl cycle: lease, author selection, per-author
// fetch, release. Per-author failures never abort the cycle.
func (c *Coordinator) runCycle(ctx context.Context) error {
	due, err := c.cfg.Authors.ListDue(ctx, c.cfg.RefreshInterval)
	if err != nil {
		return fmt.Errorf("list due authors: %w", err)
	}

	ttl := c.leaseTTL(len(due))
	token, ok, err := c.cfg.Lease.Acquire(ctx, leaseName, ttl)
	if err != nil {
		return fmt.Errorf("acquire lease: %w", err)
	}
	if !ok {
		// Another coordinator holds the cycle. Expected, not an error.
		metrics.LeaseAcquisitions.WithLabelValues("contended").Inc()
		metrics.CrawlCycles.WithLabelValues("skipped").Inc()
		c.cfg.Log.Debug("crawl cycle skipped, lease held elsewhere")
		return nil
	}
	metrics.LeaseAcquisitions.WithLabelValues("granted").Inc()

	defer func() {
		released, err := c.cfg.Lease.Release(context.WithoutCancel(ctx), leaseName, token)
		if err != nil {
			c.cfg.Log.Warn("lease release failed", "error", err)
		} else if !released {
			// Lease expired mid-cycle and was taken over. Work done so far
			// is still valid thanks to insert-ignore semantics.
			c.cfg.Log.Warn("lease no longer owned at release")
		}
	}()

	if len(due) == 0 {
		c.cfg.Log.Debug("no authors due")
		metrics.CrawlCycles.WithLabelValues("idle").Inc()
		return nil
	}

	c.cfg.Log.Info("crawl cycle started", "due_authors", len(due), "lease_ttl", ttl)

	for i, author := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := c.fetchAuthor(ctx, author.Username); err != nil {
			c.cfg.Log.Warn("author fetch failed, will retry next cycle",
				"author", author.Username, "error", err)
		}
		if i < len(due)-1 && !c.sleep(ctx, c.cfg.AuthorDelay) {
			return nil
		}
	}

	metrics.CrawlCycles.WithLabelValues("completed").Inc()
	return nil
}

// leaseTTL sizes the lease to cover a worst-case cycle, with a floor of two
// cycle intervals to avoid pathologically short leases.
func (c *Coordinator) leaseTTL(dueCount int) time.Duration {
	ttl := time.Duration(dueCount)*c.cfg.PerAuthorBudget + c.cfg.CycleInterval
	if floor := 2 * c.cfg.CycleInterval; ttl < floor {
		ttl = floor
	}
	return ttl
}

// fetchAuthor fetches one author's timeline with endpoint failover, applies
// the incremental cutoff and dedup, and persists new items. On success the
// author's lastFetchedAt advances even when zero new items were found.
func (c *Coordinator) fetchAuthor(ctx context.Context, username string) error {
	endpoints, err := c.cfg.Registry.Refresh(ctx, false)
	if err != nil {
		return fmt.Errorf("refresh endpoints: %w", err)
	}
	if len(endpoints) == 0 {
		return fmt.Errorf("no endpoints available")
	}

	raw, err := c.fetchWithFailover(ctx, endpoints, username)
	if err != nil {
		return err
	}

	inserted, err := c.ingest(ctx, username, raw)
	if err != nil {
		return err
	}

	now := c.now()
	if err := c.cfg.Authors.MarkFetched(ctx, username, now); err != nil {
		return fmt.Errorf("mark fetched: %w", err)
	}

	c.cfg.Log.Info("author fetched", "author", username, "new_items", inserted)
	return nil
}

// fetchWithFailover tries ranked endpoints in order until one returns a
// parseable, non-empty timeline. An endpoint that responds but parses to
// zero items counts as failed, same as a transport failure.
func (c *Coordinator) fetchWithFailover(ctx context.Context, endpoints []domain.Endpoint, username string) ([]parse.RawItem, error) {
	for _, ep := range endpoints {
		html, err := c.cfg.Fetcher.Fetch(ctx, ep.URL, username)
		if err != nil {
			c.cfg.Log.Debug("endpoint fetch failed", "endpoint", ep.URL, "author", username, "error", err)
			continue
		}

		items, err := c.cfg.Parse(html, username)
		if err != nil || len(items) == 0 {
			c.cfg.Log.Debug("endpoint returned no items", "endpoint", ep.URL, "author", username)
			continue
		}
		return items, nil
	}
	return nil, fmt.Errorf("all %d endpoints exhausted for %s", len(endpoints), username)
}

// ingest applies the newest-known-id cutoff, the existence-cache check and
// the insert-ignore write, in that order. Returns the number of items
// actually inserted.
func (c *Coordinator) ingest(ctx context.Context, username string, raw []parse.RawItem) (int, error) {
	newestKnown, err := c.cfg.Items.GetNewestKnownID(ctx, username)
	if err != nil {
		return 0, fmt.Errorf("get newest known id: %w", err)
	}

	candidates := cutoff(raw, newestKnown)
	if c.cfg.MaxItems > 0 && len(candidates) > c.cfg.MaxItems {
		candidates = candidates[:c.cfg.MaxItems]
	}

	inserted := 0
	now := c.now()
	for _, r := range candidates {
		dup, err := c.cfg.Dedup.ExistsAndMark(ctx, r.ExternalID)
		if err != nil {
			// Cache trouble is not a reason to drop the item; the store's
			// uniqueness constraint still protects us.
			c.cfg.Log.Warn("existence cache check failed", "item", r.ExternalID, "error", err)
		} else if dup {
			continue
		}

		ok, err := c.cfg.Items.Insert(ctx, &domain.Item{
			ID:          r.ExternalID,
			Author:      r.Author,
			Content:     r.Content,
			PublishedAt: r.PublishedAt,
			FetchedAt:   now,
			URL:         r.URL,
			MediaRefs:   r.MediaRefs,
			State:       domain.ItemStatePending,
		})
		if err != nil {
			return inserted, fmt.Errorf("insert item %s: %w", r.ExternalID, err)
		}
		if ok {
			inserted++
			metrics.ItemsIngested.WithLabelValues(username).Inc()
		}
	}
	return inserted, nil
}

// cutoff walks the newest-first list until the previously recorded newest
// known id, discarding it and everything after it.
func cutoff(raw []parse.RawItem, newestKnown string) []parse.RawItem {
	if newestKnown == "" {
		return raw
	}
	for i, r := range raw {
		if r.ExternalID == newestKnown {
			return raw[:i]
		}
	}
	return raw
}

// sleep waits for d in one-second chunks so shutdown stays responsive.
// Returns false when the coordinator should exit.
func (c *Coordinator) sleep(ctx context.Context, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		chunk := time.Second
		if remaining < chunk {
			chunk = remaining
		}
		select {
		case <-ctx.Done():
			return false
		case <-c.stop:
			return false
		case <-time.After(chunk):
		}
	}
}
