package crawler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/minhngt/harvester/internal/core/domain"
	"github.com/minhngt/harvester/internal/infra/parse"
	"github.com/minhngt/harvester/internal/infra/storage/memory"
)

type fakeRegistry struct {
	endpoints []domain.Endpoint
	err       error
}

func (f *fakeRegistry) Refresh(ctx context.Context, force bool) ([]domain.Endpoint, error) {
	return f.endpoints, f.err
}

// fakeFetcher serves canned pages per endpoint and records which endpoints
// were actually tried.
type fakeFetcher struct {
	pages map[string]string
	errs  map[string]error
	tried []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, baseURL, username string) (string, error) {
	f.tried = append(f.tried, baseURL)
	if err, ok := f.errs[baseURL]; ok {
		return "", err
	}
	return f.pages[baseURL], nil
}

// keyParse treats the page body as a lookup key into canned item lists, so
// tests don't need real markup.
func keyParse(pages map[string][]parse.RawItem) parse.Func {
	return func(html, author string) ([]parse.RawItem, error) {
		return pages[html], nil
	}
}

func rawItems(ids ...string) []parse.RawItem {
	items := make([]parse.RawItem, len(ids))
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range ids {
		items[i] = parse.RawItem{
			ExternalID:  id,
			Author:      "alice",
			Content:     "content " + id,
			PublishedAt: base.Add(-time.Duration(i) * time.Minute),
			URL:         "https://example.net/alice/status/" + id,
		}
	}
	return items
}

func testCoordinator(t *testing.T, store *memory.MemoryStorage, cfg Config) *Coordinator {
	t.Helper()
	cfg.Items = memory.NewItemRepo(store)
	cfg.Authors = memory.NewAuthorRepo(store)
	if cfg.Lease == nil {
		cfg.Lease = memory.NewLease()
	}
	if cfg.Dedup == nil {
		cfg.Dedup = memory.NewDedupCache(store, 24*time.Hour)
	}
	cfg.Log = slog.New(slog.NewTextHandler(io.Discard, nil))
	if cfg.CycleInterval == 0 {
		cfg.CycleInterval = time.Minute
	}
	if cfg.RefreshInterval == 0 {
		cfg.RefreshInterval = 3 * time.Minute
	}
	if cfg.PerAuthorBudget == 0 {
		cfg.PerAuthorBudget = 30 * time.Second
	}
	return NewCoordinator(cfg)
}

func addAuthor(t *testing.T, store *memory.MemoryStorage, username string) {
	t.Helper()
	repo := memory.NewAuthorRepo(store)
	if _, err := repo.Add(context.Background(), &domain.TrackedAuthor{
		Username: username,
		Active:   true,
		Priority: 1,
	}); err != nil {
		t.Fatalf("add author: %v", err)
	}
}

func TestRunCycle_IncrementalCutoffAndDedup(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStorage()
	addAuthor(t, store, "alice")

	// Item 100 was ingested in a previous cycle and is alice's newest known id.
	items := memory.NewItemRepo(store)
	if _, err := items.Insert(ctx, &domain.Item{
		ID:          "100",
		Author:      "alice",
		PublishedAt: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
		State:       domain.ItemStateCompleted,
	}); err != nil {
		t.Fatalf("seed item: %v", err)
	}

	// 102 was already marked by another process.
	dedup := memory.NewDedupCache(store, 24*time.Hour)
	if _, err := dedup.ExistsAndMark(ctx, "102"); err != nil {
		t.Fatalf("seed dedup: %v", err)
	}

	fetcher := &fakeFetcher{pages: map[string]string{"https://a.example": "alice-page"}}
	c := testCoordinator(t, store, Config{
		Registry: &fakeRegistry{endpoints: []domain.Endpoint{{URL: "https://a.example", Available: true}}},
		Fetcher:  fetcher,
		Parse:    keyParse(map[string][]parse.RawItem{"alice-page": rawItems("103", "102", "101", "100")}),
		Dedup:    dedup,
	})

	if err := c.runCycle(ctx); err != nil {
		t.Fatalf("runCycle: %v", err)
	}

	pending, err := items.DequeuePending(ctx, 10)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	got := map[string]bool{}
	for _, it := range pending {
		got[it.ID] = true
	}
	if !got["103"] || !got["101"] {
		t.Errorf("expected 103 and 101 pending, got %v", got)
	}
	if got["102"] {
		t.Error("102 was in the existence cache and must not be inserted")
	}
	if got["100"] {
		t.Error("100 is at the cutoff and must be discarded")
	}

	authors, _ := memory.NewAuthorRepo(store).List(ctx)
	if authors[0].LastFetchedAt == nil {
		t.Error("lastFetchedAt should advance after a successful fetch")
	}
}

func TestRunCycle_EndpointFailover(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStorage()
	addAuthor(t, store, "alice")

	// First endpoint errors, second parses empty, third succeeds.
	fetcher := &fakeFetcher{
		pages: map[string]string{
			"https://b.example": "empty-page",
			"https://c.example": "alice-page",
		},
		errs: map[string]error{"https://a.example": errors.New("connection refused")},
	}
	c := testCoordinator(t, store, Config{
		Registry: &fakeRegistry{endpoints: []domain.Endpoint{
			{URL: "https://a.example"}, {URL: "https://b.example"}, {URL: "https://c.example"},
		}},
		Fetcher: fetcher,
		Parse: keyParse(map[string][]parse.RawItem{
			"alice-page": rawItems("7"),
			"empty-page": nil,
		}),
	})

	if err := c.runCycle(ctx); err != nil {
		t.Fatalf("runCycle: %v", err)
	}

	if len(fetcher.tried) != 3 {
		t.Errorf("expected all three endpoints tried in order, got %v", fetcher.tried)
	}
	pending, _ := memory.NewItemRepo(store).DequeuePending(ctx, 10)
	if len(pending) != 1 || pending[0].ID != "7" {
		t.Errorf("expected item 7 from the third endpoint, got %v", pending)
	}
}

func TestRunCycle_AllEndpointsExhausted(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStorage()
	addAuthor(t, store, "alice")

	c := testCoordinator(t, store, Config{
		Registry: &fakeRegistry{endpoints: []domain.Endpoint{{URL: "https://a.example"}}},
		Fetcher:  &fakeFetcher{errs: map[string]error{"https://a.example": errors.New("timeout")}},
		Parse:    keyParse(nil),
	})

	// A per-author failure is recoverable: the cycle itself succeeds.
	if err := c.runCycle(ctx); err != nil {
		t.Fatalf("runCycle: %v", err)
	}

	authors, _ := memory.NewAuthorRepo(store).List(ctx)
	if authors[0].LastFetchedAt != nil {
		t.Error("lastFetchedAt must not advance when every endpoint failed")
	}
}

func TestRunCycle_SkipsWhenLeaseHeld(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStorage()
	addAuthor(t, store, "alice")

	lease := memory.NewLease()
	if _, ok, _ := lease.Acquire(ctx, "crawl:main", time.Hour); !ok {
		t.Fatal("seed acquire failed")
	}

	fetcher := &fakeFetcher{}
	c := testCoordinator(t, store, Config{
		Registry: &fakeRegistry{endpoints: []domain.Endpoint{{URL: "https://a.example"}}},
		Fetcher:  fetcher,
		Parse:    keyParse(nil),
		Lease:    lease,
	})

	if err := c.runCycle(ctx); err != nil {
		t.Fatalf("runCycle: %v", err)
	}
	if len(fetcher.tried) != 0 {
		t.Error("cycle must do no work when the lease is held elsewhere")
	}
}

func TestRunCycle_ReleasesLeaseWhenNoAuthorsDue(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStorage()

	lease := memory.NewLease()
	c := testCoordinator(t, store, Config{
		Registry: &fakeRegistry{},
		Fetcher:  &fakeFetcher{},
		Parse:    keyParse(nil),
		Lease:    lease,
	})

	if err := c.runCycle(ctx); err != nil {
		t.Fatalf("runCycle: %v", err)
	}

	// Lease must be free again immediately.
	if _, ok, _ := lease.Acquire(ctx, "crawl:main", time.Minute); !ok {
		t.Error("lease was not released after an idle cycle")
	}
}

func TestLeaseTTL(t *testing.T) {
	c := NewCoordinator(Config{
		CycleInterval:   time.Minute,
		PerAuthorBudget: 30 * time.Second,
	})

	// 10 due authors: 10*30s + 60s = 6m.
	if got := c.leaseTTL(10); got != 6*time.Minute {
		t.Errorf("expected 6m, got %s", got)
	}
	// Floor of two cycle intervals when few authors are due.
	if got := c.leaseTTL(0); got != 2*time.Minute {
		t.Errorf("expected 2m floor, got %s", got)
	}
}

func TestCutoff(t *testing.T) {
	raw := rawItems("103", "102", "101", "100")

	got := cutoff(raw, "100")
	if len(got) != 3 || got[0].ExternalID != "103" || got[2].ExternalID != "101" {
		t.Errorf("unexpected cutoff result: %v", got)
	}

	// Unknown cursor keeps the whole list.
	if got := cutoff(raw, "999"); len(got) != 4 {
		t.Errorf("expected full list for unknown cursor, got %d", len(got))
	}
	if got := cutoff(raw, ""); len(got) != 4 {
		t.Errorf("expected full list for empty cursor, got %d", len(got))
	}
}

func TestSleep_UnaffectedByInjectedClock(t *testing.T) {
	c := NewCoordinator(Config{CycleInterval: time.Minute})
	// The injected clock only stamps items; pacing follows the wall clock.
	c.now = func() time.Time { return time.Now().Add(time.Hour) }

	start := time.Now()
	if !c.sleep(context.Background(), 20*time.Millisecond) {
		t.Fatal("sleep should complete, not abort")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("sleep took %s for a 20ms wait", elapsed)
	}
}
