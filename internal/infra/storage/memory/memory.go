package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/minhngt/harvester/internal/core/domain"
	"github.com/minhngt/harvester/internal/infra/storage"
)

// MemoryStorage is an in-memory store backing all repositories. Used in
// development mode (no database URL) and by unit tests.
type MemoryStorage struct {
	items   map[string]*domain.Item
	authors map[string]*domain.TrackedAuthor
	results map[string]*domain.ClassificationResult
	dedup   map[string]time.Time
	mu      sync.RWMutex

	now func() time.Time
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		items:   make(map[string]*domain.Item),
		authors: make(map[string]*domain.TrackedAuthor),
		results: make(map[string]*domain.ClassificationResult),
		dedup:   make(map[string]time.Time),
		now:     time.Now,
	}
}

// SetClock overrides the time source (tests).
func (s *MemoryStorage) SetClock(now func() time.Time) {
	s.now = now
}

// Item returns a snapshot of an item regardless of state, nil when absent.
func (s *MemoryStorage) Item(id string) *domain.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.items[id]
	if !ok {
		return nil
	}
	cp := *it
	return &cp
}

// -----------------------------------------------------------------------------
// Item Repository
// -----------------------------------------------------------------------------

type ItemRepo struct {
	store *MemoryStorage
}

func NewItemRepo(store *MemoryStorage) *ItemRepo {
	return &ItemRepo{store: store}
}

func (r *ItemRepo) Insert(ctx context.Context, item *domain.Item) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, exists := r.store.items[item.ID]; exists {
		return false, nil
	}
	cp := *item
	if cp.State == "" {
		cp.State = domain.ItemStatePending
	}
	r.store.items[item.ID] = &cp
	return true, nil
}

func (r *ItemRepo) GetNewestKnownID(ctx context.Context, author string) (string, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var newest *domain.Item
	for _, it := range r.store.items {
		if it.Author != author {
			continue
		}
		if newest == nil || it.PublishedAt.After(newest.PublishedAt) {
			newest = it
		}
	}
	if newest == nil {
		return "", nil
	}
	return newest.ID, nil
}

func (r *ItemRepo) DequeuePending(ctx context.Context, limit int) ([]*domain.Item, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var pending []*domain.Item
	for _, it := range r.store.items {
		if it.State == domain.ItemStatePending {
			cp := *it
			pending = append(pending, &cp)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].PublishedAt.After(pending[j].PublishedAt)
	})
	if len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (r *ItemRepo) SetState(ctx context.Context, itemID string, state domain.ItemState) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if it, ok := r.store.items[itemID]; ok {
		it.State = state
	}
	return nil
}

// -----------------------------------------------------------------------------
// Author Repository
// -----------------------------------------------------------------------------

type AuthorRepo struct {
	store *MemoryStorage
}

func NewAuthorRepo(store *MemoryStorage) *AuthorRepo {
	return &AuthorRepo{store: store}
}

func (r *AuthorRepo) ListDue(ctx context.Context, minInterval time.Duration) ([]*domain.TrackedAuthor, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	now := r.store.now()
	var due []*domain.TrackedAuthor
	for _, a := range r.store.authors {
		if !a.Active {
			continue
		}
		if a.LastFetchedAt == nil || now.Sub(*a.LastFetchedAt) > minInterval {
			cp := *a
			due = append(due, &cp)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].Priority != due[j].Priority {
			return due[i].Priority > due[j].Priority
		}
		return due[i].Username < due[j].Username
	})
	return due, nil
}

func (r *AuthorRepo) MarkFetched(ctx context.Context, username string, at time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if a, ok := r.store.authors[username]; ok {
		t := at
		a.LastFetchedAt = &t
	}
	return nil
}

func (r *AuthorRepo) Add(ctx context.Context, author *domain.TrackedAuthor) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, exists := r.store.authors[author.Username]; exists {
		return false, nil
	}
	cp := *author
	cp.ID = int64(len(r.store.authors) + 1)
	r.store.authors[author.Username] = &cp
	return true, nil
}

func (r *AuthorRepo) Update(ctx context.Context, username string, update domain.AuthorUpdate) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	a, ok := r.store.authors[username]
	if !ok {
		return storage.ErrAuthorNotFound
	}
	if update.DisplayName != nil {
		a.DisplayName = *update.DisplayName
	}
	if update.Priority != nil {
		a.Priority = *update.Priority
	}
	if update.Active != nil {
		a.Active = *update.Active
	}
	if update.Notes != nil {
		a.Notes = *update.Notes
	}
	return nil
}

func (r *AuthorRepo) List(ctx context.Context) ([]*domain.TrackedAuthor, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]*domain.TrackedAuthor, 0, len(r.store.authors))
	for _, a := range r.store.authors {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Username < out[j].Username
	})
	return out, nil
}

// -----------------------------------------------------------------------------
// Result Repository
// -----------------------------------------------------------------------------

type ResultRepo struct {
	store *MemoryStorage
}

func NewResultRepo(store *MemoryStorage) *ResultRepo {
	return &ResultRepo{store: store}
}

func (r *ResultRepo) Upsert(ctx context.Context, result *domain.ClassificationResult) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *result
	r.store.results[result.ItemID] = &cp
	return nil
}

func (r *ResultRepo) Get(ctx context.Context, itemID string) (*domain.ClassificationResult, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	res, ok := r.store.results[itemID]
	if !ok {
		return nil, nil
	}
	cp := *res
	return &cp, nil
}

// -----------------------------------------------------------------------------
// Dedup cache
// -----------------------------------------------------------------------------

// DedupCache is the in-memory analog of the Redis existence cache.
type DedupCache struct {
	store *MemoryStorage
	ttl   time.Duration
}

func NewDedupCache(store *MemoryStorage, ttl time.Duration) *DedupCache {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &DedupCache{store: store, ttl: ttl}
}

func (d *DedupCache) ExistsAndMark(ctx context.Context, itemID string) (bool, error) {
	d.store.mu.Lock()
	defer d.store.mu.Unlock()
	now := d.store.now()
	if expiry, ok := d.store.dedup[itemID]; ok && now.Before(expiry) {
		return true, nil
	}
	d.store.dedup[itemID] = now.Add(d.ttl)
	return false, nil
}
