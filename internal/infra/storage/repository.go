package storage

import (
	"context"
	"errors"
	"time"

	"github.com/minhngt/harvester/internal/core/domain"
)

var (
	// ErrAuthorNotFound is returned when a tracked author doesn't exist
	ErrAuthorNotFound = errors.New("author not found")
)

// ItemRepository handles harvested item storage
type ItemRepository interface {
	// Insert stores a new item. It returns inserted=false when the id
	// already exists (insert-ignore semantics), which is not an error.
	Insert(ctx context.Context, item *domain.Item) (inserted bool, err error)

	// GetNewestKnownID returns the most recently published item id for an
	// author, or "" when none exists.
	GetNewestKnownID(ctx context.Context, author string) (string, error)

	// DequeuePending fetches up to limit items in state pending.
	DequeuePending(ctx context.Context, limit int) ([]*domain.Item, error)

	// SetState transitions an item's processing state.
	SetState(ctx context.Context, itemID string, state domain.ItemState) error
}

// AuthorRepository handles tracked author storage
type AuthorRepository interface {
	// ListDue returns active authors never fetched or not fetched within
	// minInterval, ordered by priority descending.
	ListDue(ctx context.Context, minInterval time.Duration) ([]*domain.TrackedAuthor, error)

	// MarkFetched advances last_fetched_at after a non-error fetch.
	MarkFetched(ctx context.Context, username string, at time.Time) error

	// Add registers a new tracked author (no-op if already present).
	Add(ctx context.Context, author *domain.TrackedAuthor) (bool, error)

	// Update applies a partial update.
	Update(ctx context.Context, username string, update domain.AuthorUpdate) error

	// List returns all tracked authors.
	List(ctx context.Context) ([]*domain.TrackedAuthor, error)
}

// ResultRepository handles classification results
type ResultRepository interface {
	// Upsert writes the result keyed by item id, replacing on retry.
	Upsert(ctx context.Context, result *domain.ClassificationResult) error

	// Get retrieves a result by item id, nil when absent.
	Get(ctx context.Context, itemID string) (*domain.ClassificationResult, error)
}
