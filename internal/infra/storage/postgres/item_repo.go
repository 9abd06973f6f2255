package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/minhngt/harvester/internal/core/domain"
)

// ItemRepo implements storage.ItemRepository using PostgreSQL.
type ItemRepo struct {
	db *DB
}

// NewItemRepo creates a new PostgreSQL item repository.
func NewItemRepo(db *DB) *ItemRepo {
	return &ItemRepo{db: db}
}

type itemRow struct {
	ItemID      string         `db:"item_id"`
	Author      string         `db:"author"`
	Content     string         `db:"content"`
	PublishedAt time.Time      `db:"published_at"`
	FetchedAt   time.Time      `db:"fetched_at"`
	URL         sql.NullString `db:"item_url"`
	MediaRefs   pq.StringArray `db:"media_refs"`
	State       string         `db:"state"`
}

func (r itemRow) toDomain() *domain.Item {
	return &domain.Item{
		ID:          r.ItemID,
		Author:      r.Author,
		Content:     r.Content,
		PublishedAt: r.PublishedAt,
		FetchedAt:   r.FetchedAt,
		URL:         r.URL.String,
		MediaRefs:   r.MediaRefs,
		State:       domain.ItemState(r.State),
	}
}

// Insert stores a new item in state pending. A conflicting id is not an
// error: the row is left untouched and inserted=false is returned.
func (r *ItemRepo) Insert(ctx context.Context, item *domain.Item) (bool, error) {
	const query = `
		INSERT INTO items (item_id, author, content, published_at, fetched_at, item_url, media_refs, state)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (item_id) DO NOTHING
		RETURNING id
	`
	state := item.State
	if state == "" {
		state = domain.ItemStatePending
	}

	var id int64
	err := r.db.QueryRowxContext(ctx, query,
		item.ID,
		item.Author,
		item.Content,
		item.PublishedAt,
		item.FetchedAt,
		sql.NullString{String: item.URL, Valid: item.URL != ""},
		pq.StringArray(item.MediaRefs),
		string(state),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		// Conflict: the id is already stored.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert item %s: %w", item.ID, err)
	}
	return true, nil
}

// GetNewestKnownID returns the most recently published item id for an author.
func (r *ItemRepo) GetNewestKnownID(ctx context.Context, author string) (string, error) {
	const query = `
		SELECT item_id FROM items
		WHERE author = $1
		ORDER BY published_at DESC
		LIMIT 1
	`
	var id string
	err := r.db.GetContext(ctx, &id, query, author)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get newest known id for %s: %w", author, err)
	}
	return id, nil
}

// DequeuePending fetches up to limit pending items, newest first.
func (r *ItemRepo) DequeuePending(ctx context.Context, limit int) ([]*domain.Item, error) {
	const query = `
		SELECT item_id, author, content, published_at, fetched_at, item_url, media_refs, state
		FROM items
		WHERE state = 'pending'
		ORDER BY published_at DESC
		LIMIT $1
	`
	var rows []itemRow
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to dequeue pending items: %w", err)
	}

	items := make([]*domain.Item, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toDomain())
	}
	return items, nil
}

// SetState transitions an item's processing state.
func (r *ItemRepo) SetState(ctx context.Context, itemID string, state domain.ItemState) error {
	const query = `UPDATE items SET state = $1, updated_at = NOW() WHERE item_id = $2`
	if _, err := r.db.ExecContext(ctx, query, string(state), itemID); err != nil {
		return fmt.Errorf("failed to set state %s on item %s: %w", state, itemID, err)
	}
	return nil
}
