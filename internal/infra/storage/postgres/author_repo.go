package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/minhngt/harvester/internal/core/domain"
	"github.com/minhngt/harvester/internal/infra/storage"
)

// AuthorRepo implements storage.AuthorRepository using PostgreSQL.
type AuthorRepo struct {
	db *DB
}

// NewAuthorRepo creates a new PostgreSQL author repository.
func NewAuthorRepo(db *DB) *AuthorRepo {
	return &AuthorRepo{db: db}
}

type authorRow struct {
	ID            int64          `db:"id"`
	Username      string         `db:"username"`
	DisplayName   sql.NullString `db:"display_name"`
	Priority      int            `db:"priority"`
	Active        bool           `db:"is_active"`
	LastFetchedAt sql.NullTime   `db:"last_fetched_at"`
	Notes         sql.NullString `db:"notes"`
}

func (r authorRow) toDomain() *domain.TrackedAuthor {
	a := &domain.TrackedAuthor{
		ID:          r.ID,
		Username:    r.Username,
		DisplayName: r.DisplayName.String,
		Priority:    r.Priority,
		Active:      r.Active,
		Notes:       r.Notes.String,
	}
	if r.LastFetchedAt.Valid {
		t := r.LastFetchedAt.Time
		a.LastFetchedAt = &t
	}
	return a
}

// ListDue returns active authors due for a refresh, highest priority first.
func (r *AuthorRepo) ListDue(ctx context.Context, minInterval time.Duration) ([]*domain.TrackedAuthor, error) {
	const query = `
		SELECT id, username, display_name, priority, is_active, last_fetched_at, notes
		FROM tracked_authors
		WHERE is_active = TRUE
		  AND (last_fetched_at IS NULL OR last_fetched_at < NOW() - $1::interval)
		ORDER BY priority DESC, username
	`
	interval := fmt.Sprintf("%d seconds", int(minInterval.Seconds()))

	var rows []authorRow
	if err := r.db.SelectContext(ctx, &rows, query, interval); err != nil {
		return nil, fmt.Errorf("failed to list due authors: %w", err)
	}

	authors := make([]*domain.TrackedAuthor, 0, len(rows))
	for _, row := range rows {
		authors = append(authors, row.toDomain())
	}
	return authors, nil
}

// MarkFetched advances last_fetched_at. Called only after a non-error fetch.
func (r *AuthorRepo) MarkFetched(ctx context.Context, username string, at time.Time) error {
	const query = `UPDATE tracked_authors SET last_fetched_at = $1 WHERE username = $2`
	if _, err := r.db.ExecContext(ctx, query, at, username); err != nil {
		return fmt.Errorf("failed to mark %s fetched: %w", username, err)
	}
	return nil
}

// Add registers a new tracked author.
func (r *AuthorRepo) Add(ctx context.Context, author *domain.TrackedAuthor) (bool, error) {
	const query = `
		INSERT INTO tracked_authors (username, display_name, priority, is_active, notes)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (username) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query,
		author.Username,
		sql.NullString{String: author.DisplayName, Valid: author.DisplayName != ""},
		author.Priority,
		author.Active,
		sql.NullString{String: author.Notes, Valid: author.Notes != ""},
	)
	if err != nil {
		return false, fmt.Errorf("failed to add author %s: %w", author.Username, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// Update applies a partial update built from the set fields only.
func (r *AuthorRepo) Update(ctx context.Context, username string, update domain.AuthorUpdate) error {
	if update.Empty() {
		return nil
	}

	sets := make([]string, 0, 4)
	args := make([]any, 0, 5)

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.DisplayName != nil {
		add("display_name", *update.DisplayName)
	}
	if update.Priority != nil {
		add("priority", *update.Priority)
	}
	if update.Active != nil {
		add("is_active", *update.Active)
	}
	if update.Notes != nil {
		add("notes", *update.Notes)
	}

	args = append(args, username)
	query := fmt.Sprintf(
		"UPDATE tracked_authors SET %s WHERE username = $%d",
		strings.Join(sets, ", "), len(args),
	)

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update author %s: %w", username, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return storage.ErrAuthorNotFound
	}
	return nil
}

// List returns all tracked authors.
func (r *AuthorRepo) List(ctx context.Context) ([]*domain.TrackedAuthor, error) {
	const query = `
		SELECT id, username, display_name, priority, is_active, last_fetched_at, notes
		FROM tracked_authors
		ORDER BY priority DESC, username
	`
	var rows []authorRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list authors: %w", err)
	}

	authors := make([]*domain.TrackedAuthor, 0, len(rows))
	for _, row := range rows {
		authors = append(authors, row.toDomain())
	}
	return authors, nil
}
