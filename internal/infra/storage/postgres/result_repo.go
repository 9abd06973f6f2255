package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/minhngt/harvester/internal/core/domain"
)

// ResultRepo implements storage.ResultRepository using PostgreSQL.
// Keywords are stored as text[] and the embedding as a pgvector column,
// decoded back into typed fields on read.
type ResultRepo struct {
	db *DB
}

// NewResultRepo creates a new PostgreSQL result repository.
func NewResultRepo(db *DB) *ResultRepo {
	return &ResultRepo{db: db}
}

// nullVector scans a nullable vector column.
type nullVector struct {
	Vector pgvector.Vector
	Valid  bool
}

func (v *nullVector) Scan(src any) error {
	if src == nil {
		v.Valid = false
		return nil
	}
	v.Valid = true
	return v.Vector.Scan(src)
}

// Upsert writes the result keyed by item id. Retried classifications
// replace the previous row rather than appending.
func (r *ResultRepo) Upsert(ctx context.Context, result *domain.ClassificationResult) error {
	const query = `
		INSERT INTO classification_results
			(item_id, tier, summary, keywords, embedding, translation, latency_ms, filter_source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (item_id) DO UPDATE SET
			tier = EXCLUDED.tier,
			summary = EXCLUDED.summary,
			keywords = EXCLUDED.keywords,
			embedding = EXCLUDED.embedding,
			translation = EXCLUDED.translation,
			latency_ms = EXCLUDED.latency_ms,
			filter_source = EXCLUDED.filter_source,
			updated_at = NOW()
	`
	var embedding any
	if len(result.Embedding) > 0 {
		embedding = pgvector.NewVector(result.Embedding)
	}

	_, err := r.db.ExecContext(ctx, query,
		result.ItemID,
		string(result.Tier),
		sql.NullString{String: result.Summary, Valid: result.Summary != ""},
		pq.StringArray(result.Keywords),
		embedding,
		sql.NullString{String: result.Translation, Valid: result.Translation != ""},
		result.LatencyMs,
		string(result.FilterSource),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert result for %s: %w", result.ItemID, err)
	}
	return nil
}

// Get retrieves a result by item id, nil when absent.
func (r *ResultRepo) Get(ctx context.Context, itemID string) (*domain.ClassificationResult, error) {
	const query = `
		SELECT item_id, tier, summary, keywords, embedding, translation, latency_ms, filter_source
		FROM classification_results
		WHERE item_id = $1
	`
	var (
		result      domain.ClassificationResult
		tier        string
		summary     sql.NullString
		keywords    pq.StringArray
		embedding   nullVector
		translation sql.NullString
		source      string
	)
	err := r.db.QueryRowxContext(ctx, query, itemID).Scan(
		&result.ItemID, &tier, &summary, &keywords,
		&embedding, &translation, &result.LatencyMs, &source,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result for %s: %w", itemID, err)
	}

	result.Tier = domain.Tier(tier)
	result.Summary = summary.String
	result.Keywords = keywords
	result.Translation = translation.String
	result.FilterSource = domain.FilterSource(source)
	if embedding.Valid {
		result.Embedding = embedding.Vector.Slice()
	}
	return &result, nil
}
