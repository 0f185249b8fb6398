package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/career-case-rag/internal/infrastructure/embedcache"
)

// EmbeddingCacheRepository is the shared embedding cache backend for multi-instance deployments.
type EmbeddingCacheRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewEmbeddingCacheRepository(db *sql.DB) *EmbeddingCacheRepository {
	return &EmbeddingCacheRepository{db: db, now: time.Now}
}

func (r *EmbeddingCacheRepository) Get(ctx context.Context, namespace, key string, maxAge time.Duration) ([]float32, bool, error) {
	var (
		blob      []byte
		updatedAt time.Time
	)
	err := r.db.QueryRowContext(ctx, `
SELECT vector, updated_at
FROM embedding_cache
WHERE namespace = $1 AND text_hash = $2
`, namespace, key).Scan(&blob, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select embedding: %w", err)
	}
	if maxAge > 0 && r.now().Sub(updatedAt) > maxAge {
		return nil, false, nil
	}

	vector, err := embedcache.DecodeVector(blob)
	if err != nil {
		return nil, false, fmt.Errorf("decode embedding: %w", err)
	}
	return vector, true, nil
}

func (r *EmbeddingCacheRepository) Put(ctx context.Context, namespace, key string, vector []float32) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO embedding_cache (namespace, text_hash, vector, dimensions, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (namespace, text_hash) DO UPDATE SET
	vector = EXCLUDED.vector,
	dimensions = EXCLUDED.dimensions,
	updated_at = EXCLUDED.updated_at
`, namespace, key, embedcache.EncodeVector(vector), len(vector), r.now().UTC())
	if err != nil {
		return fmt.Errorf("upsert embedding: %w", err)
	}
	return nil
}

func (r *EmbeddingCacheRepository) Clear(ctx context.Context, namespace string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM embedding_cache WHERE namespace = $1`, namespace)
	if err != nil {
		return 0, fmt.Errorf("clear embeddings: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear embeddings rows affected: %w", err)
	}
	return n, nil
}
