// Package sqlite is the local single-file embedding cache backend.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kirillkom/career-case-rag/internal/infrastructure/embedcache"
)

const schema = `
CREATE TABLE IF NOT EXISTS embedding_cache (
	namespace   TEXT    NOT NULL,
	text_hash   TEXT    NOT NULL,
	vector      BLOB    NOT NULL,
	dimensions  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL,
	PRIMARY KEY (namespace, text_hash)
);
`

// EmbeddingCacheStore keeps vectors as little-endian float32 blobs in SQLite.
type EmbeddingCacheStore struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the database at path and runs migrations.
func Open(path string) (*EmbeddingCacheStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	store, err := NewEmbeddingCacheStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func NewEmbeddingCacheStore(db *sql.DB) (*EmbeddingCacheStore, error) {
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &EmbeddingCacheStore{db: db, now: time.Now}, nil
}

func (s *EmbeddingCacheStore) Close() error {
	return s.db.Close()
}

func (s *EmbeddingCacheStore) Get(ctx context.Context, namespace, key string, maxAge time.Duration) ([]float32, bool, error) {
	var (
		blob      []byte
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT vector, updated_at FROM embedding_cache
		WHERE namespace = ? AND text_hash = ?
	`, namespace, key).Scan(&blob, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select embedding: %w", err)
	}
	if maxAge > 0 && s.now().Sub(time.UnixMilli(updatedAt)) > maxAge {
		return nil, false, nil
	}

	vector, err := embedcache.DecodeVector(blob)
	if err != nil {
		return nil, false, fmt.Errorf("decode embedding: %w", err)
	}
	return vector, true, nil
}

func (s *EmbeddingCacheStore) Put(ctx context.Context, namespace, key string, vector []float32) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO embedding_cache (namespace, text_hash, vector, dimensions, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(namespace, text_hash) DO UPDATE SET
			vector = excluded.vector,
			dimensions = excluded.dimensions,
			updated_at = excluded.updated_at
	`, namespace, key, embedcache.EncodeVector(vector), len(vector), s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert embedding: %w", err)
	}
	return nil
}

func (s *EmbeddingCacheStore) Clear(ctx context.Context, namespace string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM embedding_cache WHERE namespace = ?`, namespace)
	if err != nil {
		return 0, fmt.Errorf("clear embeddings: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear embeddings rows affected: %w", err)
	}
	return n, nil
}
