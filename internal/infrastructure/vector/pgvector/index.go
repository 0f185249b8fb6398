// Package pgvector is the Postgres VectorIndex backend. Partitions share one table and
// distances come from the cosine operator, so they already follow the 1 - similarity rule.
package pgvector

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/kirillkom/career-case-rag/internal/core/domain"
)

const undefinedTable = "42P01"

type Index struct {
	db  *sql.DB
	now func() time.Time
}

func New(db *sql.DB) *Index {
	return &Index{db: db, now: time.Now}
}

// EnsureSchema installs the extension and the embeddings table for the given dimension.
func (i *Index) EnsureSchema(ctx context.Context, dimensions int) error {
	if dimensions <= 0 {
		return domain.WrapError(domain.ErrInvalidInput, "pgvector schema", fmt.Errorf("dimensions must be positive, got %d", dimensions))
	}
	if _, err := i.db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS case_embeddings (
	partition TEXT NOT NULL,
	id TEXT NOT NULL,
	content TEXT NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	embedding vector(%d) NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (partition, id)
)`, dimensions)
	if _, err := i.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create case_embeddings: %w", err)
	}
	if _, err := i.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_case_embeddings_hnsw ON case_embeddings USING hnsw (embedding vector_cosine_ops)`); err != nil {
		return fmt.Errorf("create embedding index: %w", err)
	}
	return nil
}

func (i *Index) Query(ctx context.Context, partition string, vector []float32, k int) (domain.IndexQueryResult, error) {
	if k <= 0 || len(vector) == 0 {
		return domain.IndexQueryResult{}, nil
	}

	rows, err := i.db.QueryContext(ctx, `
SELECT id, content, metadata, embedding <=> $2 AS distance
FROM case_embeddings
WHERE partition = $1
ORDER BY distance ASC, id ASC
LIMIT $3
`, partition, pgvector.NewVector(vector), k)
	if err != nil {
		return domain.IndexQueryResult{}, classify("pgvector query", err)
	}
	defer rows.Close()

	out := domain.IndexQueryResult{
		IDs:       make([]string, 0, k),
		Documents: make([]string, 0, k),
		Metadatas: make([]map[string]any, 0, k),
		Distances: make([]float64, 0, k),
	}
	for rows.Next() {
		var (
			id, content string
			rawMeta     []byte
			distance    float64
		)
		if err := rows.Scan(&id, &content, &rawMeta, &distance); err != nil {
			return domain.IndexQueryResult{}, domain.WrapError(domain.ErrMalformedResponse, "pgvector scan", err)
		}
		var meta map[string]any
		if len(rawMeta) > 0 {
			if err := json.Unmarshal(rawMeta, &meta); err != nil {
				return domain.IndexQueryResult{}, domain.WrapError(domain.ErrMalformedResponse, "pgvector metadata", err)
			}
		}
		out.IDs = append(out.IDs, id)
		out.Documents = append(out.Documents, content)
		out.Metadatas = append(out.Metadatas, meta)
		out.Distances = append(out.Distances, distance)
	}
	if err := rows.Err(); err != nil {
		return domain.IndexQueryResult{}, classify("pgvector iterate", err)
	}
	return out, nil
}

func (i *Index) Upsert(ctx context.Context, partition string, records []domain.Record, vectors [][]float32) error {
	if len(records) == 0 {
		return nil
	}
	if len(records) != len(vectors) {
		return domain.WrapError(domain.ErrInvalidInput, "pgvector upsert",
			fmt.Errorf("records/vectors mismatch: %d != %d", len(records), len(vectors)))
	}

	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("pgvector begin", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := i.now().UTC()
	for idx, rec := range records {
		meta := rec.Metadata
		if meta == nil {
			meta = map[string]any{}
		}
		rawMeta, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("marshal metadata of %s: %w", rec.ID, err)
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO case_embeddings (partition, id, content, metadata, embedding, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (partition, id) DO UPDATE SET
	content = EXCLUDED.content,
	metadata = EXCLUDED.metadata,
	embedding = EXCLUDED.embedding,
	updated_at = EXCLUDED.updated_at
`, partition, rec.ID, rec.Content, rawMeta, pgvector.NewVector(vectors[idx]), now)
		if err != nil {
			return classify("pgvector upsert "+rec.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return classify("pgvector commit", err)
	}
	return nil
}

func (i *Index) DeletePartition(ctx context.Context, partition string) error {
	_, err := i.db.ExecContext(ctx, `DELETE FROM case_embeddings WHERE partition = $1`, partition)
	if err == nil {
		return nil
	}
	err = classify("pgvector delete partition", err)
	if domain.IsKind(err, domain.ErrIndexEmpty) {
		return nil
	}
	return err
}

// classify maps driver errors onto domain kinds.
func classify(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == undefinedTable:
			return domain.WrapError(domain.ErrIndexEmpty, operation, err)
		case strings.Contains(pgErr.Message, "different vector dimensions"):
			return domain.WrapError(domain.ErrIndexMismatch, operation, err)
		}
		return fmt.Errorf("%s: %w", operation, err)
	}

	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.As(err, &netErr) {
		return domain.WrapError(domain.ErrUpstreamUnavailable, operation, err)
	}
	return fmt.Errorf("%s: %w", operation, err)
}
