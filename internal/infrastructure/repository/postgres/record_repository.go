package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kirillkom/career-case-rag/internal/core/domain"
)

// RecordRepository stores ingested case records. It doubles as the lexical corpus
// source when no corpus file is configured.
type RecordRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewRecordRepository(db *sql.DB) *RecordRepository {
	return &RecordRepository{db: db, now: time.Now}
}

// LoadRecords returns every record of the partition ordered by id. An empty partition
// selects all records.
func (r *RecordRepository) LoadRecords(ctx context.Context, partition string) ([]domain.Record, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT partition, id, content, metadata
FROM case_records
WHERE $1 = '' OR partition = $1
ORDER BY partition, id
`, partition)
	if err != nil {
		return nil, fmt.Errorf("load case records: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Record, 0)
	for rows.Next() {
		var (
			rec     domain.Record
			rawMeta []byte
		)
		if err := rows.Scan(&rec.Partition, &rec.ID, &rec.Content, &rawMeta); err != nil {
			return nil, fmt.Errorf("scan case record: %w", err)
		}
		if len(rawMeta) > 0 {
			if err := json.Unmarshal(rawMeta, &rec.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata of %s: %w", rec.ID, err)
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate case records: %w", err)
	}
	return out, nil
}

// ReplacePartition swaps the partition contents in one transaction.
func (r *RecordRepository) ReplacePartition(ctx context.Context, partition string, records []domain.Record) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM case_records WHERE partition = $1`, partition); err != nil {
		return fmt.Errorf("delete partition %s: %w", partition, err)
	}
	if err := r.upsert(ctx, tx, partition, records); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace tx: %w", err)
	}
	return nil
}

func (r *RecordRepository) UpsertRecords(ctx context.Context, partition string, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := r.upsert(ctx, tx, partition, records); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert tx: %w", err)
	}
	return nil
}

func (r *RecordRepository) upsert(ctx context.Context, tx *sql.Tx, partition string, records []domain.Record) error {
	now := r.now().UTC()
	for _, rec := range records {
		meta := rec.Metadata
		if meta == nil {
			meta = map[string]any{}
		}
		rawMeta, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("marshal metadata of %s: %w", rec.ID, err)
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO case_records (partition, id, content, metadata, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (partition, id) DO UPDATE SET
	content = EXCLUDED.content,
	metadata = EXCLUDED.metadata,
	updated_at = EXCLUDED.updated_at
`, partition, rec.ID, rec.Content, rawMeta, now)
		if err != nil {
			return fmt.Errorf("upsert case record %s: %w", rec.ID, err)
		}
	}
	return nil
}
