package pgvector

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kirillkom/career-case-rag/internal/core/domain"
)

func newIndexWithMock(t *testing.T) (*Index, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	idx := New(db)
	idx.now = func() time.Time { return time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC) }
	return idx, mock, func() { _ = db.Close() }
}

func TestQueryReturnsParallelArrays(t *testing.T) {
	idx, mock, done := newIndexWithMock(t)
	defer done()

	rows := sqlmock.NewRows([]string{"id", "content", "metadata", "distance"}).
		AddRow("c1", "PM to analyst", []byte(`{"role":"PM"}`), 0.1).
		AddRow("c2", "QA to backend", []byte(`{}`), 0.4)
	mock.ExpectQuery("SELECT id, content, metadata, embedding <=>").
		WithArgs("career_cases", sqlmock.AnyArg(), 5).
		WillReturnRows(rows)

	got, err := idx.Query(context.Background(), "career_cases", []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if got.Len() != 2 || got.IDs[1] != "c2" || got.Distances[0] != 0.1 || got.Metadatas[0]["role"] != "PM" {
		t.Fatalf("unexpected result: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestQueryMapsDriverErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind error
	}{
		{name: "missing table", err: &pgconn.PgError{Code: "42P01", Message: `relation "case_embeddings" does not exist`}, kind: domain.ErrIndexEmpty},
		{name: "dimension mismatch", err: &pgconn.PgError{Code: "22000", Message: "different vector dimensions 768 and 2"}, kind: domain.ErrIndexMismatch},
		{name: "network failure", err: &net.OpError{Op: "read", Net: "tcp", Err: errors.New("connection reset by peer")}, kind: domain.ErrUpstreamUnavailable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			idx, mock, done := newIndexWithMock(t)
			defer done()

			mock.ExpectQuery("SELECT id, content, metadata").WillReturnError(tc.err)
			_, err := idx.Query(context.Background(), "career_cases", []float32{1, 0}, 3)
			if !domain.IsKind(err, tc.kind) {
				t.Fatalf("expected %v, got %v", tc.kind, err)
			}
		})
	}
}

func TestQueryZeroKSkipsDatabase(t *testing.T) {
	idx, mock, done := newIndexWithMock(t)
	defer done()

	got, err := idx.Query(context.Background(), "career_cases", []float32{1}, 0)
	if err != nil || got.Len() != 0 {
		t.Fatalf("expected empty result, got %+v err=%v", got, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpsertWritesEveryRecordInTransaction(t *testing.T) {
	idx, mock, done := newIndexWithMock(t)
	defer done()

	mock.ExpectBegin()
	for _, id := range []string{"c1", "c2"} {
		mock.ExpectExec("INSERT INTO case_embeddings").
			WithArgs("career_cases", id, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	err := idx.Upsert(context.Background(), "career_cases",
		[]domain.Record{{ID: "c1", Content: "a"}, {ID: "c2", Content: "b"}},
		[][]float32{{1, 0}, {0, 1}})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpsertRejectsLengthMismatch(t *testing.T) {
	idx, _, done := newIndexWithMock(t)
	defer done()

	err := idx.Upsert(context.Background(), "career_cases", []domain.Record{{ID: "c1"}}, nil)
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestDeletePartitionIgnoresMissingTable(t *testing.T) {
	idx, mock, done := newIndexWithMock(t)
	defer done()

	mock.ExpectExec("DELETE FROM case_embeddings").
		WithArgs("career_cases").
		WillReturnError(&pgconn.PgError{Code: "42P01"})

	if err := idx.DeletePartition(context.Background(), "career_cases"); err != nil {
		t.Fatalf("DeletePartition() error = %v", err)
	}
}

func TestEnsureSchemaCreatesExtensionAndTable(t *testing.T) {
	idx, mock, done := newIndexWithMock(t)
	defer done()

	mock.ExpectExec("CREATE EXTENSION IF NOT EXISTS vector").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`vector\(768\)`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_case_embeddings_hnsw").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := idx.EnsureSchema(context.Background(), 768); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
