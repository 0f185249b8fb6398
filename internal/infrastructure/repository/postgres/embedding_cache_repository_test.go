package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/career-case-rag/internal/infrastructure/embedcache"
)

func newCacheRepoWithMock(t *testing.T, now time.Time) (*EmbeddingCacheRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	repo := NewEmbeddingCacheRepository(db)
	repo.now = func() time.Time { return now }
	return repo, mock, func() { _ = db.Close() }
}

func TestEmbeddingCacheGetHitAndExpiry(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	repo, mock, done := newCacheRepoWithMock(t, now)
	defer done()

	blob := embedcache.EncodeVector([]float32{0.25, -1})
	for i := 0; i < 2; i++ {
		mock.ExpectQuery("SELECT vector, updated_at").
			WithArgs("default", "hash").
			WillReturnRows(sqlmock.NewRows([]string{"vector", "updated_at"}).AddRow(blob, now.Add(-2*time.Hour)))
	}

	vec, found, err := repo.Get(context.Background(), "default", "hash", 0)
	if err != nil || !found || len(vec) != 2 || vec[1] != -1 {
		t.Fatalf("expected hit, got vec=%v found=%v err=%v", vec, found, err)
	}
	_, found, err = repo.Get(context.Background(), "default", "hash", time.Hour)
	if err != nil || found {
		t.Fatalf("expected expired entry to miss, found=%v err=%v", found, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestEmbeddingCacheGetMiss(t *testing.T) {
	repo, mock, done := newCacheRepoWithMock(t, time.Now())
	defer done()

	mock.ExpectQuery("SELECT vector, updated_at").
		WithArgs("default", "absent").
		WillReturnError(sql.ErrNoRows)

	_, found, err := repo.Get(context.Background(), "default", "absent", 0)
	if err != nil || found {
		t.Fatalf("expected clean miss, found=%v err=%v", found, err)
	}
}

func TestEmbeddingCachePutAndClear(t *testing.T) {
	repo, mock, done := newCacheRepoWithMock(t, time.Now())
	defer done()

	mock.ExpectExec("INSERT INTO embedding_cache").
		WithArgs("default", "hash", embedcache.EncodeVector([]float32{1, 2}), 2, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM embedding_cache").
		WithArgs("default").
		WillReturnResult(sqlmock.NewResult(0, 3))

	if err := repo.Put(context.Background(), "default", "hash", []float32{1, 2}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	n, err := repo.Clear(context.Background(), "default")
	if err != nil || n != 3 {
		t.Fatalf("expected 3 cleared rows, got %d err=%v", n, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
