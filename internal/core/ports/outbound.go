package ports

import (
	"context"
	"time"

	"github.com/kirillkom/career-case-rag/internal/core/domain"
)

// Embedder builds vectors for corpus records and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingCacheStore is a durable key-value store for vectors, scoped by namespace.
// Get reports found=false for missing or expired entries.
type EmbeddingCacheStore interface {
	Get(ctx context.Context, namespace, key string, maxAge time.Duration) (vector []float32, found bool, err error)
	Put(ctx context.Context, namespace, key string, vector []float32) error
	Clear(ctx context.Context, namespace string) (int64, error)
}

// VectorIndex is the persisted nearest-neighbour index, one partition per collection.
type VectorIndex interface {
	Query(ctx context.Context, partition string, vector []float32, k int) (domain.IndexQueryResult, error)
	Upsert(ctx context.Context, partition string, records []domain.Record, vectors [][]float32) error
	DeletePartition(ctx context.Context, partition string) error
}

// CorpusSource yields the flat document list the lexical index is built from.
type CorpusSource interface {
	LoadRecords(ctx context.Context, partition string) ([]domain.Record, error)
}

// RecordRepository persists ingested records.
type RecordRepository interface {
	CorpusSource
	ReplacePartition(ctx context.Context, partition string, records []domain.Record) error
	UpsertRecords(ctx context.Context, partition string, records []domain.Record) error
}

// AnswerGenerator produces free text from the assembled context. Text in, text out.
type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, question, contextBlock string) (string, error)
}

// DenseSearcher ranks records by embedding distance, ascending.
type DenseSearcher interface {
	Search(ctx context.Context, query string, k int) ([]domain.ScoredResult, error)
}

// SparseSearcher ranks records by lexical score, descending. It never fails a request:
// when disabled it returns no results and Enabled reports false.
type SparseSearcher interface {
	Search(ctx context.Context, query string, k int) []domain.ScoredResult
	Enabled() bool
}

// CorpusEvents publishes/consumes corpus re-index notifications.
type CorpusEvents interface {
	PublishCorpusReindexed(ctx context.Context, partition string) error
	SubscribeCorpusReindexed(ctx context.Context, handler func(context.Context, string) error) error
}

// SessionReader reads stored chat history. The core never writes to it.
type SessionReader interface {
	ListSessions(ctx context.Context, userID string, limit int) ([]domain.ChatSession, error)
}

// RetrievalObserver receives per-query retrieval measurements.
type RetrievalObserver interface {
	ObserveRetrieval(stats domain.RetrievalStats)
}
