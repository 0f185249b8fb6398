package ports

import (
	"context"

	"github.com/kirillkom/career-case-rag/internal/core/domain"
)

// CaseQueryService is the inbound contract for hybrid retrieval and grounded answers.
type CaseQueryService interface {
	Answer(ctx context.Context, question string, opts domain.QueryOptions) (*domain.CaseAnswer, error)
}

// CaseSearchService returns the fused, filtered ranking without calling generation.
type CaseSearchService interface {
	Search(ctx context.Context, question string, limit int) (*domain.CaseSearchResult, error)
}

// CorpusIngestor is the inbound contract for bulk corpus loading.
type CorpusIngestor interface {
	Ingest(ctx context.Context, partition string, records []domain.Record, replace bool) (*domain.IngestReport, error)
}

// HistoryService returns a user's meaningful chat history.
type HistoryService interface {
	MeaningfulHistory(ctx context.Context, userID string, limit int) ([]domain.ChatSession, error)
}

// LexicalIndexAdmin rebuilds the in-memory lexical index on demand.
type LexicalIndexAdmin interface {
	Rebuild(ctx context.Context) error
	Enabled() bool
}

// EmbeddingCacheAdmin clears cached vectors for the active namespace.
type EmbeddingCacheAdmin interface {
	Clear(ctx context.Context) (int64, error)
}
