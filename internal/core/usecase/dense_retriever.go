package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/kirillkom/career-case-rag/internal/core/domain"
	"github.com/kirillkom/career-case-rag/internal/core/ports"
)

// distanceEpsilon absorbs rounding below zero for exact matches.
const distanceEpsilon = 1e-6

// DenseRetriever ranks corpus records by embedding distance against one partition.
type DenseRetriever struct {
	embedder   ports.Embedder
	index      ports.VectorIndex
	partition  string
	dimensions int
	logger     *slog.Logger
}

func NewDenseRetriever(
	embedder ports.Embedder,
	index ports.VectorIndex,
	partition string,
	dimensions int,
	logger *slog.Logger,
) *DenseRetriever {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(partition) == "" {
		partition = domain.PartitionCareerCases
	}
	return &DenseRetriever{
		embedder:   embedder,
		index:      index,
		partition:  partition,
		dimensions: dimensions,
		logger:     logger,
	}
}

// Search returns at most k results ordered by ascending distance, ties broken by record ID.
func (r *DenseRetriever) Search(ctx context.Context, query string, k int) ([]domain.ScoredResult, error) {
	if k <= 0 {
		return []domain.ScoredResult{}, nil
	}

	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if r.dimensions > 0 && len(vector) != r.dimensions {
		return nil, domain.WrapError(
			domain.ErrIndexMismatch,
			"dense search",
			fmt.Errorf("query vector has %d dimensions, index expects %d", len(vector), r.dimensions),
		)
	}

	hits, err := r.index.Query(ctx, r.partition, vector, k)
	switch {
	case err == nil:
	case domain.IsKind(err, domain.ErrIndexEmpty):
		return []domain.ScoredResult{}, nil
	case domain.IsKind(err, domain.ErrMalformedResponse):
		r.logger.Warn("dense_index_malformed_response", "partition", r.partition, "error", err)
		return []domain.ScoredResult{}, nil
	default:
		return nil, fmt.Errorf("query vector index: %w", err)
	}

	n := hits.Len()
	if n < 0 {
		r.logger.Warn(
			"dense_index_shape_mismatch",
			"partition", r.partition,
			"ids", len(hits.IDs),
			"documents", len(hits.Documents),
			"metadatas", len(hits.Metadatas),
			"distances", len(hits.Distances),
		)
		return []domain.ScoredResult{}, nil
	}

	out := make([]domain.ScoredResult, 0, n)
	dropped := 0
	for i := 0; i < n; i++ {
		distance := hits.Distances[i]
		if distance < 0 && distance >= -distanceEpsilon {
			distance = 0
		}
		if math.IsNaN(distance) || math.IsInf(distance, 0) || distance < 0 || strings.TrimSpace(hits.IDs[i]) == "" {
			dropped++
			continue
		}
		rec := domain.Record{
			ID:        hits.IDs[i],
			Content:   hits.Documents[i],
			Partition: r.partition,
		}
		if hits.Metadatas != nil {
			rec.Metadata = hits.Metadatas[i]
		}
		out = append(out, domain.NewDenseResult(rec, distance, 0))
	}
	if dropped > 0 {
		r.logger.Warn("dense_index_invalid_hits", "partition", r.partition, "dropped", dropped)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].Record.ID < out[j].Record.ID
	})
	if len(out) > k {
		out = out[:k]
	}
	for i := range out {
		out[i].DenseRank = i + 1
	}
	return out, nil
}
