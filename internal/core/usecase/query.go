package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/career-case-rag/internal/core/domain"
	"github.com/kirillkom/career-case-rag/internal/core/ports"
	"github.com/kirillkom/career-case-rag/internal/core/retrieval"
)

const defaultTopK = 5

type QueryConfig struct {
	TopK          int
	ContextMax    int
	Weights       domain.FusionWeights
	Fusion        retrieval.FuseOptions
	MinConfidence float64
	Timeout       time.Duration
}

// QueryUseCase runs hybrid retrieval and hands the assembled context to generation.
type QueryUseCase struct {
	dense     ports.DenseSearcher
	sparse    ports.SparseSearcher
	generator ports.AnswerGenerator
	observer  ports.RetrievalObserver
	cfg       QueryConfig
}

func NewQueryUseCase(
	dense ports.DenseSearcher,
	sparse ports.SparseSearcher,
	generator ports.AnswerGenerator,
	observer ports.RetrievalObserver,
	cfg QueryConfig,
) *QueryUseCase {
	if cfg.TopK <= 0 {
		cfg.TopK = defaultTopK
	}
	if cfg.ContextMax <= 0 {
		cfg.ContextMax = retrieval.DefaultContextMax
	}
	if cfg.Weights.Dense <= 0 && cfg.Weights.Sparse <= 0 {
		cfg.Weights = retrieval.DefaultWeights()
	}
	if cfg.Fusion.Strategy == "" {
		cfg.Fusion.Strategy = retrieval.FusionMinMax
	}

	return &QueryUseCase{
		dense:     dense,
		sparse:    sparse,
		generator: generator,
		observer:  observer,
		cfg:       cfg,
	}
}

func (uc *QueryUseCase) Answer(ctx context.Context, question string, opts domain.QueryOptions) (*domain.CaseAnswer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "answer question", fmt.Errorf("question is required"))
	}
	limit, maxSources := uc.limits(opts.Limit, opts.MaxSources)

	ctx, cancel := uc.withTimeout(ctx)
	defer cancel()

	ranking, stats, err := uc.retrieve(ctx, question, limit)
	if err != nil {
		return nil, err
	}

	if len(ranking.Results) == 0 {
		uc.observe(stats)
		return &domain.CaseAnswer{
			Question:   question,
			Answer:     domain.NoRelevantCaseMessage,
			Sources:    []domain.Source{},
			Confidence: 0,
		}, nil
	}

	confidence := retrieval.Score(ranking.Distances())
	stats.Confidence = confidence
	answer := &domain.CaseAnswer{
		Question:   question,
		Sources:    retrieval.BuildSources(ranking.Results, maxSources),
		Confidence: confidence,
	}

	if uc.cfg.MinConfidence > 0 && confidence < uc.cfg.MinConfidence {
		stats.Gated = true
		uc.observe(stats)
		answer.Answer = domain.LowConfidenceMessage
		return answer, nil
	}
	uc.observe(stats)

	contextBlock := retrieval.Assemble(ranking.Results, maxSources)
	text, err := uc.generator.GenerateAnswer(ctx, question, contextBlock)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}
	answer.Answer = text
	return answer, nil
}

// Search returns the filtered fused ranking and its confidence without generation.
func (uc *QueryUseCase) Search(ctx context.Context, question string, limit int) (*domain.CaseSearchResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search cases", fmt.Errorf("question is required"))
	}
	limit, maxSources := uc.limits(limit, limit)

	ctx, cancel := uc.withTimeout(ctx)
	defer cancel()

	ranking, stats, err := uc.retrieve(ctx, question, limit)
	if err != nil {
		return nil, err
	}
	confidence := retrieval.Score(ranking.Distances())
	stats.Confidence = confidence
	uc.observe(stats)

	return &domain.CaseSearchResult{
		Question:       question,
		Sources:        retrieval.BuildSources(ranking.Results, maxSources),
		Confidence:     confidence,
		Context:        retrieval.Assemble(ranking.Results, maxSources),
		Weights:        ranking.Weights,
		LexicalEnabled: stats.LexicalEnabled,
	}, nil
}

// retrieve runs both retrievers concurrently, fuses, filters and trims to limit.
// A dense failure fails the whole request; the sparse side cannot fail.
func (uc *QueryUseCase) retrieve(ctx context.Context, question string, limit int) (domain.FusedRanking, domain.RetrievalStats, error) {
	var (
		dense  []domain.ScoredResult
		sparse []domain.ScoredResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		results, err := uc.dense.Search(gctx, question, limit)
		if err != nil {
			return fmt.Errorf("dense search: %w", err)
		}
		dense = results
		return nil
	})
	if uc.sparse != nil {
		g.Go(func() error {
			sparse = uc.sparse.Search(gctx, question, limit)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.FusedRanking{}, domain.RetrievalStats{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.FusedRanking{}, domain.RetrievalStats{}, err
	}

	lexicalEnabled := uc.sparse != nil && uc.sparse.Enabled()
	weights := retrieval.ResolveWeights(uc.cfg.Weights, len(dense), len(sparse), lexicalEnabled)
	ranking := retrieval.Fuse(dense, sparse, weights, uc.cfg.Fusion)
	ranking.Results = retrieval.Truncate(retrieval.FilterResults(ranking.Results), limit)
	return ranking, domain.RetrievalStats{
		DenseCount:     len(dense),
		SparseCount:    len(sparse),
		FusedCount:     len(ranking.Results),
		LexicalEnabled: lexicalEnabled,
	}, nil
}

func (uc *QueryUseCase) limits(limit, maxSources int) (int, int) {
	if limit <= 0 {
		limit = uc.cfg.TopK
	}
	if maxSources <= 0 {
		maxSources = uc.cfg.ContextMax
	}
	return limit, maxSources
}

func (uc *QueryUseCase) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if uc.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, uc.cfg.Timeout)
}

func (uc *QueryUseCase) observe(stats domain.RetrievalStats) {
	if uc.observer == nil {
		return
	}
	uc.observer.ObserveRetrieval(stats)
}
