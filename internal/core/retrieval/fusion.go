package retrieval

import (
	"math"
	"sort"
	"strings"

	"github.com/kirillkom/career-case-rag/internal/core/domain"
)

type FusionStrategy string

const (
	FusionMinMax FusionStrategy = "minmax"
	FusionRRF    FusionStrategy = "rrf"

	defaultRRFK = 60
)

type FuseOptions struct {
	Strategy FusionStrategy
	RRFK     int
}

// ParseFusionStrategy falls back to min-max for unknown values.
func ParseFusionStrategy(s string) FusionStrategy {
	switch FusionStrategy(strings.ToLower(strings.TrimSpace(s))) {
	case FusionRRF:
		return FusionRRF
	default:
		return FusionMinMax
	}
}

func DefaultWeights() domain.FusionWeights {
	return domain.FusionWeights{Dense: 0.5, Sparse: 0.5}
}

// ResolveWeights picks the weights for one query. A disabled or empty lexical source collapses
// to dense-only; an empty dense list collapses to sparse-only. Otherwise the configured weights
// are normalised to sum to 1, defaulting to an even split.
func ResolveWeights(configured domain.FusionWeights, denseCount, sparseCount int, sparseEnabled bool) domain.FusionWeights {
	if !sparseEnabled || sparseCount == 0 {
		return domain.FusionWeights{Dense: 1, Sparse: 0}
	}
	if denseCount == 0 {
		return domain.FusionWeights{Dense: 0, Sparse: 1}
	}

	dense := math.Max(0, configured.Dense)
	sparse := math.Max(0, configured.Sparse)
	total := dense + sparse
	if total <= 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return DefaultWeights()
	}
	return domain.FusionWeights{Dense: dense / total, Sparse: sparse / total}
}

type fusedCandidate struct {
	result      domain.ScoredResult
	denseNorm   float64
	sparseNorm  float64
	inDense     bool
	inSparse    bool
	bestRank    int
	fusedScore  float64
	recordIsSet bool
}

// Fuse merges the dense (ascending distance) and sparse (descending score) lists into one
// ranking. Pure: identical inputs always produce identical output.
func Fuse(dense, sparse []domain.ScoredResult, weights domain.FusionWeights, opts FuseOptions) domain.FusedRanking {
	if opts.RRFK <= 0 {
		opts.RRFK = defaultRRFK
	}

	denseNorm := normalizeList(dense, denseSignal, opts)
	sparseNorm := normalizeList(sparse, sparseSignal, opts)

	acc := make(map[string]*fusedCandidate, len(dense)+len(sparse))
	for i, res := range dense {
		c := candidateFor(acc, res)
		if !c.inDense || denseNorm[i] > c.denseNorm {
			c.denseNorm = denseNorm[i]
		}
		if !c.inDense {
			c.result.Distance = res.Distance
			c.result.Similarity = res.Similarity
			c.result.HasDistance = res.HasDistance
			c.result.DenseRank = i + 1
		}
		c.inDense = true
		c.bestRank = minRank(c.bestRank, i+1)
	}
	for i, res := range sparse {
		c := candidateFor(acc, res)
		if !c.inSparse || sparseNorm[i] > c.sparseNorm {
			c.sparseNorm = sparseNorm[i]
		}
		if !c.inSparse {
			c.result.LexicalScore = res.LexicalScore
			c.result.SparseRank = i + 1
		}
		c.inSparse = true
		c.bestRank = minRank(c.bestRank, i+1)
	}

	candidates := make([]*fusedCandidate, 0, len(acc))
	for _, c := range acc {
		c.fusedScore = weights.Dense*c.denseNorm + weights.Sparse*c.sparseNorm
		candidates = append(candidates, c)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].fusedScore != candidates[j].fusedScore {
			return candidates[i].fusedScore > candidates[j].fusedScore
		}
		if candidates[i].bestRank != candidates[j].bestRank {
			return candidates[i].bestRank < candidates[j].bestRank
		}
		return candidates[i].result.Record.ID < candidates[j].result.Record.ID
	})

	out := make([]domain.ScoredResult, 0, len(candidates))
	for _, c := range candidates {
		res := c.result
		res.FusedScore = c.fusedScore
		out = append(out, res)
	}
	return domain.FusedRanking{Results: out, Weights: weights}
}

// Truncate returns the first limit results; limit <= 0 keeps everything.
func Truncate(results []domain.ScoredResult, limit int) []domain.ScoredResult {
	if limit <= 0 || len(results) <= limit {
		return results
	}
	return results[:limit]
}

func candidateFor(acc map[string]*fusedCandidate, res domain.ScoredResult) *fusedCandidate {
	c, ok := acc[res.Record.ID]
	if !ok {
		c = &fusedCandidate{}
		acc[res.Record.ID] = c
	}
	c.result.Record = preferRicherRecord(c.result.Record, res.Record, c.recordIsSet)
	c.recordIsSet = true
	return c
}

func preferRicherRecord(current, candidate domain.Record, set bool) domain.Record {
	if !set {
		return candidate
	}
	if strings.TrimSpace(current.Content) == "" && strings.TrimSpace(candidate.Content) != "" {
		current.Content = candidate.Content
	}
	if len(current.Metadata) == 0 && len(candidate.Metadata) > 0 {
		current.Metadata = candidate.Metadata
	}
	if current.Partition == "" {
		current.Partition = candidate.Partition
	}
	return current
}

func minRank(current, rank int) int {
	if current == 0 || rank < current {
		return rank
	}
	return current
}

func denseSignal(res domain.ScoredResult) float64  { return 1 - res.Distance }
func sparseSignal(res domain.ScoredResult) float64 { return res.LexicalScore }

// normalizeList maps one ranked list onto [0, 1]. Min-max uses the raw signal; a list whose
// signals are all equal maps to 1. RRF only looks at positions.
func normalizeList(list []domain.ScoredResult, signal func(domain.ScoredResult) float64, opts FuseOptions) []float64 {
	out := make([]float64, len(list))
	if len(list) == 0 {
		return out
	}

	if opts.Strategy == FusionRRF {
		for i := range list {
			out[i] = 1.0 / float64(opts.RRFK+i+1)
		}
		return out
	}

	minScore := signal(list[0])
	maxScore := minScore
	for _, res := range list[1:] {
		v := signal(res)
		if v < minScore {
			minScore = v
		}
		if v > maxScore {
			maxScore = v
		}
	}

	rangeScore := maxScore - minScore
	for i, res := range list {
		if rangeScore <= 0 {
			out[i] = 1
			continue
		}
		out[i] = (signal(res) - minScore) / rangeScore
	}
	return out
}
