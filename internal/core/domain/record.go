package domain

import (
	"fmt"
	"strings"
)

const (
	PartitionCareerCases   = "career_cases"
	PartitionCourseCatalog = "course_catalog"
)

// Metadata keys rendered into the generation context.
const (
	MetaYear   = "year"
	MetaRole   = "role"
	MetaDomain = "domain"
	MetaSkills = "skills"
)

// Record is an immutable corpus entry. Content is required; every metadata key is optional.
type Record struct {
	ID        string         `json:"id" yaml:"id"`
	Content   string         `json:"content" yaml:"content"`
	Metadata  map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Partition string         `json:"partition,omitempty" yaml:"partition,omitempty"`
}

// RecordFromMap converts a loosely shaped document (decoded JSON, index payload) into a Record.
// Accepted content keys are "content", "document" and "text"; every other key except
// "id" and "partition" is kept as metadata unless a nested "metadata" map is present.
func RecordFromMap(raw map[string]any) (Record, error) {
	if raw == nil {
		return Record{}, WrapError(ErrInvalidInput, "record from map", fmt.Errorf("nil document"))
	}

	id := stringField(raw, "id")
	if id == "" {
		return Record{}, WrapError(ErrInvalidInput, "record from map", fmt.Errorf("id is required"))
	}

	rec := Record{
		ID:        id,
		Partition: stringField(raw, "partition"),
	}
	for _, key := range []string{"content", "document", "text"} {
		if s := stringField(raw, key); s != "" {
			rec.Content = s
			break
		}
	}

	if nested, ok := raw["metadata"].(map[string]any); ok {
		rec.Metadata = cloneMetadata(nested)
		return rec, nil
	}

	meta := make(map[string]any, len(raw))
	for k, v := range raw {
		switch k {
		case "id", "partition", "content", "document", "text":
			continue
		}
		meta[k] = v
	}
	if len(meta) > 0 {
		rec.Metadata = meta
	}
	return rec, nil
}

func stringField(raw map[string]any, key string) string {
	v, ok := raw[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprintf("%v", v))
}

func cloneMetadata(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// ScoredResult is a per-query view of a Record. HasDistance is false for records that only
// the lexical retriever returned; Distance and Similarity are meaningless in that case.
type ScoredResult struct {
	Record       Record  `json:"record"`
	Distance     float64 `json:"distance"`
	Similarity   float64 `json:"similarity"`
	HasDistance  bool    `json:"has_distance"`
	LexicalScore float64 `json:"lexical_score,omitempty"`
	FusedScore   float64 `json:"fused_score"`
	DenseRank    int     `json:"dense_rank,omitempty"`
	SparseRank   int     `json:"sparse_rank,omitempty"`
}

// NewDenseResult builds a result from a vector-index hit.
func NewDenseResult(rec Record, distance float64, rank int) ScoredResult {
	return ScoredResult{
		Record:      rec,
		Distance:    distance,
		Similarity:  1 - distance,
		HasDistance: true,
		DenseRank:   rank,
	}
}

// NewSparseResult builds a result from a lexical-index hit.
func NewSparseResult(rec Record, score float64, rank int) ScoredResult {
	return ScoredResult{
		Record:       rec,
		LexicalScore: score,
		SparseRank:   rank,
	}
}

// FusionWeights are the per-source weights applied after normalisation.
type FusionWeights struct {
	Dense  float64 `json:"dense"`
	Sparse float64 `json:"sparse"`
}

// FusedRanking is ordered by non-increasing FusedScore and holds each record ID once.
type FusedRanking struct {
	Results []ScoredResult `json:"results"`
	Weights FusionWeights  `json:"weights"`
}

// Distances returns the distances of results that carry a dense distance.
func (r FusedRanking) Distances() []float64 {
	out := make([]float64, 0, len(r.Results))
	for _, res := range r.Results {
		if res.HasDistance {
			out = append(out, res.Distance)
		}
	}
	return out
}

// IndexQueryResult mirrors the parallel-array shape returned by vector index stores.
type IndexQueryResult struct {
	IDs       []string
	Documents []string
	Metadatas []map[string]any
	Distances []float64
}

// Len reports the number of hits, or -1 when the parallel slices disagree.
func (r IndexQueryResult) Len() int {
	n := len(r.IDs)
	if len(r.Documents) != n || len(r.Distances) != n {
		return -1
	}
	if r.Metadatas != nil && len(r.Metadatas) != n {
		return -1
	}
	return n
}
