package retrieval

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kirillkom/career-case-rag/internal/core/domain"
)

const (
	DefaultContextMax = 3
	missingValue      = "N/A"
)

// Assemble renders the first maxCount results into the context block handed to generation.
func Assemble(results []domain.ScoredResult, maxCount int) string {
	if maxCount <= 0 {
		maxCount = DefaultContextMax
	}
	results = Truncate(results, maxCount)

	entries := make([]string, 0, len(results))
	for i, res := range results {
		entries = append(entries, renderEntry(i+1, res))
	}
	return strings.Join(entries, "\n\n")
}

func renderEntry(seq int, res domain.ScoredResult) string {
	meta := res.Record.Metadata
	similarity := missingValue
	if res.HasDistance {
		similarity = fmt.Sprintf("%.2f", res.Similarity)
	}

	return fmt.Sprintf(
		"[%d] %s\nyear: %s | role: %s | domain: %s | skills: %s\nsimilarity: %s",
		seq,
		strings.TrimSpace(res.Record.Content),
		metadataText(meta, domain.MetaYear),
		metadataText(meta, domain.MetaRole),
		metadataText(meta, domain.MetaDomain),
		metadataText(meta, domain.MetaSkills, "skill_tags"),
		similarity,
	)
}

// BuildSources converts the top results into the response shape.
func BuildSources(results []domain.ScoredResult, maxCount int) []domain.Source {
	if maxCount <= 0 {
		maxCount = DefaultContextMax
	}
	results = Truncate(results, maxCount)

	out := make([]domain.Source, 0, len(results))
	for _, res := range results {
		src := domain.Source{
			ID:       res.Record.ID,
			Content:  res.Record.Content,
			Metadata: res.Record.Metadata,
			Score:    res.FusedScore,
		}
		if res.HasDistance {
			similarity := res.Similarity
			src.Similarity = &similarity
		}
		out = append(out, src)
	}
	return out
}

func metadataText(meta map[string]any, keys ...string) string {
	for _, key := range keys {
		v, ok := meta[key]
		if !ok {
			continue
		}
		if text := formatMetaValue(v); text != missingValue {
			return text
		}
	}
	return missingValue
}

func formatMetaValue(v any) string {
	if IsEmptyValue(v) {
		return missingValue
	}

	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case []string:
		return joinMetaValues(len(t), func(i int) any { return t[i] })
	case []any:
		return joinMetaValues(len(t), func(i int) any { return t[i] })
	default:
		return fmt.Sprintf("%v", t)
	}
}

func joinMetaValues(n int, at func(int) any) string {
	parts := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if text := formatMetaValue(at(i)); text != missingValue {
			parts = append(parts, text)
		}
	}
	if len(parts) == 0 {
		return missingValue
	}
	return strings.Join(parts, ", ")
}
