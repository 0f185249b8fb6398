package retrieval

import (
	"strings"

	"github.com/kirillkom/career-case-rag/internal/core/domain"
)

// emptySentinels are placeholder strings treated as "no value". Compared lower-cased and trimmed.
var emptySentinels = map[string]struct{}{
	"n/a":       {},
	"na":        {},
	"null":      {},
	"undefined": {},
	"none":      {},
	"nil":       {},
	"unknown":   {},
	"no data":   {},
	"no info":   {},
	"*no info*": {},
	"없음":        {},
	"정보 없음":     {},
	"정보없음":      {},
}

const errorTagKey = "error"

// IsSentinel reports whether s is blank or one of the placeholder values.
func IsSentinel(s string) bool {
	normalized := strings.ToLower(strings.TrimSpace(s))
	if normalized == "" {
		return true
	}
	_, ok := emptySentinels[normalized]
	return ok
}

// IsEmptyValue classifies nil, blank strings, sentinels and empty collections as empty.
// It does not recurse; see IsMeaningful.
func IsEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return IsSentinel(t)
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}

// IsMeaningful is the recursive check for decoded documents. A top-level map carrying a truthy
// error tag is never meaningful; nested maps are meaningful when any non-error field is.
func IsMeaningful(v any) bool {
	if m, ok := v.(map[string]any); ok && hasErrorTag(m) {
		return false
	}
	return meaningful(v)
}

func meaningful(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return !IsSentinel(t)
	case bool:
		return t
	case map[string]any:
		for k, field := range t {
			if k == errorTagKey {
				continue
			}
			if meaningful(field) {
				return true
			}
		}
		return false
	case []any:
		for _, item := range t {
			if meaningful(item) {
				return true
			}
		}
		return false
	case []string:
		for _, item := range t {
			if !IsSentinel(item) {
				return true
			}
		}
		return false
	default:
		return true
	}
}

func hasErrorTag(m map[string]any) bool {
	v, ok := m[errorTagKey]
	if !ok {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return !IsSentinel(t)
	default:
		return meaningful(t)
	}
}

// HasContent keeps anything with at least one non-blank character that is not a sentinel.
func HasContent(content string) bool {
	return !IsSentinel(content)
}

// FilterMeaningful drops records whose content is empty or a placeholder.
func FilterMeaningful(records []domain.Record) []domain.Record {
	out := make([]domain.Record, 0, len(records))
	for _, rec := range records {
		if HasContent(rec.Content) {
			out = append(out, rec)
		}
	}
	return out
}

// FilterDocuments converts loosely shaped documents at the boundary and keeps meaningful ones.
// Documents that fail conversion or carry an error tag are dropped.
func FilterDocuments(docs []map[string]any) []domain.Record {
	out := make([]domain.Record, 0, len(docs))
	for _, doc := range docs {
		if !IsMeaningful(doc) {
			continue
		}
		rec, err := domain.RecordFromMap(doc)
		if err != nil {
			continue
		}
		if HasContent(rec.Content) {
			out = append(out, rec)
		}
	}
	return out
}

// FilterResults keeps ranked results whose record has content, preserving order.
func FilterResults(results []domain.ScoredResult) []domain.ScoredResult {
	out := make([]domain.ScoredResult, 0, len(results))
	for _, res := range results {
		if HasContent(res.Record.Content) {
			out = append(out, res)
		}
	}
	return out
}

// FilterMeaningfulHistory keeps sessions that identify someone or contain a usable exchange.
func FilterMeaningfulHistory(sessions []domain.ChatSession) []domain.ChatSession {
	out := make([]domain.ChatSession, 0, len(sessions))
	for _, s := range sessions {
		if sessionIsMeaningful(s) {
			out = append(out, s)
		}
	}
	return out
}

func sessionIsMeaningful(s domain.ChatSession) bool {
	if !IsSentinel(s.SessionID) || !IsSentinel(s.UserID) {
		return true
	}
	for _, msg := range s.Messages {
		if !IsSentinel(msg.Content) && !IsSentinel(msg.Role) {
			return true
		}
	}
	return !IsSentinel(s.Question) || !IsSentinel(s.Response)
}
