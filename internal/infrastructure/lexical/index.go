package lexical

import (
	"math"
	"sort"
	"strings"

	"github.com/kirillkom/career-case-rag/internal/core/domain"
)

const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

type indexedDoc struct {
	record domain.Record
	tf     map[string]float64
	length float64
}

// Index is an immutable Okapi BM25 index over record content and its text metadata.
type Index struct {
	docs      []indexedDoc
	df        map[string]int
	avgLength float64
}

// Build indexes records in input order. Records are not filtered here.
func Build(records []domain.Record) *Index {
	idx := &Index{
		docs: make([]indexedDoc, 0, len(records)),
		df:   make(map[string]int, 1024),
	}
	var total float64
	for _, rec := range records {
		tokens := Tokenize(indexText(rec))
		tf := termFrequencies(tokens)
		for term := range tf {
			idx.df[term]++
		}
		length := float64(len(tokens))
		total += length
		idx.docs = append(idx.docs, indexedDoc{record: rec, tf: tf, length: length})
	}
	if len(idx.docs) > 0 {
		idx.avgLength = total / float64(len(idx.docs))
	}
	return idx
}

func (idx *Index) Len() int {
	return len(idx.docs)
}

// Search scores every document against the distinct query terms and returns the top k with a
// positive score, ordered by score desc then record ID.
func (idx *Index) Search(query string, k int) []domain.ScoredResult {
	if k <= 0 || len(idx.docs) == 0 {
		return []domain.ScoredResult{}
	}
	queryTerms := termFrequencies(Tokenize(query))
	if len(queryTerms) == 0 {
		return []domain.ScoredResult{}
	}

	type scored struct {
		doc   int
		score float64
	}
	hits := make([]scored, 0, 32)
	for i, doc := range idx.docs {
		var score float64
		for term := range queryTerms {
			freq, ok := doc.tf[term]
			if !ok {
				continue
			}
			score += idx.idf(term) * saturate(freq, doc.length, idx.avgLength)
		}
		if score > 0 && !math.IsNaN(score) && !math.IsInf(score, 0) {
			hits = append(hits, scored{doc: i, score: score})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return idx.docs[hits[i].doc].record.ID < idx.docs[hits[j].doc].record.ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}

	out := make([]domain.ScoredResult, 0, len(hits))
	for rank, hit := range hits {
		out = append(out, domain.NewSparseResult(idx.docs[hit.doc].record, hit.score, rank+1))
	}
	return out
}

// idf is the non-negative BM25 variant ln(1 + (N - df + 0.5) / (df + 0.5)).
func (idx *Index) idf(term string) float64 {
	n := float64(len(idx.docs))
	df := float64(idx.df[term])
	return math.Log(1 + (n-df+0.5)/(df+0.5))
}

func saturate(tf, length, avgLength float64) float64 {
	norm := 1.0
	if avgLength > 0 {
		norm = 1 - bm25B + bm25B*length/avgLength
	}
	return (tf * (bm25K1 + 1)) / (tf + bm25K1*norm)
}

// indexText is the content plus the textual metadata fields, so role and skill terms match.
func indexText(rec domain.Record) string {
	parts := []string{rec.Content}
	for _, key := range []string{domain.MetaRole, domain.MetaDomain, domain.MetaSkills, "skill_tags"} {
		switch v := rec.Metadata[key].(type) {
		case string:
			parts = append(parts, v)
		case []string:
			parts = append(parts, v...)
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok {
					parts = append(parts, s)
				}
			}
		}
	}
	return strings.Join(parts, " ")
}
