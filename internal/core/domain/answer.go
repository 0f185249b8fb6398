package domain

import "time"

const (
	NoRelevantCaseMessage = "No relevant case was found for this question."
	LowConfidenceMessage  = "The retrieved cases are not similar enough to answer this question reliably."
)

// Source is a rendered top result returned to the caller.
type Source struct {
	ID         string         `json:"id"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Similarity *float64       `json:"similarity,omitempty"`
	Score      float64        `json:"score"`
}

// CaseAnswer is the record handed back to API callers.
type CaseAnswer struct {
	Question   string   `json:"question"`
	Answer     string   `json:"answer"`
	Sources    []Source `json:"sources"`
	Confidence float64  `json:"confidence"`
}

type QueryOptions struct {
	Limit      int
	MaxSources int
}

// ChatMessage is one stored turn of a historical session.
type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// ChatSession is read-only history. Question and Response carry the legacy single-turn shape.
type ChatSession struct {
	SessionID string        `json:"session_id,omitempty"`
	UserID    string        `json:"user_id,omitempty"`
	Messages  []ChatMessage `json:"messages,omitempty"`
	Question  string        `json:"question,omitempty"`
	Response  string        `json:"response,omitempty"`
	UpdatedAt time.Time     `json:"updated_at,omitempty"`
}

// IngestReport summarises one corpus ingestion run.
type IngestReport struct {
	Partition string `json:"partition"`
	Received  int    `json:"received"`
	Skipped   int    `json:"skipped"`
	Indexed   int    `json:"indexed"`
	Replaced  bool   `json:"replaced"`
}

// CaseSearchResult is the retrieval-only view for callers that do their own generation.
type CaseSearchResult struct {
	Question       string        `json:"question"`
	Sources        []Source      `json:"sources"`
	Confidence     float64       `json:"confidence"`
	Context        string        `json:"context"`
	Weights        FusionWeights `json:"weights"`
	LexicalEnabled bool          `json:"lexical_enabled"`
}

// RetrievalStats describes one hybrid retrieval for metrics.
type RetrievalStats struct {
	DenseCount     int
	SparseCount    int
	FusedCount     int
	LexicalEnabled bool
	Confidence     float64
	Gated          bool
}
