package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/career-case-rag/internal/core/domain"
)

type searchFake struct {
	question string
	limit    int
	err      error
}

func (f *searchFake) Search(_ context.Context, question string, limit int) (*domain.CaseSearchResult, error) {
	f.question, f.limit = question, limit
	if f.err != nil {
		return nil, f.err
	}
	sim := 0.8
	return &domain.CaseSearchResult{
		Question:   question,
		Sources:    []domain.Source{{ID: "c1", Content: "QA to backend", Similarity: &sim, Score: 1}},
		Confidence: 0.8,
	}, nil
}

type queryFake struct{ opts domain.QueryOptions }

func (f *queryFake) Answer(_ context.Context, question string, opts domain.QueryOptions) (*domain.CaseAnswer, error) {
	f.opts = opts
	return &domain.CaseAnswer{Question: question, Answer: "Learn Go.", Sources: []domain.Source{}}, nil
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatalf("empty tool result")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", res.Content[0])
	}
	return text.Text
}

func TestSearchCasesReturnsJSON(t *testing.T) {
	search := &searchFake{}
	h := NewHandlers(search, nil)

	res, err := h.SearchCases(context.Background(), callRequest(ToolSearchCases, map[string]any{"question": "QA to backend?", "limit": 3}))
	if err != nil {
		t.Fatalf("SearchCases() error = %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}
	var got domain.CaseSearchResult
	if err := json.Unmarshal([]byte(resultText(t, res)), &got); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if got.Confidence != 0.8 || len(got.Sources) != 1 || search.limit != 3 {
		t.Fatalf("unexpected result %+v limit=%d", got, search.limit)
	}
}

func TestSearchCasesRequiresQuestion(t *testing.T) {
	h := NewHandlers(&searchFake{}, nil)
	res, err := h.SearchCases(context.Background(), callRequest(ToolSearchCases, map[string]any{}))
	if err != nil {
		t.Fatalf("SearchCases() error = %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected tool error for missing question")
	}
}

func TestSearchCasesHidesUpstreamDetails(t *testing.T) {
	h := NewHandlers(&searchFake{err: domain.WrapError(domain.ErrUpstreamUnavailable, "embed", errors.New("dial tcp 10.0.0.3:11434"))}, nil)
	res, _ := h.SearchCases(context.Background(), callRequest(ToolSearchCases, map[string]any{"question": "q"}))
	if !res.IsError || strings.Contains(resultText(t, res), "10.0.0.3") {
		t.Fatalf("expected sanitized tool error, got %q", resultText(t, res))
	}
}

func TestAskCasesForwardsMaxSources(t *testing.T) {
	query := &queryFake{}
	h := NewHandlers(&searchFake{}, query)
	res, err := h.AskCases(context.Background(), callRequest(ToolAskCases, map[string]any{"question": "q", "max_sources": 2}))
	if err != nil || res.IsError {
		t.Fatalf("AskCases() err=%v result=%+v", err, res)
	}
	if query.opts.MaxSources != 2 {
		t.Fatalf("expected max_sources forwarded, got %+v", query.opts)
	}
}

func TestNewServerBuilds(t *testing.T) {
	if NewServer(NewHandlers(&searchFake{}, &queryFake{}), "test") == nil {
		t.Fatalf("expected server")
	}
}
