// Package mcpadapter exposes case retrieval as MCP tools.
package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/career-case-rag/internal/core/domain"
	"github.com/kirillkom/career-case-rag/internal/core/ports"
)

const (
	ToolSearchCases = "search_cases"
	ToolAskCases    = "ask_career_cases"
)

type Handlers struct {
	search ports.CaseSearchService
	query  ports.CaseQueryService
}

func NewHandlers(search ports.CaseSearchService, query ports.CaseQueryService) *Handlers {
	return &Handlers{search: search, query: query}
}

// NewServer registers the tools. The answer tool is only offered when a query service is wired.
func NewServer(h *Handlers, version string) *server.MCPServer {
	s := server.NewMCPServer("career-case-rag", version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s.AddTool(mcp.NewTool(ToolSearchCases,
		mcp.WithDescription("Hybrid search over career transition cases. Returns ranked sources and a confidence score without generating an answer."),
		mcp.WithString("question", mcp.Required(), mcp.Description("Free-text career question")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of cases to return"), mcp.Min(1), mcp.Max(50)),
	), h.SearchCases)

	if h.query != nil {
		s.AddTool(mcp.NewTool(ToolAskCases,
			mcp.WithDescription("Answer a career question grounded in the most similar cases."),
			mcp.WithString("question", mcp.Required(), mcp.Description("Free-text career question")),
			mcp.WithNumber("max_sources", mcp.Description("Cases to cite in the answer"), mcp.Min(1), mcp.Max(10)),
		), h.AskCases)
	}
	return s
}

func (h *Handlers) SearchCases(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := req.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	result, err := h.search.Search(ctx, question, req.GetInt("limit", 0))
	if err != nil {
		return toolError(ToolSearchCases, err), nil
	}
	return jsonResult(result)
}

func (h *Handlers) AskCases(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := req.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	answer, err := h.query.Answer(ctx, question, domain.QueryOptions{MaxSources: req.GetInt("max_sources", 0)})
	if err != nil {
		return toolError(ToolAskCases, err), nil
	}
	return jsonResult(answer)
}

func toolError(tool string, err error) *mcp.CallToolResult {
	slog.Warn("mcp_tool_failed", "tool", tool, "error", err)
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return mcp.NewToolResultError(err.Error())
	case domain.IsKind(err, domain.ErrUpstreamUnavailable), domain.IsKind(err, domain.ErrTemporary):
		return mcp.NewToolResultError("retrieval backend unavailable, retry later")
	default:
		return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", tool, err))
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return mcp.NewToolResultText(string(raw)), nil
}
