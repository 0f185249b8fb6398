package httpadapter

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/kirillkom/career-case-rag/internal/config"
	"github.com/kirillkom/career-case-rag/internal/core/domain"
	"github.com/kirillkom/career-case-rag/internal/core/ports"
	"github.com/kirillkom/career-case-rag/internal/observability/metrics"
)

const (
	serviceName     = "career-api"
	maxRequestBytes = 1 << 20
)

// Services are the inbound ports the router dispatches to. Lexical, Cache and Metrics
// are optional.
type Services struct {
	Query   ports.CaseQueryService
	Search  ports.CaseSearchService
	History ports.HistoryService
	Lexical ports.LexicalIndexAdmin
	Cache   ports.EmbeddingCacheAdmin
	Metrics *metrics.HTTPServerMetrics
}

type Router struct {
	cfg config.Config
	svc Services
}

func NewRouter(cfg config.Config, svc Services) *Router {
	return &Router{cfg: cfg, svc: svc}
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("/v1/cases/query", rt.queryCases)
	api.HandleFunc("/v1/cases/search", rt.searchCases)
	api.HandleFunc("/v1/history", rt.history)
	api.HandleFunc("/v1/admin/lexical/reload", rt.reloadLexical)
	api.HandleFunc("/v1/admin/embedding-cache", rt.clearEmbeddingCache)

	var controlled http.Handler = api
	controlled = backpressureMiddleware(controlled, rt.cfg.APIMaxInFlight, rt.cfg.APIBackpressureMax, rt.reject)
	controlled = rateLimitMiddleware(controlled, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, rt.reject)

	root := http.NewServeMux()
	root.HandleFunc("/healthz", rt.healthz)
	if rt.svc.Metrics != nil {
		root.Handle("/metrics", rt.svc.Metrics.Handler())
	}
	root.Handle("/v1/", controlled)

	var handler http.Handler = root
	if rt.svc.Metrics != nil {
		handler = rt.svc.Metrics.Middleware(serviceName, handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) reject(reason string) {
	if rt.svc.Metrics != nil {
		rt.svc.Metrics.RecordRejected(serviceName, reason)
	}
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	lexical := "disabled"
	if rt.svc.Lexical != nil {
		lexical = "degraded"
		if rt.svc.Lexical.Enabled() {
			lexical = "enabled"
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "lexical": lexical})
}

type queryRequest struct {
	Question   string `json:"question"`
	Limit      int    `json:"limit"`
	MaxSources int    `json:"max_sources"`
}

func (rt *Router) queryCases(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req queryRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	answer, err := rt.svc.Query.Answer(r.Context(), req.Question, domain.QueryOptions{
		Limit:      req.Limit,
		MaxSources: req.MaxSources,
	})
	if err != nil {
		rt.writeDomainError(w, r, "query_cases_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (rt *Router) searchCases(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	if rt.svc.Search == nil {
		writeError(w, r, http.StatusNotFound, "case search is not enabled")
		return
	}
	var req queryRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := rt.svc.Search.Search(r.Context(), req.Question, req.Limit)
	if err != nil {
		rt.writeDomainError(w, r, "search_cases_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) history(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	if rt.svc.History == nil {
		writeError(w, r, http.StatusNotFound, "history is not enabled")
		return
	}

	userID := r.URL.Query().Get("user_id")
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, r, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	sessions, err := rt.svc.History.MeaningfulHistory(r.Context(), userID, limit)
	if err != nil {
		rt.writeDomainError(w, r, "history_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":  strings.TrimSpace(userID),
		"sessions": sessions,
	})
}

func (rt *Router) reloadLexical(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	if rt.svc.Lexical == nil {
		writeError(w, r, http.StatusNotFound, "lexical retriever is not configured")
		return
	}
	if err := rt.svc.Lexical.Rebuild(r.Context()); err != nil {
		rt.writeDomainError(w, r, "lexical_reload_request_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "reloaded", "enabled": rt.svc.Lexical.Enabled()})
}

func (rt *Router) clearEmbeddingCache(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodDelete) {
		return
	}
	if rt.svc.Cache == nil {
		writeError(w, r, http.StatusNotFound, "embedding cache is not configured")
		return
	}
	cleared, err := rt.svc.Cache.Clear(r.Context())
	if err != nil {
		rt.writeDomainError(w, r, "embedding_cache_clear_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"cleared": cleared})
}

func (rt *Router) writeDomainError(w http.ResponseWriter, r *http.Request, event string, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error(event, "request_id", requestIDFromContext(r.Context()), "error", err)
	}
	writeError(w, r, status, err.Error())
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, r, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error":      message,
		"request_id": requestIDFromContext(r.Context()),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
