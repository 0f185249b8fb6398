package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/career-case-rag/internal/core/domain"
	"github.com/kirillkom/career-case-rag/internal/infrastructure/resilience"
)

func TestGeneratorSendsSystemInstructionAndContext(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"response":"  move via SQL projects  "}`))
	}))
	defer server.Close()

	gen := NewGenerator(New(Config{BaseURL: server.URL, GenModel: "gen", EmbedModel: "embed"}))
	answer, err := gen.GenerateAnswer(context.Background(), "PM to analyst?", "[1] case text\nsimilarity: 0.90")
	if err != nil {
		t.Fatalf("GenerateAnswer() error = %v", err)
	}
	if answer != "move via SQL projects" {
		t.Fatalf("unexpected answer %q", answer)
	}
	prompt, _ := captured["prompt"].(string)
	if !strings.Contains(prompt, "PM to analyst?") || !strings.Contains(prompt, "[1] case text") {
		t.Fatalf("unexpected prompt: %s", prompt)
	}
	if captured["system"] != systemInstruction || captured["model"] != "gen" || captured["stream"] != false {
		t.Fatalf("unexpected request body: %+v", captured)
	}
}

func TestEmbedReturnsVectorsInOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if payload.Model != "embed" || len(payload.Input) != 2 {
			t.Errorf("unexpected payload: %+v", payload)
		}
		_, _ = w.Write([]byte(`{"embeddings":[[1,0],[0,1]]}`))
	}))
	defer server.Close()

	vectors, err := NewEmbedder(New(Config{BaseURL: server.URL, EmbedModel: "embed"})).Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vectors) != 2 || vectors[1][1] != 1 {
		t.Fatalf("unexpected vectors: %v", vectors)
	}
}

func TestEmbedCountMismatchIsMalformed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings":[[1,0]]}`))
	}))
	defer server.Close()

	_, err := NewEmbedder(New(Config{BaseURL: server.URL})).Embed(context.Background(), []string{"a", "b"})
	if !domain.IsKind(err, domain.ErrMalformedResponse) {
		t.Fatalf("expected malformed response, got %v", err)
	}
}

func TestEmbedQueryRejectsUndecodableBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>proxy error</html>`))
	}))
	defer server.Close()

	_, err := NewEmbedder(New(Config{BaseURL: server.URL})).EmbedQuery(context.Background(), "hello")
	if !domain.IsKind(err, domain.ErrMalformedResponse) {
		t.Fatalf("expected malformed response, got %v", err)
	}
}

func TestEmbedIncludesHTTPBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := NewEmbedder(New(Config{BaseURL: server.URL})).Embed(context.Background(), []string{"hello"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("expected response body in error, got %v", err)
	}
	if !domain.IsKind(err, domain.ErrUpstreamUnavailable) {
		t.Fatalf("expected upstream unavailable, got %v", err)
	}
}

func TestEmbedClientErrorIsNotUpstreamUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := NewEmbedder(New(Config{BaseURL: server.URL})).Embed(context.Background(), []string{"hello"})
	if err == nil || domain.IsKind(err, domain.ErrUpstreamUnavailable) {
		t.Fatalf("expected plain status error, got %v", err)
	}
}

func TestEmbedRetriesThroughExecutor(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"embeddings":[[0.5,0.5]]}`))
	}))
	defer server.Close()

	exec := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		RetryMultiplier:     1,
		BreakerEnabled:      false,
	})
	vec, err := NewEmbedder(New(Config{BaseURL: server.URL, ResilienceExecutor: exec})).EmbedQuery(context.Background(), "hello")
	if err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	if len(vec) != 2 || calls.Load() != 2 {
		t.Fatalf("expected success on second attempt, vec=%v calls=%d", vec, calls.Load())
	}
}

func TestEmbedUnreachableProviderIsUpstreamUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewEmbedder(New(Config{BaseURL: url})).EmbedQuery(context.Background(), "hello")
	if !domain.IsKind(err, domain.ErrUpstreamUnavailable) {
		t.Fatalf("expected upstream unavailable, got %v", err)
	}
}
