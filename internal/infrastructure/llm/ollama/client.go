package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/career-case-rag/internal/core/domain"
	"github.com/kirillkom/career-case-rag/internal/infrastructure/resilience"
)

type Config struct {
	BaseURL            string
	GenModel           string
	EmbedModel         string
	Timeout            time.Duration
	ResilienceExecutor *resilience.Executor
}

type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		genModel:   cfg.GenModel,
		embedModel: cfg.EmbedModel,
		httpClient: &http.Client{Timeout: timeout},
		executor:   cfg.ResilienceExecutor,
	}
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

// Embed returns one vector per input text, in input order.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.call(ctx, "/api/embed", request, &response, "ollama_embed"); err != nil {
		return nil, err
	}
	if len(response.Embeddings) != len(texts) {
		return nil, domain.WrapError(domain.ErrMalformedResponse, "ollama embed",
			fmt.Errorf("expected %d embeddings, got %d", len(texts), len(response.Embeddings)))
	}
	for i, vec := range response.Embeddings {
		if len(vec) == 0 {
			return nil, domain.WrapError(domain.ErrMalformedResponse, "ollama embed", fmt.Errorf("embedding %d is empty", i))
		}
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) GenerateAnswer(ctx context.Context, question, contextBlock string) (string, error) {
	reqBody := map[string]any{
		"model":  g.client.genModel,
		"system": systemInstruction,
		"prompt": buildAnswerPrompt(question, contextBlock),
		"stream": false,
	}

	var response struct {
		Response string `json:"response"`
	}
	if err := g.client.call(ctx, "/api/generate", reqBody, &response, "ollama_generate"); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}

// call runs postJSON through the resilience executor when one is configured and maps
// exhausted transport failures to ErrUpstreamUnavailable.
func (c *Client) call(ctx context.Context, path string, payload, out any, operation string) error {
	run := func(ctx context.Context) error {
		return c.postJSON(ctx, path, payload, out, operation)
	}

	var err error
	if c.executor == nil {
		err = run(ctx)
	} else {
		err = c.executor.Execute(ctx, operation, run, classifyOllamaError)
	}
	return wrapUpstreamIfNeeded(operation, err)
}
