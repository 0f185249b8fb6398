// Package embedcache memoises embedding provider calls in a durable store keyed by content hash.
package embedcache

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/career-case-rag/internal/core/domain"
	"github.com/kirillkom/career-case-rag/internal/core/ports"
)

const DefaultNamespace = "default"

// Observer is notified of every cache lookup.
type Observer interface {
	ObserveEmbeddingCache(hit bool)
}

type Options struct {
	Namespace string
	TTL       time.Duration
	Logger    *slog.Logger
	Observer  Observer
}

// CachedEmbedder wraps an embedding provider. Identical text within one namespace is embedded
// once; later calls return the stored vector without touching the provider.
type CachedEmbedder struct {
	provider  ports.Embedder
	store     ports.EmbeddingCacheStore
	namespace string
	ttl       time.Duration
	logger    *slog.Logger
	observer  Observer
}

func NewCachedEmbedder(provider ports.Embedder, store ports.EmbeddingCacheStore, opts Options) *CachedEmbedder {
	namespace := strings.TrimSpace(opts.Namespace)
	if namespace == "" {
		namespace = DefaultNamespace
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedEmbedder{
		provider:  provider,
		store:     store,
		namespace: namespace,
		ttl:       opts.TTL,
		logger:    logger,
		observer:  opts.Observer,
	}
}

func (c *CachedEmbedder) Namespace() string {
	return c.namespace
}

func (c *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := Key(text)
	if vector, ok := c.lookup(ctx, key); ok {
		return vector, nil
	}

	vector, err := c.provider.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	c.persist(ctx, key, vector)
	return vector, nil
}

// Embed resolves cached vectors first and sends only the distinct misses to the provider
// in one batch. Output order matches texts.
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	missing := make(map[string][]int)
	var (
		missKeys  []string
		missTexts []string
	)

	for i, text := range texts {
		key := Key(text)
		if positions, seen := missing[key]; seen {
			missing[key] = append(positions, i)
			continue
		}
		if vector, ok := c.lookup(ctx, key); ok {
			out[i] = vector
			continue
		}
		missing[key] = []int{i}
		missKeys = append(missKeys, key)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vectors, err := c.provider.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missTexts) {
		return nil, domain.WrapError(
			domain.ErrMalformedResponse,
			"embed batch",
			fmt.Errorf("provider returned %d vectors for %d texts", len(vectors), len(missTexts)),
		)
	}

	for i, key := range missKeys {
		c.persist(ctx, key, vectors[i])
		for _, pos := range missing[key] {
			out[pos] = vectors[i]
		}
	}
	return out, nil
}

// Clear drops every entry of the active namespace.
func (c *CachedEmbedder) Clear(ctx context.Context) (int64, error) {
	n, err := c.store.Clear(ctx, c.namespace)
	if err != nil {
		return 0, fmt.Errorf("clear embedding cache: %w", err)
	}
	c.logger.Info("embedding_cache_cleared", "namespace", c.namespace, "entries", n)
	return n, nil
}

// lookup treats a store read failure as a miss.
func (c *CachedEmbedder) lookup(ctx context.Context, key string) ([]float32, bool) {
	vector, found, err := c.store.Get(ctx, c.namespace, key, c.ttl)
	if err != nil {
		c.logger.Warn("embedding_cache_get_failed", "namespace", c.namespace, "error", err)
		found = false
	}
	if found && len(vector) == 0 {
		found = false
	}
	if c.observer != nil {
		c.observer.ObserveEmbeddingCache(found)
	}
	return vector, found
}

func (c *CachedEmbedder) persist(ctx context.Context, key string, vector []float32) {
	if len(vector) == 0 {
		return
	}
	if err := c.store.Put(ctx, c.namespace, key, vector); err != nil {
		c.logger.Warn("embedding_cache_put_failed", "namespace", c.namespace, "error", err)
	}
}
