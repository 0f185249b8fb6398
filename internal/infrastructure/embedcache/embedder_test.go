package embedcache

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/kirillkom/career-case-rag/internal/core/domain"
)

type providerFake struct {
	queryCalls int
	batchCalls [][]string
	err        error
	short      bool
}

func vectorFor(text string) []float32 {
	return []float32{float32(len(text)), 0.1, float32(math.Pi)}
}

func (f *providerFake) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.queryCalls++
	if f.err != nil {
		return nil, f.err
	}
	return vectorFor(text), nil
}

func (f *providerFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.batchCalls = append(f.batchCalls, append([]string(nil), texts...))
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		out = append(out, vectorFor(text))
	}
	if f.short {
		out = out[:len(out)-1]
	}
	return out, nil
}

type failingStore struct {
	*MemoryStore
	putErr error
	getErr error
}

func (s *failingStore) Put(ctx context.Context, namespace, key string, vector []float32) error {
	if s.putErr != nil {
		return s.putErr
	}
	return s.MemoryStore.Put(ctx, namespace, key, vector)
}

func (s *failingStore) Get(ctx context.Context, namespace, key string, maxAge time.Duration) ([]float32, bool, error) {
	if s.getErr != nil {
		return nil, false, s.getErr
	}
	return s.MemoryStore.Get(ctx, namespace, key, maxAge)
}

type observerFake struct {
	hits, misses int
}

func (o *observerFake) ObserveEmbeddingCache(hit bool) {
	if hit {
		o.hits++
		return
	}
	o.misses++
}

func equalVectors(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Float32bits(a[i]) != math.Float32bits(b[i]) {
			return false
		}
	}
	return true
}

func TestEmbedQueryCachesByContent(t *testing.T) {
	provider := &providerFake{}
	observer := &observerFake{}
	c := NewCachedEmbedder(provider, NewMemoryStore(), Options{Observer: observer})

	first, err := c.EmbedQuery(context.Background(), "data engineer transition")
	if err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	second, err := c.EmbedQuery(context.Background(), "data engineer transition")
	if err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	if provider.queryCalls != 1 {
		t.Fatalf("expected exactly one provider call, got %d", provider.queryCalls)
	}
	if !equalVectors(first, second) {
		t.Fatalf("cached vector differs: %v vs %v", first, second)
	}
	if observer.hits != 1 || observer.misses != 1 {
		t.Fatalf("unexpected hit/miss counts: %+v", observer)
	}
}

func TestEmbedQueryNamespacesAreIsolated(t *testing.T) {
	provider := &providerFake{}
	store := NewMemoryStore()
	a := NewCachedEmbedder(provider, store, Options{Namespace: "model-a"})
	b := NewCachedEmbedder(provider, store, Options{Namespace: "model-b"})

	if _, err := a.EmbedQuery(context.Background(), "same text"); err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	if _, err := b.EmbedQuery(context.Background(), "same text"); err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	if provider.queryCalls != 2 {
		t.Fatalf("expected separate namespaces to miss independently, got %d calls", provider.queryCalls)
	}
}

func TestEmbedQueryProviderFailureWritesNothing(t *testing.T) {
	provider := &providerFake{err: domain.WrapError(domain.ErrUpstreamUnavailable, "ollama embed", errors.New("refused"))}
	store := NewMemoryStore()
	c := NewCachedEmbedder(provider, store, Options{})

	if _, err := c.EmbedQuery(context.Background(), "q"); !domain.IsKind(err, domain.ErrUpstreamUnavailable) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if _, found, _ := store.Get(context.Background(), DefaultNamespace, Key("q"), 0); found {
		t.Fatalf("failed provider call must not be cached")
	}
}

func TestEmbedQueryPersistFailureStillReturnsVector(t *testing.T) {
	provider := &providerFake{}
	store := &failingStore{MemoryStore: NewMemoryStore(), putErr: errors.New("disk full")}
	c := NewCachedEmbedder(provider, store, Options{})

	vector, err := c.EmbedQuery(context.Background(), "q")
	if err != nil {
		t.Fatalf("persist failure must not fail the call, got %v", err)
	}
	if !equalVectors(vector, vectorFor("q")) {
		t.Fatalf("unexpected vector %v", vector)
	}
}

func TestEmbedQueryStoreReadFailureFallsBackToProvider(t *testing.T) {
	provider := &providerFake{}
	store := &failingStore{MemoryStore: NewMemoryStore(), getErr: errors.New("locked")}
	c := NewCachedEmbedder(provider, store, Options{})

	if _, err := c.EmbedQuery(context.Background(), "q"); err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	if provider.queryCalls != 1 {
		t.Fatalf("expected provider fallback, got %d calls", provider.queryCalls)
	}
}

func TestEmbedQueryHonoursTTL(t *testing.T) {
	provider := &providerFake{}
	store := NewMemoryStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	c := NewCachedEmbedder(provider, store, Options{TTL: time.Hour})

	if _, err := c.EmbedQuery(context.Background(), "q"); err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	now = now.Add(30 * time.Minute)
	if _, err := c.EmbedQuery(context.Background(), "q"); err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	if provider.queryCalls != 1 {
		t.Fatalf("expected cache hit inside TTL, got %d calls", provider.queryCalls)
	}
	now = now.Add(2 * time.Hour)
	if _, err := c.EmbedQuery(context.Background(), "q"); err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	if provider.queryCalls != 2 {
		t.Fatalf("expected expired entry to be recomputed, got %d calls", provider.queryCalls)
	}
}

func TestEmbedBatchSendsOnlyDistinctMisses(t *testing.T) {
	provider := &providerFake{}
	c := NewCachedEmbedder(provider, NewMemoryStore(), Options{})

	if _, err := c.EmbedQuery(context.Background(), "cached"); err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	texts := []string{"alpha", "cached", "beta", "alpha"}
	got, err := c.Embed(context.Background(), texts)
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(provider.batchCalls) != 1 || len(provider.batchCalls[0]) != 2 {
		t.Fatalf("expected one batch with 2 distinct misses, got %v", provider.batchCalls)
	}
	for i, text := range texts {
		if !equalVectors(got[i], vectorFor(text)) {
			t.Fatalf("position %d: unexpected vector %v", i, got[i])
		}
	}

	if _, err := c.Embed(context.Background(), texts); err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(provider.batchCalls) != 1 {
		t.Fatalf("expected fully cached second batch, got %d provider calls", len(provider.batchCalls))
	}
}

func TestEmbedBatchCountMismatch(t *testing.T) {
	c := NewCachedEmbedder(&providerFake{short: true}, NewMemoryStore(), Options{})
	if _, err := c.Embed(context.Background(), []string{"a", "b"}); !domain.IsKind(err, domain.ErrMalformedResponse) {
		t.Fatalf("expected malformed response, got %v", err)
	}
}

func TestClearDropsNamespace(t *testing.T) {
	provider := &providerFake{}
	c := NewCachedEmbedder(provider, NewMemoryStore(), Options{Namespace: "ns"})
	for _, text := range []string{"a", "b"} {
		if _, err := c.EmbedQuery(context.Background(), text); err != nil {
			t.Fatalf("EmbedQuery() error = %v", err)
		}
	}

	n, err := c.Clear(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("Clear() = %d, %v; want 2, nil", n, err)
	}
	if _, err := c.EmbedQuery(context.Background(), "a"); err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	if provider.queryCalls != 3 {
		t.Fatalf("expected recompute after clear, got %d calls", provider.queryCalls)
	}
}

func TestVectorCodecRoundTripIsBitExact(t *testing.T) {
	in := []float32{0, -0.5, float32(math.Inf(1)), math.SmallestNonzeroFloat32, 1.0 / 3.0}
	out, err := DecodeVector(EncodeVector(in))
	if err != nil {
		t.Fatalf("DecodeVector() error = %v", err)
	}
	if !equalVectors(in, out) {
		t.Fatalf("round trip changed vector: %v -> %v", in, out)
	}
	if _, err := DecodeVector([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected error for truncated blob")
	}
}

func TestKeyIsHexSHA256(t *testing.T) {
	const want = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := Key(""); got != want {
		t.Fatalf("Key(\"\") = %s, want %s", got, want)
	}
	if Key("a") == Key("a ") {
		t.Fatalf("keys must be sensitive to exact text")
	}
}
