package sqlite

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *EmbeddingCacheStore {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestEmbeddingCachePutGetIsBitExact(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	in := []float32{0.1, -2.5, float32(math.Pi), 1e-30}

	if err := store.Put(ctx, "ns", "hash-1", in); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	got, found, err := store.Get(ctx, "ns", "hash-1", 0)
	if err != nil || !found {
		t.Fatalf("Get() = found %v, err %v", found, err)
	}
	if len(got) != len(in) {
		t.Fatalf("expected %d components, got %d", len(in), len(got))
	}
	for i := range in {
		if math.Float32bits(got[i]) != math.Float32bits(in[i]) {
			t.Fatalf("component %d changed: %v -> %v", i, in[i], got[i])
		}
	}
}

func TestEmbeddingCacheMissAndNamespace(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, "a", "k", []float32{1}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, found, err := store.Get(ctx, "b", "k", 0); err != nil || found {
		t.Fatalf("expected miss in another namespace, found=%v err=%v", found, err)
	}
	if _, found, err := store.Get(ctx, "a", "missing", 0); err != nil || found {
		t.Fatalf("expected miss for unknown key, found=%v err=%v", found, err)
	}
}

func TestEmbeddingCacheUpsertOverwrites(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, "ns", "k", []float32{1, 2}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := store.Put(ctx, "ns", "k", []float32{3, 4}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	got, _, err := store.Get(ctx, "ns", "k", 0)
	if err != nil || len(got) != 2 || got[0] != 3 {
		t.Fatalf("expected last write to win, got %v err %v", got, err)
	}
}

func TestEmbeddingCacheTTL(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	if err := store.Put(ctx, "ns", "k", []float32{1}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	now = now.Add(10 * time.Minute)
	if _, found, _ := store.Get(ctx, "ns", "k", time.Hour); !found {
		t.Fatalf("expected hit inside TTL")
	}
	now = now.Add(2 * time.Hour)
	if _, found, _ := store.Get(ctx, "ns", "k", time.Hour); found {
		t.Fatalf("expected expired entry to miss")
	}
	if _, found, _ := store.Get(ctx, "ns", "k", 0); !found {
		t.Fatalf("expected unbounded read to ignore age")
	}
}

func TestEmbeddingCacheClear(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	for _, key := range []string{"a", "b", "c"} {
		if err := store.Put(ctx, "ns", key, []float32{1}); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}
	if err := store.Put(ctx, "other", "a", []float32{1}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	n, err := store.Clear(ctx, "ns")
	if err != nil || n != 3 {
		t.Fatalf("Clear() = %d, %v; want 3", n, err)
	}
	if _, found, _ := store.Get(ctx, "other", "a", 0); !found {
		t.Fatalf("clear must not touch other namespaces")
	}
}
