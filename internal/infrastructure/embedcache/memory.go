package embedcache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	blob     []byte
	storedAt time.Time
}

// MemoryStore is a process-local EmbeddingCacheStore. Vectors go through the same byte
// encoding as the durable stores so reads are bit-identical.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]map[string]memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, namespace, key string, maxAge time.Duration) ([]float32, bool, error) {
	s.mu.RLock()
	entry, ok := s.entries[namespace][key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if maxAge > 0 && s.now().Sub(entry.storedAt) > maxAge {
		return nil, false, nil
	}
	vector, err := DecodeVector(entry.blob)
	if err != nil {
		return nil, false, err
	}
	return vector, true, nil
}

func (s *MemoryStore) Put(_ context.Context, namespace, key string, vector []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.entries[namespace]
	if !ok {
		bucket = make(map[string]memoryEntry)
		s.entries[namespace] = bucket
	}
	bucket[key] = memoryEntry{blob: EncodeVector(vector), storedAt: s.now()}
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, namespace string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.entries[namespace]))
	delete(s.entries, namespace)
	return n, nil
}
