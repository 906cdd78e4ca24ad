package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// MemoryStore keeps entries in process memory. Cost is the entry size in
// bytes, bounded by maxBytes.
type MemoryStore struct {
	cache *ristretto.Cache[string, []byte]
}

// NewMemoryStore creates an in-process store holding up to maxBytes of
// values.
func NewMemoryStore(maxBytes int64) (*MemoryStore, error) {
	if maxBytes <= 0 {
		return nil, fmt.Errorf("memory store: max bytes must be positive, got %d", maxBytes)
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: 10_000,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}
	return &MemoryStore{cache: c}, nil
}

// Get returns the value stored under key.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	value, ok := s.cache.Get(key)
	return value, ok, nil
}

// Set stores value under key for ttl. The write is visible to the next Get.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if !s.cache.SetWithTTL(key, value, int64(len(value))+1, ttl) {
		return fmt.Errorf("memory store rejected %q", key)
	}
	s.cache.Wait()
	return nil
}

// Close releases the cache's background goroutines.
func (s *MemoryStore) Close() {
	s.cache.Close()
}
