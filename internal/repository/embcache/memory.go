package embcache

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kailas-cloud/qanoneed/internal/db"
)

// MemoryStore is a bounded in-process store for deployments without Redis.
type MemoryStore struct {
	cache *lru.Cache[string, []byte]
}

// NewMemoryStore creates an LRU-backed store holding up to size vectors.
func NewMemoryStore(size int) (*MemoryStore, error) {
	c, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("embedding lru: %w", err)
	}
	return &MemoryStore{cache: c}, nil
}

// Get returns db.ErrKeyNotFound on a miss, mirroring the Redis store.
func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m.cache.Get(key)
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

// Set stores a value, evicting the least recently used entry when full.
func (m *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	m.cache.Add(key, value)
	return nil
}

// Len returns the number of cached vectors.
func (m *MemoryStore) Len() int { return m.cache.Len() }
