package cache

import (
	"slices"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache keeps entries in process until they expire
type MemoryCache struct {
	items *gocache.Cache
}

// NewMemoryCache expires entries after ttl and sweeps every cleanup
func NewMemoryCache(ttl, cleanup time.Duration) *MemoryCache {
	return &MemoryCache{items: gocache.New(ttl, cleanup)}
}

// Get returns a copy so callers cannot mutate the stored bytes
func (m *MemoryCache) Get(key string) ([]byte, bool) {
	v, ok := m.items.Get(key)
	if !ok {
		return nil, false
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, false
	}
	return slices.Clone(b), true
}

// Set stores a copy of value. A zero ttl means the cache default.
func (m *MemoryCache) Set(key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = gocache.DefaultExpiration
	}
	m.items.Set(key, slices.Clone(value), ttl)
	return nil
}

func (m *MemoryCache) Delete(key string) error {
	m.items.Delete(key)
	return nil
}

func (m *MemoryCache) Clear() error {
	m.items.Flush()
	return nil
}

// Len counts unexpired entries
func (m *MemoryCache) Len() int {
	return m.items.ItemCount()
}
