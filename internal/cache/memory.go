package cache

import (
	"time"

	"github.com/coocood/freecache"
)

// MemoryCache is a fixed-size in-process cache. Entries are evicted LRU
// once the segment fills, so a miss is always possible.
type MemoryCache struct {
	cache *freecache.Cache
}

func NewMemoryCache(size int) *MemoryCache {
	return &MemoryCache{cache: freecache.NewCache(size)}
}

func (m *MemoryCache) Get(key string, value any) error {
	data, err := m.cache.Get([]byte(key))
	if err != nil {
		return err
	}
	return decode(data, value)
}

// Set stores value. freecache counts expiry in whole seconds, and a
// sub-second expiration is rounded up so the entry is not kept forever.
func (m *MemoryCache) Set(key string, value any, expiration time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	secs := int(expiration / time.Second)
	if expiration > 0 && secs == 0 {
		secs = 1
	}
	return m.cache.Set([]byte(key), data, secs)
}

func (m *MemoryCache) Delete(keys ...string) error {
	for _, key := range keys {
		m.cache.Del([]byte(key))
	}
	return nil
}
