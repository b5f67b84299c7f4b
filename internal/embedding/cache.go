package embedding

import (
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache is an LRU cache of embeddings keyed by content hash, so unchanged
// text never hits the provider twice within a process lifetime.
type Cache struct {
	cache *lru.Cache[string, []float32]
}

// NewCache creates a cache with the given capacity.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = 10000
	}
	c, err := lru.New[string, []float32](capacity)
	if err != nil {
		c, _ = lru.New[string, []float32](10000)
	}
	return &Cache{cache: c}
}

// Get returns a copy of the cached embedding for key, if present. Copying
// prevents caller mutations from polluting the cache.
func (c *Cache) Get(key string) ([]float32, bool) {
	vec, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	out := make([]float32, len(vec))
	copy(out, vec)
	return out, true
}

// Set stores the embedding for key, evicting the oldest entry at capacity.
func (c *Cache) Set(key string, vec []float32) {
	c.cache.Add(key, vec)
}

// Len returns the current cache size.
func (c *Cache) Len() int {
	return c.cache.Len()
}

// HashText returns the sha256 cache key for a text.
func HashText(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}
