package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sync"
	"time"

	"recall/internal/domain"
)

// QueryCache memoizes query results per collection with LRU eviction and a
// TTL. Every mutation of a collection bumps its generation, so a stale result
// is never served after an ingest or delete.
type QueryCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	order   []string
	maxSize int
	ttl     time.Duration
	gens    map[string]uint64
}

type cacheEntry struct {
	collectionID string
	results      []domain.RetrievedChunk
	timestamp    time.Time
	gen          uint64
}

func NewQueryCache(maxSize int, ttl time.Duration) *QueryCache {
	if maxSize <= 0 {
		maxSize = 100
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &QueryCache{
		entries: make(map[string]*cacheEntry),
		order:   make([]string, 0, maxSize),
		maxSize: maxSize,
		ttl:     ttl,
		gens:    make(map[string]uint64),
	}
}

// Key derives a cache key from the collection, query text, and every option
// that affects the result.
func Key(collectionID, query string, topK, contextWindow int, category string, auto bool) string {
	h := sha256.New()
	h.Write([]byte(collectionID))
	h.Write([]byte{0})
	h.Write([]byte(query))
	h.Write([]byte{0})
	var opts [10]byte
	binary.BigEndian.PutUint32(opts[0:], uint32(topK))
	binary.BigEndian.PutUint32(opts[4:], uint32(contextWindow))
	if auto {
		opts[8] = 1
	}
	h.Write(opts[:])
	h.Write([]byte(category))
	return hex.EncodeToString(h.Sum(nil)[:16])
}

func (c *QueryCache) Get(collectionID, key string) ([]domain.RetrievedChunk, bool) {
	c.mu.RLock()
	entry, exists := c.entries[key]
	gen := c.gens[collectionID]
	c.mu.RUnlock()

	if !exists {
		return nil, false
	}
	if time.Since(entry.timestamp) > c.ttl || entry.gen != gen {
		c.mu.Lock()
		delete(c.entries, key)
		c.removeFromOrder(key)
		c.mu.Unlock()
		return nil, false
	}

	c.mu.Lock()
	c.moveToEnd(key)
	c.mu.Unlock()
	return entry.results, true
}

// Generation returns the collection's current invalidation generation.
// Callers capture it before computing a result and pass it to Put, so a
// mutation landing mid-computation still invalidates the entry.
func (c *QueryCache) Generation(collectionID string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gens[collectionID]
}

// Put stores a result computed at generation gen. An entry whose generation
// is already stale is stored but never served.
func (c *QueryCache) Put(collectionID, key string, gen uint64, results []domain.RetrievedChunk) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists {
		if len(c.entries) >= c.maxSize {
			c.evictOldest()
		}
		c.order = append(c.order, key)
	} else {
		c.moveToEnd(key)
	}

	c.entries[key] = &cacheEntry{
		collectionID: collectionID,
		results:      results,
		timestamp:    time.Now(),
		gen:          gen,
	}
}

// Invalidate marks all cached results for a collection stale.
func (c *QueryCache) Invalidate(collectionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[collectionID]++
}

func (c *QueryCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *QueryCache) evictOldest() {
	if len(c.order) == 0 {
		return
	}
	oldest := c.order[0]
	c.order = c.order[1:]
	delete(c.entries, oldest)
}

func (c *QueryCache) moveToEnd(key string) {
	c.removeFromOrder(key)
	c.order = append(c.order, key)
}

func (c *QueryCache) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
