package embeddings

import (
	"sort"
	"sync"

	"github.com/ternarybob/nomad/internal/models"
)

// embeddingCache memoizes embeddings keyed by text hash. When the entry
// count exceeds capacity the oldest entries are trimmed away, keeping the
// most recently inserted retain entries.
type embeddingCache struct {
	mu       sync.Mutex
	entries  map[string]models.EmbeddingCacheEntry
	seq      uint64
	capacity int
	retain   int
}

func newEmbeddingCache(capacity, retain int) *embeddingCache {
	if retain > capacity {
		retain = capacity
	}
	return &embeddingCache{
		entries:  make(map[string]models.EmbeddingCacheEntry),
		capacity: capacity,
		retain:   retain,
	}
}

func (c *embeddingCache) get(hash string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[hash]
	if !ok {
		return nil, false
	}
	return entry.Embedding, true
}

func (c *embeddingCache) put(hash string, embedding []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.entries[hash] = models.EmbeddingCacheEntry{
		TextHash:  hash,
		Embedding: embedding,
		Seq:       c.seq,
	}
	if len(c.entries) > c.capacity {
		c.trimLocked()
	}
}

// trimLocked drops the oldest entries until retain remain. Caller holds mu.
func (c *embeddingCache) trimLocked() {
	all := make([]models.EmbeddingCacheEntry, 0, len(c.entries))
	for _, entry := range c.entries {
		all = append(all, entry)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Seq < all[j].Seq })

	for _, entry := range all[:len(all)-c.retain] {
		delete(c.entries, entry.TextHash)
	}
}

func (c *embeddingCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// snapshot returns all entries ordered by insertion sequence.
func (c *embeddingCache) snapshot() []models.EmbeddingCacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	all := make([]models.EmbeddingCacheEntry, 0, len(c.entries))
	for _, entry := range c.entries {
		all = append(all, entry)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Seq < all[j].Seq })
	return all
}

// restore replaces the cache contents with persisted entries, preserving
// their relative age for future trims.
func (c *embeddingCache) restore(entries []models.EmbeddingCacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]models.EmbeddingCacheEntry, len(entries))
	c.seq = 0
	for _, entry := range entries {
		c.seq++
		entry.Seq = c.seq
		c.entries[entry.TextHash] = entry
	}
}
