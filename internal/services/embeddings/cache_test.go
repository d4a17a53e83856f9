package embeddings

import (
	"fmt"
	"testing"

	"github.com/ternarybob/nomad/internal/models"
)

func TestCacheTrimKeepsNewest(t *testing.T) {
	c := newEmbeddingCache(10, 5)

	for i := 0; i < 11; i++ {
		c.put(fmt.Sprintf("hash-%d", i), []float32{float32(i)})
	}

	if got := c.len(); got != 5 {
		t.Fatalf("cache holds %d entries after trim, want 5", got)
	}

	// The five most recently inserted survive.
	for i := 6; i <= 10; i++ {
		if _, ok := c.get(fmt.Sprintf("hash-%d", i)); !ok {
			t.Errorf("entry hash-%d trimmed, expected it kept", i)
		}
	}
	for i := 0; i <= 5; i++ {
		if _, ok := c.get(fmt.Sprintf("hash-%d", i)); ok {
			t.Errorf("entry hash-%d kept, expected it trimmed", i)
		}
	}
}

func TestCacheSnapshotRestoreRoundTrip(t *testing.T) {
	c := newEmbeddingCache(100, 50)
	c.put("a", []float32{1})
	c.put("b", []float32{2})
	c.put("c", []float32{3})

	snapshot := c.snapshot()
	if len(snapshot) != 3 {
		t.Fatalf("snapshot has %d entries, want 3", len(snapshot))
	}
	for i, want := range []string{"a", "b", "c"} {
		if snapshot[i].TextHash != want {
			t.Errorf("snapshot[%d] = %s, want %s (insertion order)", i, snapshot[i].TextHash, want)
		}
	}

	restored := newEmbeddingCache(100, 50)
	restored.restore(snapshot)
	if restored.len() != 3 {
		t.Fatalf("restored cache has %d entries, want 3", restored.len())
	}
	if vec, ok := restored.get("b"); !ok || vec[0] != 2 {
		t.Error("restored cache lost entry b")
	}
}

func TestCacheRestorePreservesTrimOrder(t *testing.T) {
	entries := []models.EmbeddingCacheEntry{
		{TextHash: "old", Embedding: []float32{1}},
		{TextHash: "new", Embedding: []float32{2}},
	}

	c := newEmbeddingCache(2, 1)
	c.restore(entries)
	c.put("newest", []float32{3})

	if _, ok := c.get("old"); ok {
		t.Error("oldest restored entry should be trimmed first")
	}
	if _, ok := c.get("newest"); !ok {
		t.Error("latest insert must survive the trim")
	}
}
