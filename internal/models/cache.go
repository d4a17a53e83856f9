package models

// EmbeddingCacheEntry memoizes one computed embedding, keyed by the MD5 of
// the normalized input text. Seq records insertion order so the cache can
// trim to the most recently inserted entries when it grows past capacity.
type EmbeddingCacheEntry struct {
	TextHash  string    `json:"textHash"`
	Embedding []float32 `json:"embedding"`
	Seq       uint64    `json:"seq"`
}
