package interfaces

import "context"

// EmbeddingService produces a fixed-length vector for arbitrary text. Embed
// is total: the last strategy in the chain is a local deterministic algorithm
// that cannot fail, so a vector always comes back.
type EmbeddingService interface {
	Embed(ctx context.Context, text string) []float32
	Dimension() int

	// FlushCache persists the memoized embeddings. Called by the maintenance
	// schedule and on shutdown.
	FlushCache() error
	CacheLen() int
}
