package vectorindex

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nomad/internal/interfaces"
	"github.com/ternarybob/nomad/internal/models"
)

// Index is a flat inner-product vector index over document chunks. All
// embeddings are unit length, so inner product equals cosine similarity.
// Every mutation goes through the index's own mutex; callers never touch
// the underlying slices.
type Index struct {
	mu        sync.RWMutex
	chunks    []models.Chunk
	vectors   [][]float32
	positions map[string][]int // documentID -> positions in chunks/vectors
	dimension int
	storage   interfaces.VectorStorage
	logger    arbor.ILogger

	// flat is the packed scoring matrix. When healthy is false the search
	// falls back to scanning vectors directly; ranking is identical.
	flat    [][]float32
	healthy bool
}

// NewIndex creates an empty index
func NewIndex(storage interfaces.VectorStorage, dimension int, logger arbor.ILogger) *Index {
	return &Index{
		positions: make(map[string][]int),
		dimension: dimension,
		storage:   storage,
		logger:    logger,
	}
}

// Load restores the index from persisted snapshots. A count mismatch
// between chunk metadata and vectors is repaired by pairing up to the
// shorter length and dropping the orphans.
func (x *Index) Load() error {
	chunks, err := x.storage.LoadChunks()
	if err != nil {
		return fmt.Errorf("failed to load chunk snapshot: %w", err)
	}
	vectors, err := x.storage.LoadVectors()
	if err != nil {
		return fmt.Errorf("failed to load vector snapshot: %w", err)
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if len(chunks) != len(vectors) {
		n := len(chunks)
		if len(vectors) < n {
			n = len(vectors)
		}
		x.logger.Warn().
			Int("chunks", len(chunks)).
			Int("vectors", len(vectors)).
			Int("kept", n).
			Msg("Snapshot count mismatch, repairing")
		chunks = chunks[:n]
		vectors = vectors[:n]
	}

	x.chunks = chunks
	x.vectors = vectors
	x.rebuildLocked()

	if err := x.persistLocked(); err != nil {
		return err
	}

	x.logger.Info().Int("chunks", len(x.chunks)).Msg("Vector index loaded")
	return nil
}

// Add inserts or replaces chunks. A chunk whose id is already indexed is
// replaced in place so its insertion position is preserved. Returns the
// number of chunks added or replaced.
func (x *Index) Add(indexed []models.IndexedChunk) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	byID := make(map[string]int, len(x.chunks))
	for i, c := range x.chunks {
		byID[c.ChunkID] = i
	}

	count := 0
	for _, ic := range indexed {
		if len(ic.Embedding) != x.dimension {
			x.logger.Warn().
				Str("chunk_id", ic.Chunk.ChunkID).
				Int("dim", len(ic.Embedding)).
				Msg("Skipping chunk with malformed embedding")
			continue
		}
		if pos, ok := byID[ic.Chunk.ChunkID]; ok {
			x.chunks[pos] = ic.Chunk
			x.vectors[pos] = ic.Embedding
		} else {
			byID[ic.Chunk.ChunkID] = len(x.chunks)
			x.chunks = append(x.chunks, ic.Chunk)
			x.vectors = append(x.vectors, ic.Embedding)
		}
		count++
	}

	x.rebuildLocked()
	if err := x.persistLocked(); err != nil {
		return count, err
	}
	return count, nil
}

// RemoveDocument drops every chunk belonging to a document. Returns the
// number of chunks removed.
func (x *Index) RemoveDocument(documentID string) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	positions, ok := x.positions[documentID]
	if !ok || len(positions) == 0 {
		return 0, nil
	}

	drop := make(map[int]bool, len(positions))
	for _, p := range positions {
		drop[p] = true
	}

	kept := x.chunks[:0]
	keptVectors := x.vectors[:0]
	for i := range x.chunks {
		if drop[i] {
			continue
		}
		kept = append(kept, x.chunks[i])
		keptVectors = append(keptVectors, x.vectors[i])
	}
	x.chunks = kept
	x.vectors = keptVectors

	x.rebuildLocked()
	if err := x.persistLocked(); err != nil {
		return len(positions), err
	}
	return len(positions), nil
}

// Search returns the top k chunks by inner product with the query,
// filtered by minScore. Ties keep insertion order.
func (x *Index) Search(query []float32, k int, minScore float32) []models.SearchResult {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if k <= 0 || len(x.chunks) == 0 {
		return nil
	}

	matrix := x.flat
	if !x.healthy {
		matrix = x.vectors
	}

	type scored struct {
		pos   int
		score float32
	}
	candidates := make([]scored, 0, len(matrix))
	for i, vec := range matrix {
		if len(vec) != len(query) {
			continue
		}
		var dot float32
		for j := range vec {
			dot += vec[j] * query[j]
		}
		if dot >= minScore {
			candidates = append(candidates, scored{pos: i, score: dot})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	if len(candidates) > k {
		candidates = candidates[:k]
	}

	results := make([]models.SearchResult, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, models.SearchResult{
			Chunk: x.chunks[c.pos],
			Score: c.score,
		})
	}
	return results
}

// DocumentChunks returns the indexed chunks of one document in order
func (x *Index) DocumentChunks(documentID string) []models.Chunk {
	x.mu.RLock()
	defer x.mu.RUnlock()

	positions := x.positions[documentID]
	chunks := make([]models.Chunk, 0, len(positions))
	for _, p := range positions {
		chunks = append(chunks, x.chunks[p])
	}
	return chunks
}

// Stats reports index totals
func (x *Index) Stats() (chunkCount int, documentCount int) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.chunks), len(x.positions)
}

// Rebuild drops entries with malformed embeddings and repacks the index
func (x *Index) Rebuild() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	kept := x.chunks[:0]
	keptVectors := x.vectors[:0]
	dropped := 0
	for i := range x.chunks {
		if len(x.vectors[i]) != x.dimension {
			dropped++
			continue
		}
		kept = append(kept, x.chunks[i])
		keptVectors = append(keptVectors, x.vectors[i])
	}
	x.chunks = kept
	x.vectors = keptVectors

	x.rebuildLocked()

	if dropped > 0 {
		x.logger.Warn().Int("dropped", dropped).Msg("Rebuild dropped malformed entries")
		return x.persistLocked()
	}
	return nil
}

// rebuildLocked repacks the scoring matrix and the position map. Entries
// with a wrong-length embedding leave the flat path unhealthy so search
// scans the raw vectors instead. Caller holds mu.
func (x *Index) rebuildLocked() {
	x.positions = make(map[string][]int, len(x.positions))
	healthy := true
	for i, c := range x.chunks {
		x.positions[c.DocumentID] = append(x.positions[c.DocumentID], i)
		if len(x.vectors[i]) != x.dimension {
			healthy = false
		}
	}

	if healthy {
		x.flat = make([][]float32, len(x.vectors))
		copy(x.flat, x.vectors)
	} else {
		x.flat = nil
	}
	x.healthy = healthy
}

// persistLocked saves both snapshots. Caller holds mu.
func (x *Index) persistLocked() error {
	if err := x.storage.SaveChunks(x.chunks); err != nil {
		return fmt.Errorf("failed to persist chunk snapshot: %w", err)
	}
	if err := x.storage.SaveVectors(x.vectors); err != nil {
		return fmt.Errorf("failed to persist vector snapshot: %w", err)
	}
	return nil
}
