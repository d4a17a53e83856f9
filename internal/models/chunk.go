package models

import "fmt"

// Chunk is the persisted metadata for one slice of a document's text. The
// embedding is held by the vector index and persisted separately from this
// record, mirroring the split between metadata and vector structures on disk.
type Chunk struct {
	ChunkID    string `json:"chunkId"` // {documentID}-chunk-{index}
	DocumentID string `json:"documentId"`
	FileName   string `json:"fileName"`
	FileType   string `json:"fileType"`
	Text       string `json:"text"`
	ChunkIndex int    `json:"chunkIndex"`
	ChunkTotal int    `json:"chunkTotal"`
}

// ChunkID derives the deterministic chunk identifier for a document position.
func ChunkID(documentID string, index int) string {
	return fmt.Sprintf("%s-chunk-%d", documentID, index)
}

// IndexedChunk pairs chunk metadata with its embedding for insertion into the
// vector index. The embedding is assigned once and never mutated.
type IndexedChunk struct {
	Chunk     Chunk
	Embedding []float32
}

// SearchResult is one ranked hit from a similarity search.
type SearchResult struct {
	Chunk Chunk   `json:"chunk"`
	Score float32 `json:"score"`
}

// Source attributes a retrieval hit to its owning document.
type Source struct {
	DocumentID string `json:"documentId"`
	FileName   string `json:"fileName"`
	Similarity string `json:"similarity"` // "87.3%"
}

// RetrievalContext is the assembled context block handed to the prompt
// builder, plus the deduplicated source list for attribution.
type RetrievalContext struct {
	HasContext  bool     `json:"hasContext"`
	ContextText string   `json:"contextText"`
	Sources     []Source `json:"sources"`
}
