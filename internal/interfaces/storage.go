package interfaces

import "github.com/ternarybob/nomad/internal/models"

// DocumentStorage persists document metadata, raw content blobs, and the
// content-hash index. The three record families are independently loadable so
// a damaged one can be repaired without the others.
type DocumentStorage interface {
	SaveDocument(doc *models.Document) error
	GetDocument(id string) (*models.Document, error)
	DeleteDocument(id string) error
	ListDocuments() ([]*models.Document, error)

	SaveContent(id, content string) error
	GetContent(id string) (content string, found bool, err error)
	DeleteContent(id string) error

	PutHash(contentHash, documentID string) error
	GetHash(contentHash string) (string, bool, error)
	DeleteHash(contentHash string) error
	LoadHashIndex() (map[string]string, error)
}

// VectorStorage persists the vector index in two independent pieces: chunk
// metadata (no embeddings) and the raw embedding matrix. On load the two are
// reconciled; a count mismatch drops the orphaned side.
type VectorStorage interface {
	SaveChunks(chunks []models.Chunk) error
	LoadChunks() ([]models.Chunk, error)
	SaveVectors(vectors [][]float32) error
	LoadVectors() ([][]float32, error)
}

// CacheStorage persists the embedding cache. The cache is a performance
// optimization only; losing it is never an error.
type CacheStorage interface {
	SaveEntries(entries []models.EmbeddingCacheEntry) error
	LoadEntries() ([]models.EmbeddingCacheEntry, error)
}

// StorageManager bundles the storage interfaces behind one connection.
type StorageManager interface {
	DocumentStorage() DocumentStorage
	VectorStorage() VectorStorage
	CacheStorage() CacheStorage
	Close() error
}
