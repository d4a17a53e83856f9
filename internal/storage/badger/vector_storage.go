package badger

import (
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nomad/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

const (
	chunkSnapshotKey  = "chunks"
	vectorSnapshotKey = "vectors"
)

// chunkSnapshot holds the chunk metadata for the whole index under a
// single key. Embeddings are persisted separately in vectorSnapshot so a
// metadata read never pulls the full embedding matrix.
type chunkSnapshot struct {
	Key    string `badgerhold:"key"`
	Chunks []models.Chunk
}

// vectorSnapshot holds the embedding matrix, row i belonging to the
// chunk at position i of the chunk snapshot.
type vectorSnapshot struct {
	Key     string `badgerhold:"key"`
	Vectors [][]float32
}

// VectorStorage persists the vector index state: chunk metadata and the
// embedding matrix as separate records.
type VectorStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewVectorStorage creates a new vector storage instance
func NewVectorStorage(db *BadgerDB, logger arbor.ILogger) *VectorStorage {
	return &VectorStorage{
		db:     db,
		logger: logger,
	}
}

// SaveChunks persists chunk metadata without embeddings
func (s *VectorStorage) SaveChunks(chunks []models.Chunk) error {
	snapshot := chunkSnapshot{Key: chunkSnapshotKey, Chunks: chunks}
	if err := s.db.Store().Upsert(chunkSnapshotKey, &snapshot); err != nil {
		return fmt.Errorf("failed to save chunk snapshot: %w", err)
	}
	return nil
}

// LoadChunks returns the persisted chunk metadata, empty when none exists
func (s *VectorStorage) LoadChunks() ([]models.Chunk, error) {
	var snapshot chunkSnapshot
	err := s.db.Store().Get(chunkSnapshotKey, &snapshot)
	if err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load chunk snapshot: %w", err)
	}
	return snapshot.Chunks, nil
}

// SaveVectors persists the embedding matrix
func (s *VectorStorage) SaveVectors(vectors [][]float32) error {
	snapshot := vectorSnapshot{Key: vectorSnapshotKey, Vectors: vectors}
	if err := s.db.Store().Upsert(vectorSnapshotKey, &snapshot); err != nil {
		return fmt.Errorf("failed to save vector snapshot: %w", err)
	}
	return nil
}

// LoadVectors returns the persisted embedding matrix, empty when none exists
func (s *VectorStorage) LoadVectors() ([][]float32, error) {
	var snapshot vectorSnapshot
	err := s.db.Store().Get(vectorSnapshotKey, &snapshot)
	if err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load vector snapshot: %w", err)
	}
	return snapshot.Vectors, nil
}
