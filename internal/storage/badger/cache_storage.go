package badger

import (
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nomad/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

const cacheSnapshotKey = "embedding_cache"

// cacheSnapshot holds the persisted embedding cache entries under a
// single key. Entries carry their insertion sequence so the in-memory
// cache can restore its eviction order on load.
type cacheSnapshot struct {
	Key     string `badgerhold:"key"`
	Entries []models.EmbeddingCacheEntry
}

// CacheStorage persists the embedding cache across restarts.
type CacheStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewCacheStorage creates a new cache storage instance
func NewCacheStorage(db *BadgerDB, logger arbor.ILogger) *CacheStorage {
	return &CacheStorage{
		db:     db,
		logger: logger,
	}
}

// SaveEntries persists the full cache snapshot
func (s *CacheStorage) SaveEntries(entries []models.EmbeddingCacheEntry) error {
	snapshot := cacheSnapshot{Key: cacheSnapshotKey, Entries: entries}
	if err := s.db.Store().Upsert(cacheSnapshotKey, &snapshot); err != nil {
		return fmt.Errorf("failed to save embedding cache: %w", err)
	}
	return nil
}

// LoadEntries returns the persisted cache entries, empty when none exist
func (s *CacheStorage) LoadEntries() ([]models.EmbeddingCacheEntry, error) {
	var snapshot cacheSnapshot
	err := s.db.Store().Get(cacheSnapshotKey, &snapshot)
	if err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load embedding cache: %w", err)
	}
	return snapshot.Entries, nil
}
