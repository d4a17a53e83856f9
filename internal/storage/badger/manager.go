package badger

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nomad/internal/common"
	"github.com/ternarybob/nomad/internal/interfaces"
)

// Manager wires the badger-backed storage implementations together and
// owns the shared database connection.
type Manager struct {
	db        *BadgerDB
	documents *DocumentStorage
	vectors   *VectorStorage
	cache     *CacheStorage
	logger    arbor.ILogger
}

// NewManager opens the database and creates all storage instances
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (*Manager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize badger storage: %w", err)
	}

	return &Manager{
		db:        db,
		documents: NewDocumentStorage(db, logger),
		vectors:   NewVectorStorage(db, logger),
		cache:     NewCacheStorage(db, logger),
		logger:    logger,
	}, nil
}

// DocumentStorage returns the document storage
func (m *Manager) DocumentStorage() interfaces.DocumentStorage {
	return m.documents
}

// VectorStorage returns the vector storage
func (m *Manager) VectorStorage() interfaces.VectorStorage {
	return m.vectors
}

// CacheStorage returns the embedding cache storage
func (m *Manager) CacheStorage() interfaces.CacheStorage {
	return m.cache
}

// Close closes the underlying database connection
func (m *Manager) Close() error {
	m.logger.Debug().Msg("Closing storage manager")
	return m.db.Close()
}
