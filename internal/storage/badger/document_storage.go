package badger

import (
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nomad/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// documentRecord is the stored representation of document metadata.
type documentRecord struct {
	ID       string `badgerhold:"key"`
	Document models.Document
}

// contentRecord holds the raw text of a document, stored separately from
// metadata so listing documents never loads full content.
type contentRecord struct {
	ID      string `badgerhold:"key"`
	Content string
}

// hashIndexRecord maps a content hash to the document that owns it.
type hashIndexRecord struct {
	Hash       string `badgerhold:"key"`
	DocumentID string
}

// DocumentStorage persists document metadata, content, and the
// content-hash dedup index.
type DocumentStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewDocumentStorage creates a new document storage instance
func NewDocumentStorage(db *BadgerDB, logger arbor.ILogger) *DocumentStorage {
	return &DocumentStorage{
		db:     db,
		logger: logger,
	}
}

// SaveDocument creates or updates document metadata
func (s *DocumentStorage) SaveDocument(doc *models.Document) error {
	if doc == nil || doc.ID == "" {
		return fmt.Errorf("document must have an ID")
	}

	record := documentRecord{ID: doc.ID, Document: *doc}
	if err := s.db.Store().Upsert(doc.ID, &record); err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

// GetDocument retrieves document metadata by ID. Returns nil when the
// document does not exist.
func (s *DocumentStorage) GetDocument(id string) (*models.Document, error) {
	var record documentRecord
	err := s.db.Store().Get(id, &record)
	if err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	doc := record.Document
	return &doc, nil
}

// DeleteDocument removes document metadata by ID
func (s *DocumentStorage) DeleteDocument(id string) error {
	err := s.db.Store().Delete(id, documentRecord{})
	if err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// ListDocuments returns all document metadata
func (s *DocumentStorage) ListDocuments() ([]*models.Document, error) {
	var records []documentRecord
	if err := s.db.Store().Find(&records, nil); err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	docs := make([]*models.Document, 0, len(records))
	for i := range records {
		doc := records[i].Document
		docs = append(docs, &doc)
	}
	return docs, nil
}

// SaveContent stores the raw text for a document
func (s *DocumentStorage) SaveContent(id string, content string) error {
	record := contentRecord{ID: id, Content: content}
	if err := s.db.Store().Upsert(id, &record); err != nil {
		return fmt.Errorf("failed to save document content: %w", err)
	}
	return nil
}

// GetContent retrieves the raw text for a document. Returns empty string
// and false when no content is stored.
func (s *DocumentStorage) GetContent(id string) (string, bool, error) {
	var record contentRecord
	err := s.db.Store().Get(id, &record)
	if err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get document content: %w", err)
	}
	return record.Content, true, nil
}

// DeleteContent removes stored text for a document
func (s *DocumentStorage) DeleteContent(id string) error {
	err := s.db.Store().Delete(id, contentRecord{})
	if err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("failed to delete document content: %w", err)
	}
	return nil
}

// PutHash records that a content hash belongs to a document
func (s *DocumentStorage) PutHash(hash string, documentID string) error {
	record := hashIndexRecord{Hash: hash, DocumentID: documentID}
	if err := s.db.Store().Upsert(hash, &record); err != nil {
		return fmt.Errorf("failed to save hash index entry: %w", err)
	}
	return nil
}

// GetHash looks up the document that owns a content hash
func (s *DocumentStorage) GetHash(hash string) (string, bool, error) {
	var record hashIndexRecord
	err := s.db.Store().Get(hash, &record)
	if err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get hash index entry: %w", err)
	}
	return record.DocumentID, true, nil
}

// DeleteHash removes a content hash mapping
func (s *DocumentStorage) DeleteHash(hash string) error {
	err := s.db.Store().Delete(hash, hashIndexRecord{})
	if err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("failed to delete hash index entry: %w", err)
	}
	return nil
}

// LoadHashIndex returns the full hash -> document ID mapping
func (s *DocumentStorage) LoadHashIndex() (map[string]string, error) {
	var records []hashIndexRecord
	if err := s.db.Store().Find(&records, nil); err != nil {
		return nil, fmt.Errorf("failed to load hash index: %w", err)
	}

	index := make(map[string]string, len(records))
	for _, record := range records {
		index[record.Hash] = record.DocumentID
	}
	return index, nil
}
