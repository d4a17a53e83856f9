package documents

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nomad/internal/common"
	"github.com/ternarybob/nomad/internal/interfaces"
	"github.com/ternarybob/nomad/internal/models"
	"github.com/ternarybob/nomad/internal/services/vectorindex"
)

// Service owns the document lifecycle: ingestion, the hash-based dedup
// index, and the cascade into content blobs, chunks, and vectors. A single
// mutex serializes mutations so concurrent uploads cannot interleave the
// hash check and the write.
type Service struct {
	storage   interfaces.DocumentStorage
	embedder  interfaces.EmbeddingService
	index     *vectorindex.Index
	chunker   *Chunker
	maxUpload int
	logger    arbor.ILogger

	mu sync.Mutex
}

// NewService creates the document service
func NewService(storage interfaces.DocumentStorage, embedder interfaces.EmbeddingService, index *vectorindex.Index, config *common.DocumentsConfig, logger arbor.ILogger) *Service {
	return &Service{
		storage:   storage,
		embedder:  embedder,
		index:     index,
		chunker:   NewChunker(config.ChunkSize, config.ChunkOverlap),
		maxUpload: config.MaxUploadSize,
		logger:    logger,
	}
}

// RepairHashIndex drops hash entries whose document no longer exists.
// Run at startup so a crash between cascade steps cannot leave a stale
// entry blocking re-ingestion.
func (s *Service) RepairHashIndex() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.storage.LoadHashIndex()
	if err != nil {
		return fmt.Errorf("failed to load hash index: %w", err)
	}

	repaired := 0
	for hash, docID := range index {
		doc, err := s.storage.GetDocument(docID)
		if err != nil {
			return fmt.Errorf("failed to check document %s: %w", docID, err)
		}
		if doc == nil {
			if err := s.storage.DeleteHash(hash); err != nil {
				return fmt.Errorf("failed to drop stale hash entry: %w", err)
			}
			repaired++
		}
	}

	if repaired > 0 {
		s.logger.Warn().Int("entries", repaired).Msg("Dropped stale hash index entries")
	}
	return nil
}

// contentHash is the MD5 hex digest used for duplicate detection
func contentHash(content string) string {
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Ingest processes one upload. Rejection and duplication are result
// variants, not errors; errors mean storage failed.
func (s *Service) Ingest(ctx context.Context, in *models.IngestInput) (*models.IngestResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if in == nil || in.Name == "" {
		return &models.IngestResult{
			Status:  models.IngestRejected,
			Message: "upload is missing a file name",
		}, nil
	}
	if strings.TrimSpace(in.Content) == "" {
		return &models.IngestResult{
			Status:  models.IngestRejected,
			Message: "document has no content to process",
		}, nil
	}
	if s.maxUpload > 0 && len(in.Content) > s.maxUpload {
		return &models.IngestResult{
			Status:  models.IngestRejected,
			Message: fmt.Sprintf("document exceeds the %d byte upload limit", s.maxUpload),
		}, nil
	}

	hash := contentHash(in.Content)

	existingID, found, err := s.storage.GetHash(hash)
	if err != nil {
		return nil, fmt.Errorf("failed to check content hash: %w", err)
	}
	if found && !in.Force {
		existing, err := s.storage.GetDocument(existingID)
		if err != nil {
			return nil, fmt.Errorf("failed to load existing document: %w", err)
		}
		if existing != nil {
			s.logger.Info().
				Str("doc_id", existing.ID).
				Str("file", existing.FileName).
				Msg("Duplicate content, returning existing document")
			return &models.IngestResult{
				Status:     models.IngestDuplicate,
				Document:   existing,
				ChunkCount: existing.ChunkCount,
				Message:    "a document with identical content already exists",
			}, nil
		}
		// Hash entry with no document behind it. Drop it and ingest fresh.
		s.logger.Warn().Str("hash", hash).Msg("Orphaned hash entry, removing")
		if err := s.storage.DeleteHash(hash); err != nil {
			return nil, fmt.Errorf("failed to remove orphaned hash entry: %w", err)
		}
	}

	fileType := in.Type
	if fileType == "" {
		fileType = inferFileType(in.Name)
	}

	size := in.Size
	if size == 0 {
		size = len(in.Content)
	}

	tabular := isTabularType(fileType) || strings.HasSuffix(strings.ToLower(in.Name), ".csv")

	doc := &models.Document{
		ID:          common.NewDocumentID(),
		FileName:    in.Name,
		FileType:    fileType,
		FileSize:    size,
		ContentHash: hash,
		CreatedAt:   time.Now().UTC(),
		Tabular:     tabular,
	}
	if tabular && in.TabularInfo != nil {
		doc.TabularInfo = in.TabularInfo
	}

	chunks := s.chunker.SplitForType(in.Content, fileType)
	s.logger.Info().
		Str("doc_id", doc.ID).
		Str("file", doc.FileName).
		Int("chunks", len(chunks)).
		Msg("Chunked document")

	indexed := make([]models.IndexedChunk, 0, len(chunks))
	for i, text := range chunks {
		indexed = append(indexed, models.IndexedChunk{
			Chunk: models.Chunk{
				ChunkID:    models.ChunkID(doc.ID, i),
				DocumentID: doc.ID,
				FileName:   doc.FileName,
				FileType:   doc.FileType,
				Text:       text,
				ChunkIndex: i,
				ChunkTotal: len(chunks),
			},
			Embedding: s.embedder.Embed(ctx, text),
		})
	}
	doc.ChunkCount = len(indexed)

	if err := s.storage.SaveDocument(doc); err != nil {
		return nil, fmt.Errorf("failed to save document metadata: %w", err)
	}
	if err := s.storage.SaveContent(doc.ID, in.Content); err != nil {
		return nil, fmt.Errorf("failed to save document content: %w", err)
	}
	if err := s.storage.PutHash(hash, doc.ID); err != nil {
		return nil, fmt.Errorf("failed to save hash entry: %w", err)
	}

	added, err := s.index.Add(indexed)
	if err != nil {
		return nil, fmt.Errorf("failed to index chunks: %w", err)
	}

	s.logger.Info().
		Str("doc_id", doc.ID).
		Int("indexed", added).
		Msg("Document ingested")

	return &models.IngestResult{
		Status:     models.IngestCreated,
		Document:   doc,
		ChunkCount: added,
		Message:    fmt.Sprintf("document processed into %d chunks", added),
	}, nil
}

// ProcessAttachments ingests chat attachments and reports per-file outcomes
func (s *Service) ProcessAttachments(ctx context.Context, attachments []models.Attachment) []models.AttachmentResult {
	results := make([]models.AttachmentResult, 0, len(attachments))
	for _, att := range attachments {
		if strings.TrimSpace(att.Content) == "" {
			results = append(results, models.AttachmentResult{
				FileName: att.Name,
				Success:  false,
				Message:  "attachment has no content",
			})
			continue
		}

		result, err := s.Ingest(ctx, &models.IngestInput{
			Name:    att.Name,
			Type:    att.Type,
			Size:    att.Size,
			Content: att.Content,
		})
		if err != nil {
			s.logger.Error().Err(err).Str("file", att.Name).Msg("Failed to ingest attachment")
			results = append(results, models.AttachmentResult{
				FileName: att.Name,
				Success:  false,
				Message:  "failed to store attachment",
			})
			continue
		}

		ar := models.AttachmentResult{
			FileName:    att.Name,
			Success:     result.Status != models.IngestRejected,
			IsDuplicate: result.Status == models.IngestDuplicate,
			Message:     result.Message,
		}
		if result.Document != nil {
			ar.DocumentID = result.Document.ID
		}
		results = append(results, ar)
	}
	return results
}

// Delete removes a document and everything it owns. Returns false only
// when the id never existed.
func (s *Service) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.storage.GetDocument(id)
	if err != nil {
		return false, fmt.Errorf("failed to load document: %w", err)
	}
	if doc == nil {
		return false, nil
	}

	removed, err := s.index.RemoveDocument(id)
	if err != nil {
		return false, fmt.Errorf("failed to remove chunks from index: %w", err)
	}
	// After a force re-ingest the hash entry points at the newer document;
	// deleting an older duplicate must leave that entry alone.
	owner, found, err := s.storage.GetHash(doc.ContentHash)
	if err != nil {
		return false, fmt.Errorf("failed to load hash entry: %w", err)
	}
	if found && owner == id {
		if err := s.storage.DeleteHash(doc.ContentHash); err != nil {
			return false, fmt.Errorf("failed to delete hash entry: %w", err)
		}
	}
	if err := s.storage.DeleteContent(id); err != nil {
		return false, fmt.Errorf("failed to delete document content: %w", err)
	}
	if err := s.storage.DeleteDocument(id); err != nil {
		return false, fmt.Errorf("failed to delete document metadata: %w", err)
	}

	s.logger.Info().
		Str("doc_id", id).
		Int("chunks_removed", removed).
		Msg("Document deleted")
	return true, nil
}

// Get returns document metadata, nil when not found
func (s *Service) Get(id string) (*models.Document, error) {
	return s.storage.GetDocument(id)
}

// Content returns the stored text of a document
func (s *Service) Content(id string) (string, error) {
	content, found, err := s.storage.GetContent(id)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("no content stored for document %s", id)
	}
	return content, nil
}

// List returns every document's metadata
func (s *Service) List() ([]*models.Document, error) {
	return s.storage.ListDocuments()
}

// Stats summarizes the knowledge base
func (s *Service) Stats() *models.KnowledgeBaseStats {
	chunkCount, docCount := s.index.Stats()

	stats := &models.KnowledgeBaseStats{
		TotalVectors:   chunkCount,
		TotalDocuments: docCount,
		IndexSize:      chunkCount,
	}
	if docCount > 0 {
		stats.AvgChunksPerDoc = float64(chunkCount) / float64(docCount)
	}
	return stats
}
