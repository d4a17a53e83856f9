package interfaces

import (
	"context"

	"github.com/ternarybob/nomad/internal/models"
)

// DocumentService owns document ingestion and the cascade of state changes a
// document's lifecycle causes (content blob, hash index, chunks, vectors).
type DocumentService interface {
	Ingest(ctx context.Context, in *models.IngestInput) (*models.IngestResult, error)
	ProcessAttachments(ctx context.Context, attachments []models.Attachment) []models.AttachmentResult

	// Delete removes the document and everything it owns. Returns false only
	// when the id never existed; repeated deletes are otherwise idempotent.
	Delete(ctx context.Context, id string) (bool, error)

	Get(id string) (*models.Document, error)
	Content(id string) (string, error)
	List() ([]*models.Document, error)
	Stats() *models.KnowledgeBaseStats
}

// RetrievalService assembles the context block for a query.
type RetrievalService interface {
	Retrieve(ctx context.Context, query string, k int) (*models.RetrievalContext, error)
}
