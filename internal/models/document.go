package models

import "time"

// Document represents one ingested file in the knowledge base. Metadata is
// immutable after creation except ChunkCount, which is set once chunking and
// embedding finish.
type Document struct {
	ID          string       `json:"id"` // doc_{uuid}
	FileName    string       `json:"fileName"`
	FileType    string       `json:"fileType"`
	FileSize    int          `json:"fileSize"`
	ContentHash string       `json:"contentHash"`
	CreatedAt   time.Time    `json:"createdAt"`
	ChunkCount  int          `json:"chunkCount"`
	Tabular     bool         `json:"tabular"`
	TabularInfo *TabularInfo `json:"tabularInfo,omitempty"`
}

// TabularInfo carries shape hints for delimited tabular uploads (CSV and
// friends). Populated from the upload layer when available.
type TabularInfo struct {
	RowCount    int    `json:"rowCount"`
	ColumnCount int    `json:"columnCount"`
	Headers     string `json:"headers"`
}

// IngestInput is the contract with the upload layer: decoded text content
// plus enough metadata to classify and size the document.
type IngestInput struct {
	Name    string `json:"name" validate:"required"`
	Type    string `json:"type"`
	Size    int    `json:"size"`
	Content string `json:"content"`
	Force   bool   `json:"force"`

	TabularInfo *TabularInfo `json:"tabularInfo,omitempty"`
}

// IngestStatus distinguishes the three ingestion outcomes. Duplicate is a
// success variant, not an error.
type IngestStatus string

const (
	IngestCreated   IngestStatus = "created"
	IngestDuplicate IngestStatus = "duplicate"
	IngestRejected  IngestStatus = "rejected"
)

// IngestResult reports what happened to one upload.
type IngestResult struct {
	Status     IngestStatus `json:"status"`
	Document   *Document    `json:"document,omitempty"`
	ChunkCount int          `json:"chunkCount"`
	Message    string       `json:"message,omitempty"`
}

// AttachmentResult reports the ingestion outcome of one chat attachment.
type AttachmentResult struct {
	FileName    string `json:"fileName"`
	Success     bool   `json:"success"`
	IsDuplicate bool   `json:"isDuplicate"`
	DocumentID  string `json:"documentId,omitempty"`
	Message     string `json:"message,omitempty"`
}

// KnowledgeBaseStats summarizes the document store and vector index.
type KnowledgeBaseStats struct {
	TotalVectors    int     `json:"totalVectors"`
	TotalDocuments  int     `json:"totalDocuments"`
	AvgChunksPerDoc float64 `json:"averageChunksPerDocument"`
	IndexSize       int     `json:"indexSize"`
}
