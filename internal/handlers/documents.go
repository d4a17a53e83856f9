package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nomad/internal/interfaces"
	"github.com/ternarybob/nomad/internal/models"
	"github.com/ternarybob/nomad/internal/services/vectorindex"
)

// DocumentHandler serves the document REST endpoints
type DocumentHandler struct {
	documents interfaces.DocumentService
	embedder  interfaces.EmbeddingService
	index     *vectorindex.Index
	validate  *validator.Validate
	logger    arbor.ILogger
}

// NewDocumentHandler creates the document REST handler
func NewDocumentHandler(documents interfaces.DocumentService, embedder interfaces.EmbeddingService, index *vectorindex.Index, logger arbor.ILogger) *DocumentHandler {
	return &DocumentHandler{
		documents: documents,
		embedder:  embedder,
		index:     index,
		validate:  validator.New(),
		logger:    logger,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		// Headers are gone; nothing left to do but log upstream.
		_ = err
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ListDocuments handles GET /api/documents
func (h *DocumentHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.documents.List()
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list documents")
		writeError(w, http.StatusInternalServerError, "could not list documents")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"documents": docs})
}

// Stats handles GET /api/documents/stats
func (h *DocumentHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.documents.Stats())
}

type searchRequest struct {
	Query string `json:"query" validate:"required"`
	Limit int    `json:"limit"`
}

// Search handles POST /api/documents/search
func (h *DocumentHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid search payload")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.Limit <= 0 {
		req.Limit = 5
	}

	embedding := h.embedder.Embed(r.Context(), req.Query)
	results := h.index.Search(embedding, req.Limit, 0)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"query":   req.Query,
		"results": results,
	})
}

// DeleteDocument handles DELETE /api/documents/{id}
func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/documents/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "invalid document id")
		return
	}

	deleted, err := h.documents.Delete(r.Context(), id)
	if err != nil {
		h.logger.Error().Err(err).Str("doc_id", id).Msg("Failed to delete document")
		writeError(w, http.StatusInternalServerError, "could not delete document")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": true, "documentId": id})
}

// UploadDocument handles POST /api/documents
func (h *DocumentHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	var in models.IngestInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid upload payload")
		return
	}
	if err := h.validate.Struct(&in); err != nil {
		writeError(w, http.StatusBadRequest, "upload failed validation: "+err.Error())
		return
	}

	result, err := h.documents.Ingest(r.Context(), &in)
	if err != nil {
		h.logger.Error().Err(err).Str("file", in.Name).Msg("Failed to ingest upload")
		writeError(w, http.StatusInternalServerError, "could not process document")
		return
	}

	status := http.StatusCreated
	switch result.Status {
	case models.IngestDuplicate:
		status = http.StatusOK
	case models.IngestRejected:
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, result)
}
