package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nomad/internal/common"
	"github.com/ternarybob/nomad/internal/interfaces"
	"github.com/ternarybob/nomad/internal/models"
	"github.com/ternarybob/nomad/internal/services/session"
)

// APIHandler serves the model catalog and health endpoints
type APIHandler struct {
	llm       interfaces.LLMService
	documents interfaces.DocumentService
	sessions  *session.Manager
	logger    arbor.ILogger
}

// NewAPIHandler creates the API handler
func NewAPIHandler(llm interfaces.LLMService, documents interfaces.DocumentService, sessions *session.Manager, logger arbor.ILogger) *APIHandler {
	return &APIHandler{
		llm:       llm,
		documents: documents,
		sessions:  sessions,
		logger:    logger,
	}
}

// ListModels handles GET /api/models. When the inference server is
// unreachable the default model is still advertised so the client can
// render its picker.
func (h *APIHandler) ListModels(w http.ResponseWriter, r *http.Request) {
	infos, err := h.llm.ListModels(r.Context())
	if err != nil {
		h.logger.Warn().Err(err).Msg("Model listing unavailable, advertising default")
		infos = []models.ModelInfo{{ID: h.llm.DefaultModel(), Name: h.llm.DefaultModel()}}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"models": infos})
}

// Health handles GET /api/health
func (h *APIHandler) Health(w http.ResponseWriter, r *http.Request) {
	stats := h.documents.Stats()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"version":     common.GetVersion(),
		"connections": h.sessions.Count(),
		"documents":   stats.TotalDocuments,
		"vectors":     stats.TotalVectors,
		"goroutines":  common.GetGoroutineCount(),
	})
}
