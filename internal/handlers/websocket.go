package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nomad/internal/common"
	"github.com/ternarybob/nomad/internal/interfaces"
	"github.com/ternarybob/nomad/internal/models"
	"github.com/ternarybob/nomad/internal/services/generation"
	"github.com/ternarybob/nomad/internal/services/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// inboundMessage is the envelope every client message arrives in. The
// payload fields sit beside type and are re-decoded per message kind.
type inboundMessage struct {
	Type string `json:"type"`
}

// WebSocketHandler owns the /ws endpoint: one read loop per connection,
// protocol dispatch, and the generation goroutine handoff.
type WebSocketHandler struct {
	sessions     *session.Manager
	orchestrator *generation.Orchestrator
	documents    interfaces.DocumentService
	validate     *validator.Validate
	logger       arbor.ILogger
}

// NewWebSocketHandler creates the websocket handler
func NewWebSocketHandler(sessions *session.Manager, orchestrator *generation.Orchestrator, documents interfaces.DocumentService, logger arbor.ILogger) *WebSocketHandler {
	return &WebSocketHandler{
		sessions:     sessions,
		orchestrator: orchestrator,
		documents:    documents,
		validate:     validator.New(),
		logger:       logger,
	}
}

// HandleWebSocket upgrades the request and runs the connection's read loop
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	sink := newWSSink(wsConn)
	conn := h.sessions.Connect(sink)
	defer func() {
		h.sessions.Disconnect(conn.ID)
		sink.Close()
	}()

	if err := sink.Send(&models.Event{
		Type:         models.EventConnectionEstablished,
		ConnectionID: conn.ID,
		SessionID:    conn.SessionID,
	}); err != nil {
		h.logger.Warn().Err(err).Str("conn_id", conn.ID).Msg("Failed to send connection event")
		return
	}

	h.logger.Info().Str("conn_id", conn.ID).Msg("WebSocket client connected")

	for {
		_, raw, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn().Err(err).Str("conn_id", conn.ID).Msg("WebSocket read error")
			}
			break
		}

		h.sessions.Touch(conn.ID)
		h.dispatch(r.Context(), conn, raw)
	}

	h.logger.Info().Str("conn_id", conn.ID).Msg("WebSocket client disconnected")
}

// dispatch routes one inbound message. Malformed payloads and unknown
// types produce an error event on this connection only.
func (h *WebSocketHandler) dispatch(ctx context.Context, conn *session.ConnectionSession, raw []byte) {
	var envelope inboundMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		h.sendError(conn, "invalid message format")
		return
	}

	switch envelope.Type {
	case "chat-message":
		h.handleChat(ctx, conn, raw)
	case "stop-generation":
		h.handleStop(conn, raw)
	case "change-session":
		h.handleChangeSession(conn, raw)
	case "kb-get-documents":
		h.handleGetDocuments(conn)
	case "kb-delete-document":
		h.handleDeleteDocument(ctx, conn, raw)
	default:
		h.sendError(conn, "unknown message type: "+envelope.Type)
	}
}

func (h *WebSocketHandler) handleChat(ctx context.Context, conn *session.ConnectionSession, raw []byte) {
	var req models.ChatRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		h.sendError(conn, "invalid chat message payload")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		h.sendError(conn, "chat message failed validation: "+err.Error())
		return
	}

	ticket, err := h.sessions.StartGeneration(conn.ID, req.SessionID, req.Model)
	if err != nil {
		h.sendError(conn, "could not start generation")
		return
	}

	// The read loop stays responsive to stop requests while this runs.
	runCtx := context.WithoutCancel(ctx)
	common.SafeGo(h.logger, "generation", func() {
		h.orchestrator.Run(runCtx, conn, ticket, &req)
	})
}

func (h *WebSocketHandler) handleStop(conn *session.ConnectionSession, raw []byte) {
	var req models.StopRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		h.sendError(conn, "invalid stop payload")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		h.sendError(conn, "stop request failed validation: "+err.Error())
		return
	}

	if err := h.sessions.RequestStop(conn.ID, req.SessionID); err != nil {
		var mismatch *session.ErrSessionMismatch
		if errors.As(err, &mismatch) {
			h.sendError(conn, "stop request names a different session")
			return
		}
		h.sendError(conn, "could not stop generation")
		return
	}

	if err := conn.Sink.Send(&models.Event{Type: models.EventStopConfirmed, SessionID: req.SessionID}); err != nil {
		h.logger.Debug().Err(err).Str("conn_id", conn.ID).Msg("Failed to confirm stop")
	}
}

func (h *WebSocketHandler) handleChangeSession(conn *session.ConnectionSession, raw []byte) {
	var req models.ChangeSessionRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		h.sendError(conn, "invalid change-session payload")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		h.sendError(conn, "change-session failed validation: "+err.Error())
		return
	}

	if err := h.sessions.ChangeSession(conn.ID, req.SessionID); err != nil {
		h.sendError(conn, "could not change session")
		return
	}

	if err := conn.Sink.Send(&models.Event{Type: models.EventSessionChanged, SessionID: req.SessionID}); err != nil {
		h.logger.Debug().Err(err).Str("conn_id", conn.ID).Msg("Failed to confirm session change")
	}
}

func (h *WebSocketHandler) handleGetDocuments(conn *session.ConnectionSession) {
	docs, err := h.documents.List()
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list documents")
		h.sendError(conn, "could not list documents")
		return
	}

	if err := conn.Sink.Send(&models.Event{Type: models.EventKBDocuments, Documents: docs}); err != nil {
		h.logger.Debug().Err(err).Str("conn_id", conn.ID).Msg("Failed to send document list")
	}
}

func (h *WebSocketHandler) handleDeleteDocument(ctx context.Context, conn *session.ConnectionSession, raw []byte) {
	var req models.DeleteDocumentRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		h.sendError(conn, "invalid delete payload")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		h.sendError(conn, "delete request failed validation: "+err.Error())
		return
	}

	deleted, err := h.documents.Delete(ctx, req.DocumentID)
	if err != nil {
		h.logger.Error().Err(err).Str("doc_id", req.DocumentID).Msg("Failed to delete document")
		h.sendError(conn, "could not delete document")
		return
	}
	if !deleted {
		h.sendError(conn, "document not found: "+req.DocumentID)
		return
	}

	// Every client keeps a document list; all of them hear about the removal.
	h.sessions.Broadcast(&models.Event{Type: models.EventKBDocumentDeleted, DocumentID: req.DocumentID})
}

func (h *WebSocketHandler) sendError(conn *session.ConnectionSession, msg string) {
	if err := conn.Sink.Send(models.ErrorEvent(msg)); err != nil {
		h.logger.Debug().Err(err).Str("conn_id", conn.ID).Msg("Failed to send error event")
	}
}
