package models

// MessageRole discriminates chat message variants at the boundary.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// ChatMessage is one turn of the conversation history sent by the client.
type ChatMessage struct {
	Role    MessageRole `json:"role" validate:"required,oneof=user assistant system"`
	Content string      `json:"content"`
}

// Attachment is a file the client sent alongside a chat message. Content is
// decoded text from the upload layer.
type Attachment struct {
	Name    string `json:"name" validate:"required"`
	Type    string `json:"type"`
	Size    int    `json:"size"`
	Content string `json:"content"`
}

// ChatRequest is the inbound chat-message payload.
type ChatRequest struct {
	SessionID   string        `json:"sessionId" validate:"required"`
	Messages    []ChatMessage `json:"messages" validate:"required,min=1,dive"`
	Attachments []Attachment  `json:"attachments,omitempty" validate:"omitempty,dive"`
	Model       string        `json:"model,omitempty"`
}

// StopRequest asks to cancel the generation running for a session.
type StopRequest struct {
	SessionID string `json:"sessionId" validate:"required"`
}

// ChangeSessionRequest switches the connection to another chat session.
type ChangeSessionRequest struct {
	SessionID string `json:"sessionId" validate:"required"`
}

// DeleteDocumentRequest removes a document from the knowledge base.
type DeleteDocumentRequest struct {
	DocumentID string `json:"documentId" validate:"required"`
}

// ModelInfo describes one model offered to clients.
type ModelInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}
