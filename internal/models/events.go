package models

// Event types produced for the transport layer. One generation always ends
// with exactly one EventMessageComplete, whatever path it took to get there.
const (
	EventConnectionEstablished = "connection-established"
	EventMessageChunk          = "message-chunk"
	EventGenerationStart       = "generation-start"
	EventGenerationError       = "generation-error"
	EventGenerationStopped     = "generation-stopped"
	EventMessageComplete       = "message-complete"
	EventStopConfirmed         = "stop-confirmed"
	EventSessionChanged        = "session-changed"
	EventKBDocuments           = "kb-documents"
	EventKBDocumentDeleted     = "kb-document-deleted"
	EventError                 = "error"
)

// Event is one protocol message sent to a client connection.
type Event struct {
	Type         string      `json:"type"`
	ConnectionID string      `json:"connectionId,omitempty"`
	SessionID    string      `json:"sessionId,omitempty"`
	Content      string      `json:"content,omitempty"`
	Model        string      `json:"model,omitempty"`
	Error        string      `json:"error,omitempty"`
	DocumentID   string      `json:"documentId,omitempty"`
	Documents    []*Document `json:"documents,omitempty"`
	Forced       bool        `json:"forced,omitempty"`
}

func ChunkEvent(content string) *Event {
	return &Event{Type: EventMessageChunk, Content: content}
}

func ErrorEvent(msg string) *Event {
	return &Event{Type: EventError, Error: msg}
}

func GenerationErrorEvent(msg string) *Event {
	return &Event{Type: EventGenerationError, Error: msg}
}

func StoppedEvent(forced bool) *Event {
	return &Event{Type: EventGenerationStopped, Forced: forced}
}

func CompleteEvent() *Event {
	return &Event{Type: EventMessageComplete}
}
