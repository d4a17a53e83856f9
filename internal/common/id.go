package common

import (
	"github.com/google/uuid"
)

// NewDocumentID generates a unique document ID with the "doc_" prefix
// Format: doc_<uuid>
func NewDocumentID() string {
	return "doc_" + uuid.New().String()
}

// NewConnectionID generates a unique websocket connection ID
func NewConnectionID() string {
	return uuid.New().String()
}
