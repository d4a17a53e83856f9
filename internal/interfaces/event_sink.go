package interfaces

import "github.com/ternarybob/nomad/internal/models"

// EventSink is the transport-facing side of a connection. The websocket
// handler implements it; the session manager and orchestrator only ever see
// this interface.
type EventSink interface {
	Send(event *models.Event) error
	Close() error
}
