package handlers

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/nomad/internal/models"
)

// wsSink delivers events to one websocket connection. gorilla/websocket
// allows a single concurrent writer, so every send holds the mutex; the
// generation goroutine and the sweep both write through here.
type wsSink struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func newWSSink(conn *websocket.Conn) *wsSink {
	return &wsSink{conn: conn}
}

// Send marshals and writes one event
func (s *wsSink) Send(event *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(event)
}

// Close closes the underlying connection
func (s *wsSink) Close() error {
	return s.conn.Close()
}
