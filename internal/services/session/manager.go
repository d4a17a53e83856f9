package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nomad/internal/common"
	"github.com/ternarybob/nomad/internal/interfaces"
	"github.com/ternarybob/nomad/internal/models"
)

// ErrSessionMismatch is returned when a stop request names a session other
// than the one the connection is generating for.
type ErrSessionMismatch struct {
	Requested string
	Active    string
}

func (e *ErrSessionMismatch) Error() string {
	return fmt.Sprintf("stop requested for session %s but connection is on session %s", e.Requested, e.Active)
}

// ConnectionSession is the per-websocket state. All mutation goes through
// Manager methods; the struct itself is never shared mutable.
type ConnectionSession struct {
	ID        string
	SessionID string
	Sink      interfaces.EventSink

	lastActive time.Time
	generating bool
	genTicket  *GenTicket
	genStart   time.Time
	genModel   string
}

// Ticket returns the active generation ticket, nil when idle
func (c *ConnectionSession) Ticket() *GenTicket {
	return c.genTicket
}

// Manager owns every live connection and the background sweep that
// enforces the idle and stuck timeouts.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*ConnectionSession

	sweepInterval time.Duration
	idleTimeout   time.Duration
	stuckTimeout  time.Duration
	stopGrace     time.Duration

	stopSweep chan struct{}
	sweepDone chan struct{}
	logger    arbor.ILogger
}

// NewManager creates the session manager
func NewManager(config *common.SessionConfig, logger arbor.ILogger) *Manager {
	return &Manager{
		sessions:      make(map[string]*ConnectionSession),
		sweepInterval: common.Duration(config.SweepInterval, 30*time.Second),
		idleTimeout:   common.Duration(config.IdleTimeout, 10*time.Minute),
		stuckTimeout:  common.Duration(config.StuckTimeout, 5*time.Minute),
		stopGrace:     common.Duration(config.StopGrace, 200*time.Millisecond),
		stopSweep:     make(chan struct{}),
		sweepDone:     make(chan struct{}),
		logger:        logger,
	}
}

// Connect registers a new connection and returns its session state. The
// session id stays empty until the client names one.
func (m *Manager) Connect(sink interfaces.EventSink) *ConnectionSession {
	conn := &ConnectionSession{
		ID:         common.NewConnectionID(),
		Sink:       sink,
		lastActive: time.Now(),
	}

	m.mu.Lock()
	m.sessions[conn.ID] = conn
	m.mu.Unlock()

	m.logger.Info().Str("conn_id", conn.ID).Msg("Connection registered")
	return conn
}

// Disconnect removes a connection, cancelling any generation it owns
func (m *Manager) Disconnect(id string) {
	m.mu.Lock()
	conn, ok := m.sessions[id]
	if ok {
		if conn.genTicket != nil {
			conn.genTicket.Stop(true)
		}
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if ok {
		m.logger.Info().Str("conn_id", id).Msg("Connection removed")
	}
}

// Session returns the connection state, nil when unknown
func (m *Manager) Session(id string) *ConnectionSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[id]
}

// Touch records activity on a connection for the idle sweep
func (m *Manager) Touch(id string) {
	m.mu.Lock()
	if conn, ok := m.sessions[id]; ok {
		conn.lastActive = time.Now()
	}
	m.mu.Unlock()
}

// ChangeSession switches the connection to another chat session. A running
// generation for the old session is cancelled.
func (m *Manager) ChangeSession(id, sessionID string) error {
	m.mu.Lock()
	conn, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("unknown connection %s", id)
	}
	if conn.genTicket != nil && conn.generating {
		conn.genTicket.Stop(true)
	}
	conn.SessionID = sessionID
	conn.lastActive = time.Now()
	m.mu.Unlock()

	m.logger.Debug().Str("conn_id", id).Str("session_id", sessionID).Msg("Session changed")
	return nil
}

// StartGeneration claims the connection for a new generation run. The
// connection adopts the request's session id so a later stop naming that
// session matches. When a prior run is still active it is asked to stop
// and given the grace window to acknowledge before the new ticket is
// issued.
func (m *Manager) StartGeneration(id, sessionID, model string) (*GenTicket, error) {
	m.mu.Lock()
	conn, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("unknown connection %s", id)
	}
	if sessionID != "" {
		conn.SessionID = sessionID
	}

	prior := conn.genTicket
	priorActive := conn.generating
	m.mu.Unlock()

	if priorActive && prior != nil {
		prior.Stop(true)
		select {
		case <-prior.Done():
		case <-time.After(m.stopGrace):
			m.logger.Warn().Str("conn_id", id).Msg("Prior generation did not acknowledge stop in time")
		}
	}

	ticket := newGenTicket()

	m.mu.Lock()
	conn, ok = m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("connection %s closed during takeover", id)
	}
	conn.genTicket = ticket
	conn.generating = true
	conn.genStart = time.Now()
	conn.genModel = model
	conn.lastActive = time.Now()
	m.mu.Unlock()

	return ticket, nil
}

// RequestStop cancels the generation running for the given session. The
// session id must match the one the connection is generating for.
func (m *Manager) RequestStop(id, sessionID string) error {
	m.mu.Lock()
	conn, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("unknown connection %s", id)
	}
	if conn.SessionID != sessionID {
		active := conn.SessionID
		m.mu.Unlock()
		return &ErrSessionMismatch{Requested: sessionID, Active: active}
	}
	ticket := conn.genTicket
	generating := conn.generating
	m.mu.Unlock()

	if generating && ticket != nil {
		ticket.Stop(false)
	}
	return nil
}

// CompleteGeneration acknowledges the given run's ticket. The connection
// is marked idle only when the ticket is still the current one, so a stale
// run finishing after a takeover cannot touch the new run's state. Returns
// true only for the first caller to complete the run; losers must not emit
// terminal events.
func (m *Manager) CompleteGeneration(id string, ticket *GenTicket) bool {
	if ticket == nil {
		return false
	}

	m.mu.Lock()
	if conn, ok := m.sessions[id]; ok && conn.genTicket == ticket {
		conn.generating = false
		conn.lastActive = time.Now()
	}
	m.mu.Unlock()

	return ticket.Finish()
}

// Broadcast delivers an event to every live connection. Send failures are
// logged per connection and do not stop the fan-out.
func (m *Manager) Broadcast(event *models.Event) {
	m.mu.RLock()
	sinks := make(map[string]interfaces.EventSink, len(m.sessions))
	for id, conn := range m.sessions {
		sinks[id] = conn.Sink
	}
	m.mu.RUnlock()

	for id, sink := range sinks {
		if err := sink.Send(event); err != nil {
			m.logger.Debug().Err(err).Str("conn_id", id).Msg("Broadcast send failed")
		}
	}
}

// StartSweep launches the background goroutine enforcing both timeouts
func (m *Manager) StartSweep() {
	go func() {
		defer close(m.sweepDone)
		ticker := time.NewTicker(m.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.sweep()
			case <-m.stopSweep:
				return
			}
		}
	}()
}

// StopSweep stops the background sweep and waits for it to exit
func (m *Manager) StopSweep() {
	close(m.stopSweep)
	<-m.sweepDone
}

// sweep closes idle connections and force-completes stuck generations
func (m *Manager) sweep() {
	now := time.Now()

	type stuck struct {
		conn   *ConnectionSession
		ticket *GenTicket
	}
	var idle []*ConnectionSession
	var stuckRuns []stuck

	m.mu.Lock()
	for _, conn := range m.sessions {
		if conn.generating && conn.genTicket != nil {
			if now.Sub(conn.genStart) > m.stuckTimeout {
				stuckRuns = append(stuckRuns, stuck{conn: conn, ticket: conn.genTicket})
			}
			continue
		}
		if now.Sub(conn.lastActive) > m.idleTimeout {
			idle = append(idle, conn)
		}
	}
	m.mu.Unlock()

	for _, s := range stuckRuns {
		m.logger.Warn().
			Str("conn_id", s.conn.ID).
			Dur("running", now.Sub(s.conn.genStart)).
			Msg("Force-completing stuck generation")
		s.ticket.Stop(true)
		if m.CompleteGeneration(s.conn.ID, s.ticket) {
			if err := s.conn.Sink.Send(models.StoppedEvent(true)); err != nil {
				m.logger.Debug().Err(err).Str("conn_id", s.conn.ID).Msg("Failed to notify forced stop")
			}
			if err := s.conn.Sink.Send(models.CompleteEvent()); err != nil {
				m.logger.Debug().Err(err).Str("conn_id", s.conn.ID).Msg("Failed to notify forced completion")
			}
		}
	}

	for _, conn := range idle {
		m.logger.Info().
			Str("conn_id", conn.ID).
			Dur("idle", now.Sub(conn.lastActive)).
			Msg("Closing idle connection")
		if err := conn.Sink.Close(); err != nil {
			m.logger.Debug().Err(err).Str("conn_id", conn.ID).Msg("Failed to close idle connection")
		}
		m.Disconnect(conn.ID)
	}
}

// Count returns the number of live connections
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
