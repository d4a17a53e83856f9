package session

import (
	"sync"
	"sync/atomic"
)

// GenTicket is the cancellation token for one generation run. The
// orchestrator polls Stopped at chunk boundaries and acknowledges the end
// of the run through Finish; waiters block on Done for that ack instead
// of sleeping.
type GenTicket struct {
	stopped  atomic.Bool
	forced   atomic.Bool
	done     chan struct{}
	doneOnce sync.Once
}

func newGenTicket() *GenTicket {
	return &GenTicket{done: make(chan struct{})}
}

// Stop flags the run for cancellation. forced marks sweeps and takeovers
// as opposed to a client stop request.
func (t *GenTicket) Stop(forced bool) {
	if forced {
		t.forced.Store(true)
	}
	t.stopped.Store(true)
}

// Stopped reports whether cancellation was requested
func (t *GenTicket) Stopped() bool {
	return t.stopped.Load()
}

// Forced reports whether the stop came from the server side
func (t *GenTicket) Forced() bool {
	return t.forced.Load()
}

// Finish acknowledges that the run has ended. Returns true for the caller
// that actually ended it, so terminal events are emitted exactly once even
// when the sweep and the orchestrator race.
func (t *GenTicket) Finish() bool {
	won := false
	t.doneOnce.Do(func() {
		close(t.done)
		won = true
	})
	return won
}

// Done is closed once the run acknowledges completion
func (t *GenTicket) Done() <-chan struct{} {
	return t.done
}
