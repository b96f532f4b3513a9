package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/pigeon-im/pigeon/internal/bus"
)

// SessionState represents the client session's connectivity state.
type SessionState string

const (
	Booting      SessionState = "BOOTING"
	Connecting   SessionState = "CONNECTING"
	Syncing      SessionState = "SYNCING"
	Ready        SessionState = "READY"
	Reconnecting SessionState = "RECONNECTING"
	Offline      SessionState = "OFFLINE"
	Failed       SessionState = "FAILED"
)

// validTransitions defines allowed session state transitions.
var validTransitions = map[SessionState][]SessionState{
	Booting:      {Connecting, Offline, Failed},
	Connecting:   {Syncing, Reconnecting, Offline, Failed},
	Syncing:      {Ready, Reconnecting, Failed},
	Ready:        {Reconnecting, Offline, Failed},
	Reconnecting: {Connecting, Offline, Failed},
	Offline:      {Connecting, Failed},
	Failed:       {Booting},
}

// SessionMachine tracks and enforces session connectivity transitions.
type SessionMachine struct {
	mu      sync.RWMutex
	current SessionState
	bus     *bus.Bus
}

// NewSessionMachine creates a session machine starting in Booting state.
func NewSessionMachine(b *bus.Bus) *SessionMachine {
	return &SessionMachine{
		current: Booting,
		bus:     b,
	}
}

// Current returns the current session state.
func (m *SessionMachine) Current() SessionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Online reports whether the session can dispatch sends right now.
func (m *SessionMachine) Online() bool {
	return m.Current() == Ready
}

// Transition attempts to move to a new state. Returns an error if the
// transition is invalid; the state is unchanged in that case.
func (m *SessionMachine) Transition(to SessionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid session transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Emit(bus.KindSessionStateChanged, SessionChange{From: from, To: to})
	}
	return nil
}

// SessionChange is the payload for session state change events.
type SessionChange struct {
	From SessionState
	To   SessionState
}
