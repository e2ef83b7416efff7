package session

import (
	"errors"
	"fmt"
	"sync"
)

// State is a session lifecycle state.
type State string

const (
	StateIdle            State = "idle"
	StateReceived        State = "received"
	StateParsing         State = "parsing"
	StateSearching       State = "searching"
	StateScoring         State = "scoring"
	StateSynthesizing    State = "synthesizing"
	StateArtifactPending State = "artifact_pending"
	StateCompleted       State = "completed"
	StateCancelled       State = "cancelled"
	StateFailed          State = "failed"
)

// next is the only forward move out of each non-terminal state.
var next = map[State]State{
	StateIdle:            StateReceived,
	StateReceived:        StateParsing,
	StateParsing:         StateSearching,
	StateSearching:       StateScoring,
	StateScoring:         StateSynthesizing,
	StateSynthesizing:    StateArtifactPending,
	StateArtifactPending: StateCompleted,
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// ErrInvalidTransition is returned for a move the table does not allow.
var ErrInvalidTransition = errors.New("invalid state transition")

// Machine is the per-session state machine. Safe for concurrent use.
type Machine struct {
	mu      sync.Mutex
	state   State
	history []State
}

func NewMachine() *Machine {
	return &Machine{state: StateIdle, history: []State{StateIdle}}
}

// Transition moves to the next pipeline state, or to cancelled/failed from
// any non-terminal state.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	from := m.state
	ok := !from.Terminal() && (next[from] == to || to == StateCancelled || to == StateFailed)
	if !ok {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	m.state = to
	m.history = append(m.history, to)
	return nil
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// History returns every state visited, in order.
func (m *Machine) History() []State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]State(nil), m.history...)
}
