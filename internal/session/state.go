package session

import (
	"errors"
	"fmt"
	"sync"
)

// State represents the lifecycle state of a voice session
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnected    State = "connected"
	StateListening    State = "listening"
	StateThinking     State = "thinking"
	StateSpeaking     State = "speaking"
	StateStopped      State = "stopped"
	StateError        State = "error"
)

// ErrInvalidTransition is returned when a requested state change is not
// part of the session lifecycle. Callers log and ignore it rather than
// failing the connection.
var ErrInvalidTransition = errors.New("invalid session state transition")

// transitions lists the lifecycle edges. StateStopped, StateDisconnected
// and StateError are additionally reachable from every state.
var transitions = map[State][]State{
	StateConnected: {StateListening},
	StateListening: {StateThinking},
	StateThinking:  {StateSpeaking, StateListening},
	StateSpeaking:  {StateListening},
	StateError:     {StateListening},
}

// Machine owns the state of one session and validates transitions. It is
// safe for concurrent use; the session's read loop and pipeline consumer
// both touch it.
type Machine struct {
	mu    sync.Mutex
	state State
}

// NewMachine creates a machine in StateConnected, the initial state on
// socket open
func NewMachine() *Machine {
	return &Machine{state: StateConnected}
}

// Current returns the current state
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Transition moves the machine to the target state, or returns
// ErrInvalidTransition leaving the state unchanged
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !allowed(m.state, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.state, to)
	}
	m.state = to
	return nil
}

// Is reports whether the machine currently holds the given state
func (m *Machine) Is(s State) bool {
	return m.Current() == s
}

func allowed(from, to State) bool {
	// Terminal and error states are reachable from anywhere.
	if to == StateStopped || to == StateDisconnected || to == StateError {
		return from != to
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
