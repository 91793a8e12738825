package session

import (
	"errors"
	"testing"
)

func TestMachineStartsConnected(t *testing.T) {
	m := NewMachine()
	if m.Current() != StateConnected {
		t.Errorf("Expected initial state connected, got %s", m.Current())
	}
}

func TestHappyPathTransitions(t *testing.T) {
	m := NewMachine()
	path := []State{StateListening, StateThinking, StateSpeaking, StateListening}
	for _, next := range path {
		if err := m.Transition(next); err != nil {
			t.Fatalf("Expected transition to %s to succeed, got %v", next, err)
		}
	}
	if m.Current() != StateListening {
		t.Errorf("Expected final state listening, got %s", m.Current())
	}
}

func TestThinkingCanReturnToListening(t *testing.T) {
	m := NewMachine()
	m.Transition(StateListening)
	m.Transition(StateThinking)

	// Failed pipeline run skips speaking entirely.
	if err := m.Transition(StateListening); err != nil {
		t.Errorf("Expected thinking -> listening to succeed, got %v", err)
	}
}

func TestInvalidTransitionRejected(t *testing.T) {
	m := NewMachine()

	err := m.Transition(StateSpeaking)
	if err == nil {
		t.Fatal("Expected connected -> speaking to fail, got nil")
	}
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition, got %v", err)
	}
	if m.Current() != StateConnected {
		t.Errorf("Expected state unchanged after rejected transition, got %s", m.Current())
	}
}

func TestTerminalStatesReachableFromAnywhere(t *testing.T) {
	for _, terminal := range []State{StateStopped, StateDisconnected, StateError} {
		for _, from := range []State{StateConnected, StateListening, StateThinking, StateSpeaking} {
			m := &Machine{state: from}
			if err := m.Transition(terminal); err != nil {
				t.Errorf("Expected %s -> %s to succeed, got %v", from, terminal, err)
			}
		}
	}
}

func TestErrorStateRecoversToListening(t *testing.T) {
	m := NewMachine()
	m.Transition(StateError)
	if err := m.Transition(StateListening); err != nil {
		t.Errorf("Expected error -> listening to succeed, got %v", err)
	}
}

func TestSelfTransitionToTerminalRejected(t *testing.T) {
	m := &Machine{state: StateStopped}
	if err := m.Transition(StateStopped); err == nil {
		t.Error("Expected stopped -> stopped to fail, got nil")
	}
}
