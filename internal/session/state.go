// Package session holds the client side of the auth session protocol: the
// state machine and the store for the in-memory access token.
package session

import (
	"fmt"
	"sync/atomic"
)

// State is the lifecycle state of a client session.
type State int32

const (
	StateAnonymous      State = iota // No credentials held
	StateAuthenticating              // Login request in flight
	StateAuthenticated               // Access token held
	StateRefreshing                  // Single refresh in flight, other requests wait
	StateExpired                     // Refresh failed, must return to Anonymous
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing"
	case StateExpired:
		return "expired"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// isValidTransition checks if a state transition is valid
func isValidTransition(from, to State) bool {
	switch from {
	case StateAnonymous:
		return to == StateAuthenticating
	case StateAuthenticating:
		return to == StateAuthenticated || to == StateAnonymous
	case StateAuthenticated:
		return to == StateRefreshing || to == StateAnonymous
	case StateRefreshing:
		return to == StateAuthenticated || to == StateExpired || to == StateAnonymous
	case StateExpired:
		return to == StateAnonymous
	}
	return false
}

type Machine struct {
	state    atomic.Int32
	onChange func(from, to State)
}

// NewMachine starts in StateAnonymous. onChange, if non-nil, runs after every
// successful transition.
func NewMachine(onChange func(from, to State)) *Machine {
	m := &Machine{onChange: onChange}
	m.state.Store(int32(StateAnonymous))
	return m
}

func (m *Machine) State() State {
	return State(m.state.Load())
}

// TransitionTo atomically moves to next if the edge from the current state is
// legal. Only one of several concurrent callers racing for the same edge wins.
func (m *Machine) TransitionTo(next State) bool {
	for {
		current := State(m.state.Load())
		if !isValidTransition(current, next) {
			return false
		}
		if m.state.CompareAndSwap(int32(current), int32(next)) {
			if m.onChange != nil {
				m.onChange(current, next)
			}
			return true
		}
	}
}

// TransitionFrom moves from exactly from to next. It fails if another caller
// changed the state first.
func (m *Machine) TransitionFrom(from, next State) bool {
	if !isValidTransition(from, next) {
		return false
	}
	if !m.state.CompareAndSwap(int32(from), int32(next)) {
		return false
	}
	if m.onChange != nil {
		m.onChange(from, next)
	}
	return true
}
