package session

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrInvalidTransition = errors.New("invalid session transition")

// Session ties the state machine to the token store. Each method performs one
// protocol step and refuses steps that are illegal from the current state.
// A token is only stored by the step that lands in Authenticated, and a
// Reset from any state wins over a login or refresh still in flight.
type Session struct {
	// mu pairs each state change with its store write.
	mu      sync.Mutex
	machine *Machine
	store   Store
}

func New(store Store, onChange func(from, to State)) *Session {
	return &Session{machine: NewMachine(onChange), store: store}
}

func (s *Session) State() State {
	return s.machine.State()
}

func (s *Session) AccessToken() string {
	return s.store.AccessToken()
}

func (s *Session) step(to State) error {
	from := s.machine.State()
	if !s.machine.TransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

func (s *Session) stepFrom(from, to State) error {
	if !s.machine.TransitionFrom(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.machine.State(), to)
	}
	return nil
}

func (s *Session) BeginLogin() error {
	return s.step(StateAuthenticating)
}

func (s *Session) CompleteLogin(token string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.step(StateAuthenticated); err != nil {
		return err
	}
	s.store.Set(token, expiresAt)
	return nil
}

func (s *Session) FailLogin() error {
	return s.step(StateAnonymous)
}

// BeginRefresh reports whether the caller won the right to run the refresh.
func (s *Session) BeginRefresh() bool {
	return s.machine.TransitionTo(StateRefreshing)
}

// CompleteRefresh stores token only if the session is still Refreshing. After
// a Reset the token is discarded and ErrInvalidTransition is returned.
func (s *Session) CompleteRefresh(token string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.stepFrom(StateRefreshing, StateAuthenticated); err != nil {
		return err
	}
	s.store.Set(token, expiresAt)
	return nil
}

// FailRefresh drops the access token; the session is Expired until Reset.
// It does nothing to a session that was reset meanwhile.
func (s *Session) FailRefresh() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.stepFrom(StateRefreshing, StateExpired); err != nil {
		return err
	}
	s.store.Clear()
	return nil
}

// Reset drops the access token and returns the session to Anonymous from any
// state, including while a login or refresh is in flight.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.Clear()
	if s.machine.State() == StateAnonymous {
		return nil
	}
	return s.step(StateAnonymous)
}
