package session

import (
	"sync"
	"time"
)

// Store holds the current access token in memory. Readers call AccessToken;
// the request interceptor is the only caller of Set and Clear.
type Store interface {
	AccessToken() string
	Set(token string, expiresAt time.Time)
	Clear()
}

type MemoryStore struct {
	mu        sync.RWMutex
	token     string
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *MemoryStore) ExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiresAt
}

func (s *MemoryStore) Set(token string, expiresAt time.Time) {
	s.mu.Lock()
	s.token = token
	s.expiresAt = expiresAt
	s.mu.Unlock()
}

func (s *MemoryStore) Clear() {
	s.mu.Lock()
	s.token = ""
	s.expiresAt = time.Time{}
	s.mu.Unlock()
}
