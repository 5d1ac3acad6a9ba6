package storage

import (
	"sort"
	"sync"

	"github.com/cardledger/cardintake/internal/capture"
)

// SessionStore keeps the live capture sessions in memory.
type SessionStore struct {
	sessions map[string]*capture.Controller
	mu       sync.RWMutex
}

func New() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*capture.Controller),
	}
}

func (s *SessionStore) Get(sessionID string) (*capture.Controller, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, exists := s.sessions[sessionID]
	return session, exists
}

func (s *SessionStore) Set(sessionID string, session *capture.Controller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = session
}

// GetAll returns the sessions, oldest first.
func (s *SessionStore) GetAll() []*capture.Controller {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*capture.Controller, 0, len(s.sessions))
	for _, v := range s.sessions {
		result = append(result, v)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt().Before(result[j].CreatedAt())
	})
	return result
}

// Delete removes a session and closes it.
func (s *SessionStore) Delete(sessionID string) bool {
	s.mu.Lock()
	session, exists := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	if exists {
		session.Close()
	}
	return exists
}

// CloseAll closes every session and waits for their background work.
func (s *SessionStore) CloseAll() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*capture.Controller)
	s.mu.Unlock()
	for _, session := range sessions {
		session.Close()
	}
	for _, session := range sessions {
		session.Wait()
	}
}
