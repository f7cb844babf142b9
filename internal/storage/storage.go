// Package storage keeps open edit sessions in memory.
package storage

import (
	"sort"
	"sync"

	"github.com/lehigh-university-libraries/librarian/internal/models"
)

// SessionStore holds edit sessions by id. Callers always get copies, so a
// session can only change through Set or Update.
type SessionStore struct {
	sessions map[string]*models.EditSession
	mu       sync.RWMutex
}

func New() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*models.EditSession),
	}
}

func (s *SessionStore) Get(sessionID string) (*models.EditSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, exists := s.sessions[sessionID]
	if !exists {
		return nil, false
	}
	return session.Clone(), true
}

func (s *SessionStore) Set(sessionID string, session *models.EditSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = session.Clone()
}

// Update applies fn to the stored session under the write lock and returns
// a copy of the result. fn's error aborts the update.
func (s *SessionStore) Update(sessionID string, fn func(*models.EditSession) error) (*models.EditSession, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, exists := s.sessions[sessionID]
	if !exists {
		return nil, false, nil
	}
	next := current.Clone()
	if err := fn(next); err != nil {
		return current.Clone(), true, err
	}
	s.sessions[sessionID] = next
	return next.Clone(), true, nil
}

// GetAll returns every session, oldest first.
func (s *SessionStore) GetAll() []*models.EditSession {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.EditSession, 0, len(s.sessions))
	for _, v := range s.sessions {
		result = append(result, v.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

func (s *SessionStore) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}
