// Package memory provides in-memory storage for session records
package memory

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/AltairaLabs/devserver-mcp/internal/types"
)

var (
	errSessionNil     = errors.New("session cannot be nil")
	errSessionIDEmpty = errors.New("session ID cannot be empty")
)

// SessionStore keeps session records. Records are copied on the way in and
// out so callers never share mutable state with the store.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*types.SessionInfo
}

// NewSessionStore creates an empty session store
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*types.SessionInfo),
	}
}

// Create stores a new session record
func (s *SessionStore) Create(session *types.SessionInfo) error {
	if session == nil {
		return errSessionNil
	}
	if session.ID == "" {
		return errSessionIDEmpty
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; exists {
		return fmt.Errorf("session with ID %s already exists", session.ID)
	}
	s.sessions[session.ID] = session.Clone()
	return nil
}

// Get retrieves a copy of the session record
func (s *SessionStore) Get(sessionID string) (*types.SessionInfo, error) {
	if sessionID == "" {
		return nil, errSessionIDEmpty
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		return nil, types.NewError(types.KindSessionNotFound, "session %s not found", sessionID)
	}
	return session.Clone(), nil
}

// Update applies fn to the stored record under the write lock and returns a copy
// of the result. If fn returns an error the record is left unchanged.
func (s *SessionStore) Update(sessionID string, fn func(*types.SessionInfo) error) (*types.SessionInfo, error) {
	if sessionID == "" {
		return nil, errSessionIDEmpty
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		return nil, types.NewError(types.KindSessionNotFound, "session %s not found", sessionID)
	}

	working := session.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	working.ID = sessionID
	s.sessions[sessionID] = working
	return working.Clone(), nil
}

// Delete removes a session record. Deleting a missing record is not an error.
func (s *SessionStore) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// List returns copies of all records, most recently started first
func (s *SessionStore) List() []*types.SessionInfo {
	s.mu.RLock()
	out := make([]*types.SessionInfo, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

// Find returns copies of the records matching pred
func (s *SessionStore) Find(pred func(*types.SessionInfo) bool) []*types.SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.SessionInfo
	for _, session := range s.sessions {
		if pred(session) {
			out = append(out, session.Clone())
		}
	}
	return out
}

// CompletedBefore returns the IDs of finished sessions that completed before cutoff
func (s *SessionStore) CompletedBefore(cutoff time.Time) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, session := range s.sessions {
		if session.State.Terminal() && session.CompletedAt != nil && session.CompletedAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of stored records
func (s *SessionStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
