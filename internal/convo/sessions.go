package convo

import (
	"sync"
	"time"

	"study-bot/internal/repo"
)

// State names the step a conversation session is currently in.
type State string

const (
	StateCategorySelection State = "category_selection"
	StateMaterialSelection State = "material_selection"
	StateConfirmation      State = "confirmation"
	StateDownloading       State = "downloading"
)

// Session is the ephemeral per-user record tracking progress through the
// purchase flow. It is never persisted.
type Session struct {
	State       State
	Category    string
	Candidates  []repo.Material
	Selected    *repo.Material
	ConfirmCode string
	UpdatedAt   time.Time
}

// SessionStore owns the map of active sessions keyed by external user id.
// It is injected into the engine so tests can build isolated instances and
// a future multi-process deployment can swap in a shared store.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]Session
}

// NewSessionStore creates an empty session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]Session)}
}

// Get returns a copy of the session for the given user id.
func (s *SessionStore) Get(waID string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[waID]
	return sess, ok
}

// Set stores the session for the given user id. Last write wins for
// messages from the same user racing each other.
func (s *SessionStore) Set(waID string, sess Session) {
	sess.UpdatedAt = time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[waID] = sess
}

// Delete removes the session for the given user id, if any.
func (s *SessionStore) Delete(waID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, waID)
}

// Len reports the number of active sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
