package realtime

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrDuplicateSession is returned by Add when the id is already registered.
	ErrDuplicateSession = errors.New("duplicate session id")

	// ErrRegistryClosed is returned by Add after CloseAll.
	ErrRegistryClosed = errors.New("registry closed")
)

// Registry is the set of open sessions keyed by id.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Add registers s.
func (r *Registry) Add(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRegistryClosed
	}
	if _, exists := r.sessions[s.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateSession, s.ID)
	}
	r.sessions[s.ID] = s
	return nil
}

// Remove deregisters id and reports whether it was present. Removing an
// unknown id is a no-op.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[id]; !exists {
		return false
	}
	delete(r.sessions, id)
	return true
}

// Get returns the session registered under id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot returns the registered sessions at this instant. The read lock
// is held only while the references are copied.
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()
	return out
}

// CloseAll removes and closes every session and returns how many there
// were. Later Add calls fail with ErrRegistryClosed.
func (r *Registry) CloseAll() int {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.closed = true
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	return len(sessions)
}
