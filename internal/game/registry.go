package game

import (
	"sync"

	"github.com/google/uuid"
)

// Registry owns every live session, keyed by id. Entries are added on
// creation and kept for the life of the process; there is no teardown on
// disconnect. The registry lock is held only for insert and lookup, never
// for the duration of a join or move.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Create builds a fresh session under a new unguessable id and stores it.
// A generated id that collides with a live session is retried rather than
// overwriting the existing entry.
func (r *Registry) Create() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		id := uuid.NewString()
		if _, exists := r.sessions[id]; exists {
			continue
		}
		s := newSession(id)
		r.sessions[id] = s
		return s
	}
}

// Get looks up a session by id. It never creates as a side effect.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Len reports the number of live sessions, for the status surface.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
