package session

import (
	"errors"
	"sort"
	"sync"
)

// ErrNotInitialized is returned by Registry operations outside the
// Init/Dispose window.
var ErrNotInitialized = errors.New("session: registry is not initialized")

// Registry is the process-wide set of known chat lines. It is live between
// Init and Dispose; every read and write goes through its mutex.
type Registry struct {
	mu       sync.RWMutex
	live     bool
	sessions map[string]*Session
}

// NewRegistry creates an uninitialized Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Init makes the registry live and seeds it with sessions. Calling Init on
// a live registry replaces its contents.
func (r *Registry) Init(seed []Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = make(map[string]*Session, len(seed))
	for i := range seed {
		s := seed[i]
		r.sessions[s.Name] = &s
	}
	r.live = true
}

// Dispose drops every session. Later operations return ErrNotInitialized
// until Init is called again.
func (r *Registry) Dispose() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = nil
	r.live = false
}

// Live reports whether the registry is between Init and Dispose.
func (r *Registry) Live() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.live
}

// Get returns a copy of the named session.
func (r *Registry) Get(name string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[name]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// List returns every session ordered by name.
func (r *Registry) List() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// update runs fn with the write lock held. fn receives the live map.
func (r *Registry) update(fn func(m map[string]*Session) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.live {
		return ErrNotInitialized
	}
	return fn(r.sessions)
}
