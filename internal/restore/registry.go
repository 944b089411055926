package restore

import (
	"sync"
)

// Registry tracks restore sessions for the life of the process. The
// retention manager consults it before deleting artifacts.
type Registry struct {
	mu       sync.RWMutex
	order    []string
	sessions map[string]*Session
}

// NewRegistry returns an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

func (r *Registry) add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID()] = s
	r.order = append(r.order, s.ID())
}

// Get returns the session with the given id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Sessions returns all sessions in creation order.
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.sessions[id])
	}
	return out
}

// InUse reports whether any session still holding a claim on its artifact
// references artifactID.
func (r *Registry) InUse(artifactID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if s.ArtifactID() == artifactID && s.State().Active() {
			return true
		}
	}
	return false
}
