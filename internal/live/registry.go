package live

import (
	"sync"

	"github.com/MeghVyas3132/AI-Interviewer-Saas-sub000/internal/agent"
	"github.com/MeghVyas3132/AI-Interviewer-Saas-sub000/internal/metrics"
)

// Registry tracks the sessions running on this instance by token.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*agent.Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*agent.Session)}
}

// Add registers s and returns the session it replaced, if any.
func (r *Registry) Add(token string, s *agent.Session) *agent.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.sessions[token]
	r.sessions[token] = s
	if prev == nil {
		metrics.ActiveSessions.Inc()
	}
	return prev
}

func (r *Registry) Get(token string) (*agent.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[token]
	return s, ok
}

// Remove drops s if it is still the registered session for token.
func (r *Registry) Remove(token string, s *agent.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[token] == s {
		delete(r.sessions, token)
		metrics.ActiveSessions.Dec()
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll closes every registered session and waits for their finalize
// writes. Socket handlers remove the sessions as their read loops end.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	all := make([]*agent.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.RUnlock()

	var wg sync.WaitGroup
	for _, s := range all {
		wg.Add(1)
		go func(s *agent.Session) {
			defer wg.Done()
			s.Close()
		}(s)
	}
	wg.Wait()
}
