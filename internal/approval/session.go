package approval

import (
	"slices"
	"sync"
)

// Session holds the tool names approved for the rest of the process run.
// Names are only ever added.
type Session struct {
	mu       sync.RWMutex
	approved map[string]struct{}
}

func NewSession() *Session {
	return &Session{approved: make(map[string]struct{})}
}

func (s *Session) Approve(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.approved[name] = struct{}{}
}

func (s *Session) IsApproved(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.approved[name]
	return ok
}

// Names returns the approved tool names in sorted order.
func (s *Session) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.approved))
	for name := range s.approved {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.approved)
}
