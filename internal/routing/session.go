package routing

import "sync"

// Session owns the active route selection for the lifetime of the server.
type Session struct {
	mu     sync.RWMutex
	active *ActiveRoute
}

func NewSession() *Session {
	return &Session{}
}

func (s *Session) SetActive(r ActiveRoute) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = &r
}

// Active returns a copy of the selection, or false when none is set.
func (s *Session) Active() (ActiveRoute, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == nil {
		return ActiveRoute{}, false
	}
	return *s.active, true
}

func (s *Session) ClearActive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = nil
}

func (s *Session) IsActive(routeID string) bool {
	a, ok := s.Active()
	return ok && a.ID == routeID
}
