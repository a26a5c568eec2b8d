package colloquy

import "sync"

// sessionLocks serializes all work for a session key. Different sessions run
// in parallel; within one session, turns are strictly ordered. This is
// load-bearing: node code and checkpoint merges assume no concurrent turn
// for the same session.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sync.Mutex)}
}

// acquire locks the session key and returns the unlock function.
func (s *sessionLocks) acquire(key string) func() {
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}
