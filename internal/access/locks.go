package access

import "sync"

// LockSet hands out one mutex per key. Entries are reference counted and
// removed when the last holder unlocks, so the set only holds keys that
// are currently in use.
type LockSet struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// NewLockSet creates an empty LockSet.
func NewLockSet() *LockSet {
	return &LockSet{locks: make(map[string]*lockEntry)}
}

// Lock blocks until key is free and returns the function that releases it.
func (s *LockSet) Lock(key string) (unlock func()) {
	s.mu.Lock()
	e, ok := s.locks[key]
	if !ok {
		e = &lockEntry{}
		s.locks[key] = e
	}
	e.refs++
	s.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		s.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

// size returns the number of keys currently locked or waited on.
func (s *LockSet) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}
