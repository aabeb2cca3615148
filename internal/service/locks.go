package service

import "sync"

// userLocks hands out one mutex per key so check-then-act sequences for the
// same user serialize while unrelated users proceed concurrently. Mutexes are
// kept for the process lifetime; the map is bounded by the active user count.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newUserLocks() *userLocks {
	return &userLocks{locks: map[string]*sync.Mutex{}}
}

// Lock acquires the mutex for key and returns its unlock func.
func (l *userLocks) Lock(key string) func() {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
