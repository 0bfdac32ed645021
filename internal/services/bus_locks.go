package services

import "sync"

// busLocks serializes work per bus inside one process. Entries are reference
// counted and dropped once no goroutine holds or waits for them.
type busLocks struct {
	mu    sync.Mutex
	locks map[string]*busLock
}

type busLock struct {
	mu   sync.Mutex
	refs int
}

func newBusLocks() *busLocks {
	return &busLocks{locks: make(map[string]*busLock)}
}

// lock blocks until the caller owns busID and returns the matching unlock
func (l *busLocks) lock(busID string) func() {
	l.mu.Lock()
	entry, ok := l.locks[busID]
	if !ok {
		entry = &busLock{}
		l.locks[busID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, busID)
		}
		l.mu.Unlock()
	}
}

func (l *busLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
