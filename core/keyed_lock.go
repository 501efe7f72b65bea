package core

import "sync"

// ConversationLocks is the per-conversation serialization point: all events
// for the same conversation id must be processed in arrival order and never
// concurrently with each other, while events for different conversations
// proceed fully in parallel.
//
// Lock entries are reference counted and removed once the last holder
// releases, so the map does not grow with the total number of conversations
// ever seen.
type ConversationLocks struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// NewConversationLocks constructs an empty lock set.
func NewConversationLocks() *ConversationLocks {
	return &ConversationLocks{locks: make(map[string]*lockEntry)}
}

// Lock acquires the mutex for key, blocking while another holder has it, and
// returns the release function. Callers must invoke the release exactly once.
func (l *ConversationLocks) Lock(key string) func() {
	l.mu.Lock()
	entry, ok := l.locks[key]
	if !ok {
		entry = &lockEntry{}
		l.locks[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			entry.mu.Unlock()
			l.mu.Lock()
			entry.refs--
			if entry.refs == 0 {
				delete(l.locks, key)
			}
			l.mu.Unlock()
		})
	}
}

// Len returns the number of keys currently tracked. Intended for tests.
func (l *ConversationLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
