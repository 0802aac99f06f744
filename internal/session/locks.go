package session

import "sync"

// lockTable hands out one mutex per conversation identifier so exchanges
// on the same conversation serialize while unrelated conversations run in
// parallel. Entries are reference counted and dropped once idle, so the
// table does not grow with the number of conversations ever seen.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*lockEntry)}
}

// acquire blocks until the caller holds the conversation's lock and
// returns the matching release func.
func (t *lockTable) acquire(conversationID string) func() {
	t.mu.Lock()
	entry, ok := t.locks[conversationID]
	if !ok {
		entry = &lockEntry{}
		t.locks[conversationID] = entry
	}
	entry.refs++
	t.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		t.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(t.locks, conversationID)
		}
		t.mu.Unlock()
	}
}
