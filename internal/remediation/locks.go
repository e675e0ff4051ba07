package remediation

import "sync"

// lockTable serializes state transitions per request. The engine is a
// single-process tool, so an in-process mutex per request UUID is the row
// lock; the sqlite transaction underneath provides durability, not mutual
// exclusion.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*sync.Mutex)}
}

// acquire returns the held lock for the request; the caller must Unlock it.
func (lt *lockTable) acquire(requestUUID string) *sync.Mutex {
	lt.mu.Lock()
	l, ok := lt.locks[requestUUID]
	if !ok {
		l = &sync.Mutex{}
		lt.locks[requestUUID] = l
	}
	lt.mu.Unlock()

	l.Lock()
	return l
}
