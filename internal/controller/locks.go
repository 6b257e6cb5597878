package controller

import (
	"errors"
	"sync"
)

// ErrSyncInProgress is returned when a sync is requested for a repository
// that already has one in flight. Callers surface it instead of silently
// skipping the request.
var ErrSyncInProgress = errors.New("sync already in progress for this repository")

// lockTable enforces at most one sync operation per repository config.
// Acquisition never blocks: a second caller is rejected immediately.
type lockTable struct {
	mu   sync.Mutex
	held map[string]bool
}

func newLockTable() *lockTable {
	return &lockTable{held: make(map[string]bool)}
}

// TryLock acquires the per-config lock, reporting false when already held.
func (t *lockTable) TryLock(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.held[id] {
		return false
	}
	t.held[id] = true
	return true
}

// Unlock releases the per-config lock. Safe to call on every exit path.
func (t *lockTable) Unlock(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.held, id)
}
