// Package kmutex implements the kernel's binary, non-recursive mutex.
//
// Ordinary Go code would reach for sync.Mutex directly, and most of
// this kernel does exactly that. This mutex exists because the
// kernel-level contract is stricter than sync.Mutex's: recursive
// acquisition by the same thread must fail loudly, waiters must be
// released in FIFO order, and the lock's current owner must be
// inspectable to enforce the fs-lock-inside vnode-lock ordering rule.
package kmutex

import (
	"sync"

	"github.com/Metalgear47/Weenix/internal/waitqueue"
)

// KMutex is a binary lock with an owner and a FIFO wait queue.
type KMutex struct {
	mu     sync.Mutex
	locked bool
	owner  any
	wq     *waitqueue.WaitQueue
}

// New returns an unlocked mutex.
func New() *KMutex {
	return &KMutex{wq: waitqueue.New()}
}

// Lock acquires the mutex on behalf of owner, blocking (via the wait
// queue) while it is held by someone else. Recursive acquisition by
// the same owner is a programmer error and panics rather than
// deadlocking silently.
func (m *KMutex) Lock(owner any) {
	m.mu.Lock()
	if m.locked && m.owner == owner {
		m.mu.Unlock()
		panic("kmutex: recursive acquisition")
	}
	for m.locked {
		w := m.wq.Enqueue()
		m.mu.Unlock()
		w.Wait()
		m.mu.Lock()
	}
	m.locked = true
	m.owner = owner
	m.mu.Unlock()
}

// Unlock releases the mutex and wakes the longest-waiting acquirer,
// if any. Unlocking a mutex not held by owner is a programmer error.
func (m *KMutex) Unlock(owner any) {
	m.mu.Lock()
	if !m.locked || m.owner != owner {
		m.mu.Unlock()
		panic("kmutex: unlock by non-owner")
	}
	m.locked = false
	m.owner = nil
	m.mu.Unlock()
	m.wq.WakeOne()
}

// Owner returns the current holder, or nil if unlocked.
func (m *KMutex) Owner() any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.owner
}

// Holds reports whether owner currently holds the mutex.
func (m *KMutex) Holds(owner any) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locked && m.owner == owner
}
