// Package lock provides in-process keyed locks. The bot uses them to drop
// duplicate review button presses before they reach the database, where row
// locks remain the source of truth.
package lock

import (
	"sync"
)

// entry is a mutex shared by every holder and waiter of one key.
type entry struct {
	mu   sync.Mutex
	refs int
}

// KeyLock hands out one mutex per int64 key and forgets keys nobody holds.
type KeyLock struct {
	mu      sync.Mutex
	entries map[int64]*entry
}

// NewKeyLock creates a new KeyLock.
func NewKeyLock() *KeyLock {
	return &KeyLock{entries: make(map[int64]*entry)}
}

func (k *KeyLock) acquire(key int64) *entry {
	k.mu.Lock()
	defer k.mu.Unlock()

	e, ok := k.entries[key]
	if !ok {
		e = &entry{}
		k.entries[key] = e
	}
	e.refs++
	return e
}

func (k *KeyLock) release(key int64, e *entry) {
	k.mu.Lock()
	defer k.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
}

// Lock blocks until key is held.
func (k *KeyLock) Lock(key int64) {
	k.acquire(key).mu.Lock()
}

// Unlock releases key. Unlocking a key that is not held panics, like sync.Mutex.
func (k *KeyLock) Unlock(key int64) {
	k.mu.Lock()
	e, ok := k.entries[key]
	k.mu.Unlock()
	if !ok {
		panic("lock: unlock of unlocked key")
	}
	e.mu.Unlock()
	k.release(key, e)
}

// TryLock acquires key without blocking and reports whether it succeeded.
func (k *KeyLock) TryLock(key int64) bool {
	e := k.acquire(key)
	if e.mu.TryLock() {
		return true
	}
	k.release(key, e)
	return false
}

// WithLock runs fn while holding key.
func (k *KeyLock) WithLock(key int64, fn func() error) error {
	k.Lock(key)
	defer k.Unlock(key)
	return fn()
}

// Len returns the number of keys currently held or awaited.
func (k *KeyLock) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
