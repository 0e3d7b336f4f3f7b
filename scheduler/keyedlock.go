package scheduler

import "sync"

// KeyedLock is a sync.Map of per-key mutexes, giving every
// (wallet, orderId) pair its own lock instead of one global mutex.
// TryLock is non-blocking: a tick that finds a key already busy skips
// it rather than queuing behind it, mirroring the teacher's per-slot
// locking discipline in internal/trading/grid/slot_manager.go (map +
// per-item mutex, never one lock for the whole map).
type KeyedLock struct {
	locks sync.Map // key string -> *sync.Mutex
}

func (k *KeyedLock) mutexFor(key string) *sync.Mutex {
	v, _ := k.locks.LoadOrStore(key, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// TryLock attempts to acquire key's lock without blocking. Reports
// whether it succeeded.
func (k *KeyedLock) TryLock(key string) bool {
	return k.mutexFor(key).TryLock()
}

// Unlock releases key's lock. Must only be called after a successful
// TryLock on the same key.
func (k *KeyedLock) Unlock(key string) {
	k.mutexFor(key).Unlock()
}
