package pkg

import "sync"

// HasLocker is implemented by the engine, the catalog and the heap.
type HasLocker interface{ GetLocker() *sync.RWMutex }

func LockWrap(i HasLocker, f func()) {
	l := i.GetLocker()
	l.Lock()
	defer l.Unlock()
	f()
}

func RLockWrap(i HasLocker, f func()) {
	l := i.GetLocker()
	l.RLock()
	defer l.RUnlock()
	f()
}

// RLockGet runs f under the read lock of i and returns its result.
func RLockGet[T any](i HasLocker, f func() T) T {
	l := i.GetLocker()
	l.RLock()
	defer l.RUnlock()
	return f()
}

// RLockLookup is RLockGet for comma-ok lookups.
func RLockLookup[T any](i HasLocker, f func() (T, bool)) (T, bool) {
	l := i.GetLocker()
	l.RLock()
	defer l.RUnlock()
	return f()
}
