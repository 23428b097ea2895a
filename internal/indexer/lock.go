package indexer

import "sync/atomic"

// runLock provides non-blocking mutual exclusion for indexing runs: a second
// run must be rejected immediately rather than queued behind the first.
type runLock struct {
	state atomic.Int32 // 0 = unlocked, 1 = locked
}

// TryAcquire attempts to acquire the lock without blocking.
// Returns true if the lock was successfully acquired.
func (l *runLock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release releases the lock.
// Must only be called by the goroutine that successfully acquired it.
func (l *runLock) Release() {
	l.state.Store(0)
}
