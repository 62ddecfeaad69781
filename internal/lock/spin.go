// Package lock provides an opt-in spinlock for callers that share one
// allocator across goroutines despite the allocators themselves making no
// thread-safety guarantee: wrapping every call through a Spin serializes
// access without pulling in a full mutex's runtime machinery.
package lock

import (
	"runtime"
	"sync/atomic"
)

// Spin is a lock where each goroutine trying to acquire it busy-waits
// until the lock becomes available, yielding the processor between
// attempts. The zero Spin is unlocked and ready to use.
type Spin struct {
	state uint32
}

// Acquire blocks until the lock can be acquired by the calling
// goroutine. Re-acquiring a lock already held by the same goroutine
// deadlocks.
func (l *Spin) Acquire() {
	for !l.TryAcquire() {
		runtime.Gosched()
	}
}

// TryAcquire attempts to acquire the lock without blocking and reports
// whether it succeeded.
func (l *Spin) TryAcquire() bool {
	return atomic.CompareAndSwapUint32(&l.state, 0, 1)
}

// Release relinquishes a held lock. Calling Release while the lock is
// free has no effect.
func (l *Spin) Release() {
	atomic.StoreUint32(&l.state, 0)
}
