package syncutil

import "sync/atomic"

// Latch is a one-shot signal built on a Semaphore. Done may be called more
// than once (only the first has effect); Wait blocks until the first Done,
// then immediately re-signals so any later waiter also passes through
// without blocking. This sticky behavior is intentional: population
// completion is observed by exactly one submitter but may be waited on
// from more than one place over the work piece's lifetime.
type Latch struct {
	sem  *Semaphore
	done atomic.Bool
}

// NewLatch creates a latch in the not-done state.
func NewLatch() *Latch {
	return &Latch{sem: NewSemaphore(0)}
}

// Done signals the latch. Safe to call more than once, and safe to call
// concurrently with itself; only the first call has any effect.
func (l *Latch) Done() {
	if l.done.CompareAndSwap(false, true) {
		l.sem.SignalAll(1)
	}
}

// Wait blocks until Done has been called at least once, then returns
// immediately for any subsequent call.
func (l *Latch) Wait() {
	l.sem.Wait()
	l.sem.Signal()
}

// IsDone reports whether Done has been called, without blocking.
func (l *Latch) IsDone() bool {
	return l.done.Load()
}
