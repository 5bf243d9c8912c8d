// Package syncutil implements the blocking coordination primitives the
// frame scheduler is built on: a counting semaphore, a one-shot latch
// built on top of it, and a bounded MPMC queue.
package syncutil

import "sync"

// Semaphore is a classic counting semaphore. Wait blocks while the count
// is zero; Signal/SignalAll add to the count and wake waiters.
type Semaphore struct {
	mu    sync.Mutex
	cond  *sync.Cond
	count int
}

// NewSemaphore creates a semaphore initialised to count.
func NewSemaphore(count int) *Semaphore {
	s := &Semaphore{count: count}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Wait blocks until the count is non-zero, then decrements it by one.
func (s *Semaphore) Wait() {
	s.mu.Lock()
	for s.count == 0 {
		s.cond.Wait()
	}
	s.count--
	s.mu.Unlock()
}

// TryWait decrements the count and returns true if it was already
// non-zero, without blocking.
func (s *Semaphore) TryWait() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count == 0 {
		return false
	}
	s.count--
	return true
}

// Signal increments the count by one and wakes a single waiter.
func (s *Semaphore) Signal() {
	s.mu.Lock()
	s.count++
	s.mu.Unlock()
	s.cond.Signal()
}

// SignalAll increments the count by n and wakes every waiter.
func (s *Semaphore) SignalAll(n int) {
	s.mu.Lock()
	s.count += n
	s.mu.Unlock()
	s.cond.Broadcast()
}

// Count returns the current count. Intended for tests and diagnostics.
func (s *Semaphore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}
