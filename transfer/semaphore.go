// Package transfer implements the chunked transfer coordinator: session
// state, bounded-concurrency chunk workers, pause/resume/cancel, and
// final reassembly.
package transfer

import (
	"context"
	"sync"
)

// Semaphore is a counting permit gate bounding concurrent chunk requests.
// Waiters are woken in FIFO order so no chunk starves behind later
// arrivals. It is purely a scheduling primitive; no data ownership moves
// through it.
type Semaphore struct {
	mu      sync.Mutex
	permits int
	waiters []chan struct{}
}

// NewSemaphore creates a semaphore with n permits. n must be >= 1.
func NewSemaphore(n int) *Semaphore {
	if n < 1 {
		n = 1
	}
	return &Semaphore{permits: n}
}

// Acquire takes a permit, blocking until one is free or ctx is cancelled.
func (s *Semaphore) Acquire(ctx context.Context) error {
	s.mu.Lock()
	if s.permits > 0 && len(s.waiters) == 0 {
		s.permits--
		s.mu.Unlock()
		return nil
	}

	ready := make(chan struct{})
	s.waiters = append(s.waiters, ready)
	s.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		// Remove ourselves from the queue; if Release already signalled
		// the channel, the permit is ours to hand back.
		for i, w := range s.waiters {
			if w == ready {
				s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
				s.mu.Unlock()
				return ctx.Err()
			}
		}
		s.mu.Unlock()

		select {
		case <-ready:
			s.Release()
		default:
		}
		return ctx.Err()
	}
}

// Release returns a permit, waking the oldest waiter if any.
func (s *Semaphore) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.waiters) > 0 {
		ready := s.waiters[0]
		s.waiters = s.waiters[1:]
		close(ready)
		return
	}
	s.permits++
}
