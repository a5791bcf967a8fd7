// Package mailbox provides a single-slot, last-value-wins handoff between goroutines.
package mailbox

import (
	"context"
	"sync"
)

// Signal holds at most one pending value. Signal overwrites any unconsumed value
// and never blocks the writer; Wait blocks the reader until a value exists and
// consumes it.
//
// A Signal must not be copied after first use. Wait and TryTake may be called from
// several goroutines, but each value is delivered to exactly one of them.
type Signal[T any] struct {
	mu   sync.Mutex
	cond *sync.Cond

	value   T
	pending bool

	drops uint64 // values overwritten before anyone took them
}

// New returns an empty Signal
func New[T any]() *Signal[T] {
	s := &Signal[T]{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *Signal[T]) init() {
	if s.cond == nil {
		s.cond = sync.NewCond(&s.mu)
	}
}

// Signal stores v, replacing any value that was not consumed yet
func (s *Signal[T]) Signal(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()

	if s.pending {
		s.drops++
	}
	s.value = v
	s.pending = true
	s.cond.Broadcast()
}

// Signaled reports whether a value is waiting. It does not consume it.
func (s *Signal[T]) Signaled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// TryTake consumes the pending value without blocking
func (s *Signal[T]) TryTake() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.pending {
		var zero T
		return zero, false
	}
	return s.takeLocked(), true
}

// Wait blocks until a value is available and consumes it. It returns ctx.Err()
// if ctx is done first; a value signaled concurrently with cancellation stays pending.
func (s *Signal[T]) Wait(ctx context.Context) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()

	if s.pending {
		return s.takeLocked(), nil
	}

	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.cond.Broadcast()
	})
	defer stop()

	for !s.pending {
		if err := ctx.Err(); err != nil {
			var zero T
			return zero, err
		}
		s.cond.Wait()
	}
	return s.takeLocked(), nil
}

// Reset drops any pending value
func (s *Signal[T]) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	s.value = zero
	s.pending = false
}

// Drops returns how many values were overwritten before being consumed
func (s *Signal[T]) Drops() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drops
}

func (s *Signal[T]) takeLocked() T {
	v := s.value
	var zero T
	s.value = zero
	s.pending = false
	return v
}
