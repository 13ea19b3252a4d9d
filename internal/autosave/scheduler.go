// Package autosave coalesces bursts of edits into a single deferred write.
package autosave

import (
	"sync"
	"time"
)

// Scheduler holds at most one pending write. Scheduling a new write cancels
// the pending one and restarts the quiet period.
type Scheduler struct {
	delay time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	pending func()
	gen     uint64
	stopped bool
}

// New returns a scheduler that runs writes after delay of inactivity.
func New(delay time.Duration) *Scheduler {
	return &Scheduler{delay: delay}
}

// Schedule replaces any pending write with fn. It is a no-op after Stop.
func (s *Scheduler) Schedule(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.pending = fn
	s.timer = time.AfterFunc(s.delay, func() { s.fire(gen) })
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.pending == nil {
		s.mu.Unlock()
		return
	}
	fn := s.pending
	s.pending = nil
	s.timer = nil
	s.mu.Unlock()

	fn()
}

// Pending reports whether a write is waiting for its quiet period.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

// Flush runs the pending write immediately, if any.
func (s *Scheduler) Flush() {
	s.mu.Lock()
	fn := s.take()
	s.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Cancel drops the pending write without running it.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	s.take()
	s.mu.Unlock()
}

// Stop cancels the pending write and rejects future ones.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.take()
	s.stopped = true
	s.mu.Unlock()
}

// take must be called with mu held.
func (s *Scheduler) take() func() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
	fn := s.pending
	s.pending = nil
	return fn
}
