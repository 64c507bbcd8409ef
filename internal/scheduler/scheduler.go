// Package scheduler keeps at most one pending callback per key on top of an
// injectable clock.
package scheduler

import (
	"sync"
	"time"

	"brainstorm/internal/clock"
)

// Scheduler holds one pending timer per key. Scheduling a key that already
// has a pending timer replaces it.
type Scheduler struct {
	clock clock.Clock

	mu      sync.Mutex
	pending map[string]*entry
	nextGen uint64
}

type entry struct {
	timer *clock.Timer
	gen   uint64
}

// New creates a scheduler driven by c.
func New(c clock.Clock) *Scheduler {
	return &Scheduler{
		clock:   c,
		pending: make(map[string]*entry),
	}
}

// Schedule runs fn after d under key, cancelling whatever was pending for
// that key.
func (s *Scheduler) Schedule(key string, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.pending[key]; ok {
		old.timer.Stop()
	}

	s.nextGen++
	gen := s.nextGen
	e := &entry{gen: gen}
	s.pending[key] = e
	e.timer = s.clock.AfterFunc(d, func() {
		s.mu.Lock()
		cur, ok := s.pending[key]
		if !ok || cur.gen != gen {
			s.mu.Unlock()
			return
		}
		delete(s.pending, key)
		s.mu.Unlock()
		fn()
	})
}

// Cancel drops the pending callback for key. Returns false if nothing was
// pending.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.pending[key]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(s.pending, key)
	return true
}

// Pending reports whether key has a callback waiting to fire.
func (s *Scheduler) Pending(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[key]
	return ok
}

// Len returns the number of keys with a pending callback.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Stop cancels everything. Used on shutdown.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, e := range s.pending {
		e.timer.Stop()
		delete(s.pending, key)
	}
}
