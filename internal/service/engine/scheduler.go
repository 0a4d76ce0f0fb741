package engine

import (
	"sync"
	"time"
)

// Scheduler runs fn once after d. Resolutions of the state machine are only
// ever resumed through it.
type Scheduler interface {
	After(d time.Duration, fn func())
}

// TimerScheduler schedules work on runtime timers.
type TimerScheduler struct{}

func (TimerScheduler) After(d time.Duration, fn func()) {
	time.AfterFunc(d, fn)
}

// ManualScheduler queues scheduled work until it is stepped explicitly.
// It lets callers drive an engine without waiting on real delays.
type ManualScheduler struct {
	mu      sync.Mutex
	pending []scheduled
}

type scheduled struct {
	delay time.Duration
	fn    func()
}

func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

func (s *ManualScheduler) After(d time.Duration, fn func()) {
	s.mu.Lock()
	s.pending = append(s.pending, scheduled{delay: d, fn: fn})
	s.mu.Unlock()
}

// Pending returns the number of queued callbacks.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Delays returns the delays of queued callbacks in scheduling order.
func (s *ManualScheduler) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	delays := make([]time.Duration, len(s.pending))
	for i, p := range s.pending {
		delays[i] = p.delay
	}
	return delays
}

// Step runs the oldest queued callback on the calling goroutine. It reports
// false when nothing was queued.
func (s *ManualScheduler) Step() bool {
	s.mu.Lock()
	if len(s.pending) == 0 {
		s.mu.Unlock()
		return false
	}
	next := s.pending[0]
	s.pending = s.pending[1:]
	s.mu.Unlock()

	next.fn()
	return true
}

// Drain steps until the queue is empty, including work scheduled by the
// callbacks themselves. It returns the number of callbacks run.
func (s *ManualScheduler) Drain() int {
	n := 0
	for s.Step() {
		n++
	}
	return n
}
