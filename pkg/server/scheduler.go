package server

import (
	"sync"
	"time"

	"github.com/decred/slog"
)

// Timer purposes.
const (
	TimerSeatingRetry     = "seating-retry"
	TimerNextHand         = "next-hand"
	TimerBroadcastCadence = "broadcast-cadence"
	TimerApproveRequests  = "approve-requests"
)

type scheduled struct {
	timer *time.Timer
	gen   uint64
}

// Scheduler owns named single-shot timers. Arming a purpose cancels the timer
// already armed for it, so a purpose never has two pending fires.
type Scheduler struct {
	log slog.Logger

	mu      sync.Mutex
	timers  map[string]*scheduled
	gen     uint64
	stopped bool
}

// NewScheduler returns an empty scheduler.
func NewScheduler(log slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Disabled
	}
	return &Scheduler{log: log, timers: make(map[string]*scheduled)}
}

// Arm schedules fn to run once after d under purpose. It reports false after
// Stop.
func (s *Scheduler) Arm(purpose string, d time.Duration, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	if cur, ok := s.timers[purpose]; ok {
		cur.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.timers[purpose] = &scheduled{
		gen: gen,
		timer: time.AfterFunc(d, func() {
			if !s.claim(purpose, gen) {
				return
			}
			fn()
		}),
	}
	s.log.Tracef("Armed %s in %v", purpose, d)
	return true
}

// claim removes the timer of purpose if it is still generation gen. A fire
// that lost a race with Cancel or a re-arm is dropped here.
func (s *Scheduler) claim(purpose string, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.timers[purpose]
	if s.stopped || !ok || cur.gen != gen {
		return false
	}
	delete(s.timers, purpose)
	return true
}

// Cancel disarms purpose. It reports whether a timer was pending.
func (s *Scheduler) Cancel(purpose string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.timers[purpose]
	if !ok {
		return false
	}
	cur.timer.Stop()
	delete(s.timers, purpose)
	return true
}

// Pending reports whether purpose is armed.
func (s *Scheduler) Pending(purpose string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[purpose]
	return ok
}

// Stop cancels every timer and refuses new ones.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for purpose, cur := range s.timers {
		cur.timer.Stop()
		delete(s.timers, purpose)
	}
}
