// Package countdowntest provides a virtual-time scheduler for countdown tests.
package countdowntest

import (
	"sync"
	"time"

	"hkcountdown/internal/countdown"
)

// Scheduler is a countdown.Scheduler driven by Advance instead of the wall
// clock. Callbacks run synchronously on the goroutine calling Advance.
type Scheduler struct {
	mu        sync.Mutex
	now       time.Duration
	schedules []*schedule
	created   int
}

type schedule struct {
	owner     *Scheduler
	period    time.Duration
	next      time.Duration
	fn        func()
	cancelled bool
}

func New() *Scheduler {
	return &Scheduler{}
}

func (s *Scheduler) ScheduleRepeating(period time.Duration, fn func()) countdown.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc := &schedule{
		owner:  s,
		period: period,
		next:   s.now + period,
		fn:     fn,
	}
	s.schedules = append(s.schedules, sc)
	s.created++
	return sc
}

func (sc *schedule) Cancel() {
	sc.owner.mu.Lock()
	defer sc.owner.mu.Unlock()

	if sc.cancelled {
		return
	}
	sc.cancelled = true
	for i, other := range sc.owner.schedules {
		if other == sc {
			sc.owner.schedules = append(sc.owner.schedules[:i], sc.owner.schedules[i+1:]...)
			break
		}
	}
}

// Advance moves virtual time forward by d, firing every due callback in
// time order.
func (s *Scheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now + d
	s.mu.Unlock()

	for {
		s.mu.Lock()
		due := s.nextDueLocked(target)
		if due == nil {
			s.now = target
			s.mu.Unlock()
			return
		}
		s.now = due.next
		due.next += due.period
		fn := due.fn
		s.mu.Unlock()

		fn()
	}
}

func (s *Scheduler) nextDueLocked(target time.Duration) *schedule {
	var due *schedule
	for _, sc := range s.schedules {
		if sc.next > target {
			continue
		}
		if due == nil || sc.next < due.next {
			due = sc
		}
	}
	return due
}

// Live returns the number of schedules not yet cancelled.
func (s *Scheduler) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.schedules)
}

// Created returns the number of schedules ever created.
func (s *Scheduler) Created() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.created
}
