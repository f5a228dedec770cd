package countdown

import (
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// Scheduler runs fn every period until the returned Handle is cancelled.
type Scheduler interface {
	ScheduleRepeating(period time.Duration, fn func()) Handle
}

// Handle is a live periodic schedule. Cancel must be safe to call more than once.
type Handle interface {
	Cancel()
}

// TickerScheduler delivers ticks from a clock ticker on a dedicated goroutine.
type TickerScheduler struct {
	clock clock.WithTicker
}

// NewTickerScheduler returns a scheduler driven by c.
func NewTickerScheduler(c clock.WithTicker) *TickerScheduler {
	return &TickerScheduler{clock: c}
}

// NewRealScheduler returns a scheduler on the wall clock.
func NewRealScheduler() *TickerScheduler {
	return NewTickerScheduler(clock.RealClock{})
}

func (s *TickerScheduler) ScheduleRepeating(period time.Duration, fn func()) Handle {
	h := &tickerHandle{
		ticker: s.clock.NewTicker(period),
		done:   make(chan struct{}),
	}
	go h.run(fn)
	return h
}

type tickerHandle struct {
	ticker clock.Ticker
	done   chan struct{}
	once   sync.Once
}

func (h *tickerHandle) run(fn func()) {
	for {
		select {
		case <-h.done:
			return
		case <-h.ticker.C():
			// Cancel may have raced with the tick.
			select {
			case <-h.done:
				return
			default:
			}
			fn()
		}
	}
}

// Cancel stops the ticker without waiting for the goroutine to exit.
func (h *tickerHandle) Cancel() {
	h.once.Do(func() {
		h.ticker.Stop()
		close(h.done)
	})
}
