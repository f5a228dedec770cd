// Package countdown implements a ticking countdown with pause, reset and lap support.
package countdown

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultFrequency is the tick period used when none is configured.
const DefaultFrequency = time.Second

var (
	ErrInvalidDuration  = errors.New("countdown duration must be positive")
	ErrInvalidFrequency = errors.New("countdown frequency must be positive")
)

// Option configures a Timer.
type Option func(*Timer)

// WithFrequency sets the tick period, which is also the per-tick step.
func WithFrequency(frequency time.Duration) Option {
	return func(t *Timer) {
		t.frequency = frequency
	}
}

// WithScheduler replaces the wall-clock scheduler.
func WithScheduler(s Scheduler) Option {
	return func(t *Timer) {
		t.scheduler = s
	}
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(t *Timer) {
		t.log = log
	}
}

// Snapshot is a consistent read of the countdown state.
type Snapshot struct {
	Remaining    time.Duration
	TotalElapsed time.Duration
	Running      bool
}

// Timer counts down from a fixed duration in steps of frequency.
//
// At most one periodic schedule is live at any time. Every operation cancels
// the current schedule before it creates another one, and ticks delivered by
// a cancelled schedule are dropped, so a single tick stream mutates the state.
type Timer struct {
	duration  time.Duration
	frequency time.Duration
	onEnd     func(Clock)
	scheduler Scheduler
	log       logrus.FieldLogger

	mu           sync.Mutex
	remaining    time.Duration
	totalElapsed time.Duration
	handle       Handle
	generation   uint64
	closed       bool
}

// New creates an idle countdown. onEnd receives the total elapsed time each
// time the countdown reaches zero.
func New(duration time.Duration, onEnd func(Clock), opts ...Option) (*Timer, error) {
	t := &Timer{
		duration:  duration,
		frequency: DefaultFrequency,
		onEnd:     onEnd,
		remaining: duration,
	}
	for _, opt := range opts {
		opt(t)
	}

	if t.duration <= 0 {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidDuration, t.duration)
	}
	if t.frequency <= 0 {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidFrequency, t.frequency)
	}

	if t.scheduler == nil {
		t.scheduler = NewRealScheduler()
	}
	if t.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		t.log = l
	}
	if t.onEnd == nil {
		t.onEnd = func(Clock) {}
	}
	t.log = t.log.WithField("component", "countdown")

	return t, nil
}

// Start begins ticking. A completed countdown is fully reset first and Start
// reports true; a paused one resumes from where it stopped.
func (t *Timer) Start() (reset bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		t.log.Debug("start ignored, countdown closed")
		return false
	}
	if t.remaining == 0 {
		t.resetLocked(false)
		reset = true
	}
	t.startTickingLocked()
	t.log.WithField("remaining", ToClock(t.remaining).String()).Debug("countdown started")
	return reset
}

// Pause stops ticking and leaves the state untouched.
func (t *Timer) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopTickingLocked()
	t.log.WithField("remaining", ToClock(t.remaining).String()).Debug("countdown paused")
}

// Reset stops ticking and restores the full duration. The total elapsed time
// is cleared unless keepTotalElapsed is set.
func (t *Timer) Reset(keepTotalElapsed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.resetLocked(keepTotalElapsed)
	t.log.WithField("keep_total_elapsed", keepTotalElapsed).Debug("countdown reset")
}

// Lapse records a split: the countdown restarts from the full duration while
// the total elapsed time keeps accumulating.
func (t *Timer) Lapse() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		t.log.Debug("lapse ignored, countdown closed")
		return
	}
	t.resetLocked(true)
	t.startTickingLocked()
	t.log.WithField("total_elapsed", ToClock(t.totalElapsed).String()).Debug("countdown lapsed")
}

// Close cancels any live schedule. The countdown can no longer be started.
func (t *Timer) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopTickingLocked()
	t.closed = true
}

func (t *Timer) Remaining() Clock {
	return ToClock(t.Snapshot().Remaining)
}

func (t *Timer) TotalElapsed() Clock {
	return ToClock(t.Snapshot().TotalElapsed)
}

// Running reports whether a schedule is live.
func (t *Timer) Running() bool {
	return t.Snapshot().Running
}

func (t *Timer) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	return Snapshot{
		Remaining:    t.remaining,
		TotalElapsed: t.totalElapsed,
		Running:      t.handle != nil,
	}
}

func (t *Timer) Duration() time.Duration {
	return t.duration
}

func (t *Timer) Frequency() time.Duration {
	return t.frequency
}

// tick applies one step of the schedule identified by generation. The final
// step is clamped so remaining lands on zero even when duration is not a
// multiple of frequency.
func (t *Timer) tick(generation uint64) {
	t.mu.Lock()
	if t.handle == nil || generation != t.generation {
		t.mu.Unlock()
		return
	}

	step := min(t.frequency, t.remaining)
	t.remaining -= step
	t.totalElapsed += step
	if t.remaining > 0 {
		t.mu.Unlock()
		return
	}

	t.stopTickingLocked()
	elapsed := ToClock(t.totalElapsed)
	t.mu.Unlock()

	t.log.WithField("total_elapsed", elapsed.String()).Info("countdown completed")
	t.onEnd(elapsed)
}

func (t *Timer) resetLocked(keepTotalElapsed bool) {
	t.stopTickingLocked()
	t.remaining = t.duration
	if !keepTotalElapsed {
		t.totalElapsed = 0
	}
}

func (t *Timer) startTickingLocked() {
	t.stopTickingLocked()
	t.generation++
	generation := t.generation
	t.handle = t.scheduler.ScheduleRepeating(t.frequency, func() {
		t.tick(generation)
	})
}

func (t *Timer) stopTickingLocked() {
	if t.handle == nil {
		return
	}
	t.handle.Cancel()
	t.handle = nil
}
