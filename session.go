package main

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"hkcountdown/internal/countdown"
	"hkcountdown/internal/metrics"
	"hkcountdown/internal/requirements"
)

const (
	actionStart = "start"
	actionPause = "pause"
	actionReset = "reset"
	actionLapse = "lapse"
)

var (
	errUnknownAction = errors.New("unknown action")
	errSessionClosed = errors.New("countdown is shut down")
)

// Lap is one recorded split.
type Lap struct {
	ID           uuid.UUID `json:"id"`
	Number       int       `json:"number"`
	Split        string    `json:"split"`
	TotalElapsed string    `json:"total_elapsed"`
	At           time.Time `json:"at"`
}

// timerState is the JSON view of the session served on GET /timer.
type timerState struct {
	Remaining      string `json:"remaining"`
	RemainingMs    int64  `json:"remaining_ms"`
	TotalElapsed   string `json:"total_elapsed"`
	TotalElapsedMs int64  `json:"total_elapsed_ms"`
	DurationMs     int64  `json:"duration_ms"`
	FrequencyMs    int64  `json:"frequency_ms"`
	Running        bool   `json:"running"`
	Laps           []Lap  `json:"laps"`
}

// session owns the live countdown. Reconfiguring replaces the countdown and
// disposes the previous one.
type session struct {
	log       logrus.FieldLogger
	scheduler countdown.Scheduler
	// onEnd and onStart run under the session lock and must not call back
	// into the session. onStart runs whenever a run begins.
	onEnd   func(countdown.Clock)
	onStart func()

	mu        sync.RWMutex
	timer     *countdown.Timer
	laps      []Lap
	lastSplit time.Duration
	closed    bool
}

func newSession(log logrus.FieldLogger, scheduler countdown.Scheduler, onEnd func(countdown.Clock)) *session {
	return &session{
		log:       log.WithField("component", "session"),
		scheduler: scheduler,
		onEnd:     onEnd,
	}
}

// Configure installs a new idle countdown of the given duration.
func (s *session) Configure(duration, frequency time.Duration) error {
	timer, err := countdown.New(duration, s.completed,
		countdown.WithFrequency(frequency),
		countdown.WithScheduler(s.scheduler),
		countdown.WithLogger(s.log),
	)
	if err != nil {
		return fmt.Errorf("creating countdown: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		timer.Close()
		return errSessionClosed
	}
	if s.timer != nil {
		s.timer.Close()
	}
	s.timer = timer
	s.clearLapsLocked()

	s.log.WithFields(logrus.Fields{
		"duration":  duration,
		"frequency": frequency,
	}).Info("countdown configured")
	return nil
}

// Apply runs one countdown operation.
func (s *session) Apply(action string, keepTotalElapsed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.applyLocked(action, keepTotalElapsed)
}

func (s *session) applyLocked(action string, keepTotalElapsed bool) error {
	if s.closed || s.timer == nil {
		return errSessionClosed
	}

	switch action {
	case actionStart:
		// Starting a completed countdown begins a fresh run.
		if s.timer.Start() {
			s.clearLapsLocked()
		}
		s.started()
	case actionPause:
		s.timer.Pause()
	case actionReset:
		s.timer.Reset(keepTotalElapsed)
		if !keepTotalElapsed {
			s.clearLapsLocked()
		}
	case actionLapse:
		s.recordLapLocked()
		s.timer.Lapse()
		s.started()
	default:
		return fmt.Errorf("%w %q", errUnknownAction, action)
	}

	s.log.WithField("action", action).Debug("countdown command applied")
	return nil
}

func (s *session) State() timerState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.timer == nil {
		return timerState{Laps: []Lap{}}
	}

	snap := s.timer.Snapshot()
	return timerState{
		Remaining:      countdown.ToClock(snap.Remaining).String(),
		RemainingMs:    snap.Remaining.Milliseconds(),
		TotalElapsed:   countdown.ToClock(snap.TotalElapsed).String(),
		TotalElapsedMs: snap.TotalElapsed.Milliseconds(),
		DurationMs:     s.timer.Duration().Milliseconds(),
		FrequencyMs:    s.timer.Frequency().Milliseconds(),
		Running:        snap.Running,
		Laps:           append([]Lap{}, s.laps...),
	}
}

// Remaining is the live remaining time, zero when no countdown is configured.
func (s *session) Remaining() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.timer == nil {
		return 0
	}
	return s.timer.Snapshot().Remaining
}

// Status reports the countdown as a requirement for the health endpoint.
func (s *session) Status() requirements.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch {
	case s.closed:
		return requirements.Status{Error: errSessionClosed.Error()}
	case s.timer == nil:
		return requirements.Status{Error: "countdown not configured"}
	}
	return requirements.Status{}
}

func (s *session) Name() string {
	return "countdown"
}

// Close disposes the live countdown.
func (s *session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Close()
	}
	s.closed = true
}

// completed runs on the tick goroutine after the countdown lock is released.
// A command may land before it takes s.mu; the completion is then stale and
// onEnd is skipped so it cannot undo the onStart of the newer run.
func (s *session) completed(elapsed countdown.Clock) {
	metrics.Completions.Inc()
	metrics.RunDuration.Observe(elapsed.Duration().Seconds())

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.timer == nil {
		return
	}
	if snap := s.timer.Snapshot(); snap.Running || snap.Remaining != 0 {
		s.log.WithField("total_elapsed", elapsed.String()).Debug("stale completion dropped")
		return
	}
	if s.onEnd != nil {
		s.onEnd(elapsed)
	}
}

func (s *session) started() {
	if s.onStart != nil {
		s.onStart()
	}
}

func (s *session) recordLapLocked() {
	total := s.timer.Snapshot().TotalElapsed
	lap := Lap{
		ID:           uuid.New(),
		Number:       len(s.laps) + 1,
		Split:        countdown.ToClock(total - s.lastSplit).String(),
		TotalElapsed: countdown.ToClock(total).String(),
		At:           time.Now(),
	}
	s.laps = append(s.laps, lap)
	s.lastSplit = total
	metrics.Laps.Inc()

	s.log.WithFields(logrus.Fields{
		"lap":   lap.Number,
		"split": lap.Split,
	}).Info("lap recorded")
}

func (s *session) clearLapsLocked() {
	s.laps = nil
	s.lastSplit = 0
}
