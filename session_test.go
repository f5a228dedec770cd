package main

import (
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hkcountdown/internal/countdown"
	"hkcountdown/internal/countdown/countdowntest"
)

// completions records onEnd calls made from the session
type completions struct {
	mu    sync.Mutex
	calls []countdown.Clock
}

func (c *completions) record(clock countdown.Clock) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, clock)
}

func (c *completions) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func newTestSession(t *testing.T, duration time.Duration) (*session, *countdowntest.Scheduler, *completions) {
	t.Helper()

	log, _ := test.NewNullLogger()
	sched := countdowntest.New()
	done := &completions{}
	s := newSession(log, sched, done.record)
	require.NoError(t, s.Configure(duration, time.Second))
	t.Cleanup(s.Close)

	return s, sched, done
}

func TestSessionRunToCompletion(t *testing.T) {
	s, sched, done := newTestSession(t, 3*time.Second)

	require.NoError(t, s.Apply(actionStart, false))
	sched.Advance(time.Second)

	state := s.State()
	assert.Equal(t, "00:02", state.Remaining)
	assert.Equal(t, int64(2000), state.RemainingMs)
	assert.Equal(t, int64(1000), state.TotalElapsedMs)
	assert.Equal(t, int64(3000), state.DurationMs)
	assert.Equal(t, int64(1000), state.FrequencyMs)
	assert.True(t, state.Running)

	sched.Advance(2 * time.Second)
	assert.Equal(t, 1, done.Len())
	assert.False(t, s.State().Running)
	assert.Zero(t, s.Remaining())
}

func TestSessionLaps(t *testing.T) {
	s, sched, _ := newTestSession(t, 5*time.Second)

	require.NoError(t, s.Apply(actionStart, false))
	sched.Advance(2 * time.Second)
	require.NoError(t, s.Apply(actionLapse, false))
	sched.Advance(time.Second)
	require.NoError(t, s.Apply(actionLapse, false))

	state := s.State()
	require.Len(t, state.Laps, 2)
	assert.Equal(t, 1, state.Laps[0].Number)
	assert.Equal(t, "00:02", state.Laps[0].Split)
	assert.Equal(t, "00:02", state.Laps[0].TotalElapsed)
	assert.Equal(t, 2, state.Laps[1].Number)
	assert.Equal(t, "00:01", state.Laps[1].Split)
	assert.Equal(t, "00:03", state.Laps[1].TotalElapsed)
	assert.NotEqual(t, state.Laps[0].ID, state.Laps[1].ID)
	assert.Equal(t, "00:05", state.Remaining)

	// Keeping the elapsed total keeps the laps.
	require.NoError(t, s.Apply(actionReset, true))
	assert.Len(t, s.State().Laps, 2)

	require.NoError(t, s.Apply(actionReset, false))
	assert.Empty(t, s.State().Laps)
}

func TestSessionReconfigureDisposesCountdown(t *testing.T) {
	s, sched, done := newTestSession(t, 2*time.Second)

	require.NoError(t, s.Apply(actionStart, false))
	require.NoError(t, s.Apply(actionLapse, false))
	require.Equal(t, 1, sched.Live())

	require.NoError(t, s.Configure(10*time.Second, 500*time.Millisecond))
	assert.Zero(t, sched.Live())
	assert.Empty(t, s.State().Laps)

	sched.Advance(5 * time.Second)
	assert.Zero(t, done.Len())
	assert.Equal(t, "00:10", s.State().Remaining)
	assert.Equal(t, int64(500), s.State().FrequencyMs)
}

func TestSessionConfigureInvalid(t *testing.T) {
	s, _, _ := newTestSession(t, 2*time.Second)

	err := s.Configure(0, time.Second)
	require.ErrorIs(t, err, countdown.ErrInvalidDuration)

	// The previous countdown is untouched.
	assert.Equal(t, int64(2000), s.State().DurationMs)
}

func TestSessionUnknownAction(t *testing.T) {
	s, _, _ := newTestSession(t, 2*time.Second)

	err := s.Apply("rewind", false)
	require.ErrorIs(t, err, errUnknownAction)
}

func TestSessionStatus(t *testing.T) {
	log, _ := test.NewNullLogger()
	s := newSession(log, countdowntest.New(), nil)
	assert.Equal(t, "countdown not configured", s.Status().Error)
	assert.Equal(t, timerState{Laps: []Lap{}}, s.State())

	require.NoError(t, s.Configure(time.Minute, time.Second))
	assert.Empty(t, s.Status().Error)

	s.Close()
	assert.Equal(t, errSessionClosed.Error(), s.Status().Error)
	require.ErrorIs(t, s.Apply(actionStart, false), errSessionClosed)
	require.ErrorIs(t, s.Configure(time.Minute, time.Second), errSessionClosed)
}

func TestSessionRestartClearsLaps(t *testing.T) {
	s, sched, done := newTestSession(t, 2*time.Second)

	require.NoError(t, s.Apply(actionStart, false))
	sched.Advance(time.Second)
	require.NoError(t, s.Apply(actionLapse, false))
	sched.Advance(2 * time.Second)
	require.Equal(t, 1, done.Len())
	require.Len(t, s.State().Laps, 1)

	require.NoError(t, s.Apply(actionStart, false))
	state := s.State()
	assert.Empty(t, state.Laps)
	assert.Zero(t, state.TotalElapsedMs)
}

func TestSessionOnStart(t *testing.T) {
	s, _, _ := newTestSession(t, time.Minute)
	starts := 0
	s.onStart = func() { starts++ }

	require.NoError(t, s.Apply(actionStart, false))
	require.NoError(t, s.Apply(actionPause, false))
	require.NoError(t, s.Apply(actionLapse, false))
	require.NoError(t, s.Apply(actionReset, false))

	assert.Equal(t, 2, starts)
}

// TestSessionDropsStaleCompletion starts a new run while the previous
// completion is still on its way; the switch must stay off.
func TestSessionDropsStaleCompletion(t *testing.T) {
	log, _ := test.NewNullLogger()
	sched := countdowntest.New()
	switchOn := false
	s := newSession(log, sched, func(countdown.Clock) { switchOn = true })
	s.onStart = func() { switchOn = false }
	require.NoError(t, s.Configure(time.Second, time.Second))
	t.Cleanup(s.Close)
	require.NoError(t, s.Apply(actionStart, false))

	// Hold the session so the final tick blocks before delivering onEnd.
	s.mu.Lock()
	ticked := make(chan struct{})
	go func() {
		defer close(ticked)
		sched.Advance(time.Second)
	}()
	require.Eventually(t, func() bool {
		snap := s.timer.Snapshot()
		return !snap.Running && snap.Remaining == 0
	}, time.Second, time.Millisecond)

	require.NoError(t, s.applyLocked(actionStart, false))
	s.mu.Unlock()
	<-ticked

	assert.False(t, switchOn)
	assert.True(t, s.State().Running)

	// The new run still switches on when it ends.
	sched.Advance(time.Second)
	assert.True(t, switchOn)
}

func TestSessionCompletionAfterReconfigureDropped(t *testing.T) {
	s, sched, done := newTestSession(t, time.Second)
	require.NoError(t, s.Apply(actionStart, false))
	sched.Advance(time.Second)
	require.Equal(t, 1, done.Len())

	// A completion arriving for a countdown that was since replaced is ignored.
	require.NoError(t, s.Configure(time.Minute, time.Second))
	s.completed(countdown.ToClock(time.Second))
	assert.Equal(t, 1, done.Len())
}
