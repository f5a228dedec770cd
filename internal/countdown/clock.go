package countdown

import (
	"fmt"
	"time"
)

// Clock is a duration broken down into wall-clock parts.
type Clock struct {
	Hours        int `json:"hours"`
	Minutes      int `json:"minutes"`
	Seconds      int `json:"seconds"`
	Milliseconds int `json:"milliseconds"`
}

// ToClock decomposes d. Negative durations map to the zero Clock.
func ToClock(d time.Duration) Clock {
	if d < 0 {
		d = 0
	}
	return Clock{
		Hours:        int(d / time.Hour),
		Minutes:      int(d % time.Hour / time.Minute),
		Seconds:      int(d % time.Minute / time.Second),
		Milliseconds: int(d % time.Second / time.Millisecond),
	}
}

// Duration converts the clock back to a duration, truncated to milliseconds.
func (c Clock) Duration() time.Duration {
	return time.Duration(c.Hours)*time.Hour +
		time.Duration(c.Minutes)*time.Minute +
		time.Duration(c.Seconds)*time.Second +
		time.Duration(c.Milliseconds)*time.Millisecond
}

// String formats the clock as MM:SS, or HH:MM:SS once it reaches an hour.
func (c Clock) String() string {
	if c.Hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", c.Hours, c.Minutes, c.Seconds)
	}
	return fmt.Sprintf("%02d:%02d", c.Minutes, c.Seconds)
}
