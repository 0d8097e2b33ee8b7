package ratelimit

import "time"

// Window is a fixed-width counting window. Counters for different
// windows are fully independent; each is keyed by its own truncation
// boundary.
type Window string

const (
	WindowMinute Window = "minute"
	WindowHour   Window = "hour"
	WindowDay    Window = "day"
)

// Windows lists all windows in evaluation order, narrowest first.
var Windows = []Window{WindowMinute, WindowHour, WindowDay}

// Duration returns the window width.
func (w Window) Duration() time.Duration {
	switch w {
	case WindowMinute:
		return time.Minute
	case WindowHour:
		return time.Hour
	case WindowDay:
		return 24 * time.Hour
	}
	return time.Minute
}

// Start truncates t to the window boundary containing it.
func (w Window) Start(t time.Time) time.Time {
	return t.UTC().Truncate(w.Duration())
}

// NextReset returns the start of the window after the one containing t.
func (w Window) NextReset(t time.Time) time.Time {
	return w.Start(t).Add(w.Duration())
}
