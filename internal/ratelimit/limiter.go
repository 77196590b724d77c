package ratelimit

import (
	"time"
)

// FixedWindow admits at most a fixed number of sends per window. The window
// restarts once more than its duration has passed since it began, so bursts
// at a window boundary are possible and match how the server counts.
//
// FixedWindow is not safe for concurrent use. Only the queue's pump calls it.
type FixedWindow struct {
	allowed     int
	window      time.Duration
	windowStart time.Time
	count       int
	nowFunc     func() time.Time
}

// NewFixedWindow creates a limiter admitting allowed sends per window.
// An allowed count of zero (or less) throttles every send.
func NewFixedWindow(allowed int, window time.Duration) *FixedWindow {
	return newFixedWindowWithClock(allowed, window, time.Now)
}

func newFixedWindowWithClock(allowed int, window time.Duration, now func() time.Time) *FixedWindow {
	return &FixedWindow{
		allowed:     allowed,
		window:      window,
		windowStart: now(),
		nowFunc:     now,
	}
}

// ShouldThrottle is called once per attempted send. It returns true when the
// send must not happen; otherwise it counts the send and returns false.
func (w *FixedWindow) ShouldThrottle() bool {
	now := w.nowFunc()
	if now.Sub(w.windowStart) > w.window {
		w.windowStart = now
		w.count = 0
	}

	if w.count >= w.allowed {
		return true
	}

	w.count++
	return false
}

// Allowed returns the number of sends admitted per window.
func (w *FixedWindow) Allowed() int {
	return w.allowed
}

// Window returns the window duration.
func (w *FixedWindow) Window() time.Duration {
	return w.window
}

// Reset starts a fresh window now.
func (w *FixedWindow) Reset() {
	w.windowStart = w.nowFunc()
	w.count = 0
}
