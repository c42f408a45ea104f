package session

import "time"

// Clock is a monotonic millisecond counter.
//
// The counter is allowed to wrap around at 2^32. Callers compare readings
// with elapsed, never with < or >.
type Clock interface {
	Millis() uint32
}

// SystemClock reports milliseconds since it was created, truncated to 32 bits.
// It wraps roughly every 49.7 days.
type SystemClock struct {
	start time.Time
}

// NewSystemClock returns a clock that starts counting now.
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

// Millis implements Clock. time.Since uses the monotonic reading, so wall
// clock adjustments do not affect it.
func (c *SystemClock) Millis() uint32 {
	return uint32(time.Since(c.start).Milliseconds()) //nolint:gosec // truncation is the intended wrap
}

// ClockFunc adapts a plain function to Clock.
type ClockFunc func() uint32

// Millis implements Clock.
func (f ClockFunc) Millis() uint32 {
	return f()
}

// elapsed returns now - since in modular arithmetic.
func elapsed(now, since uint32) uint32 {
	return now - since
}
