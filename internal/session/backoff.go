package session

import (
	"math"
	"time"
)

// Default reconnect delays in milliseconds.
const (
	DefaultInitialDelay uint32 = 1000
	DefaultMaxDelay     uint32 = 32000
)

// MaxBackoffDelay is the longest delay the millisecond clock can measure.
const MaxBackoffDelay = time.Duration(math.MaxUint32) * time.Millisecond

// Backoff is a doubling delay bounded by [initial, max].
//
// The zero value is not usable; use NewBackoff or DefaultBackoff.
type Backoff struct {
	initial uint32
	max     uint32
	current uint32
}

// DefaultBackoff returns the 1s..32s schedule.
func DefaultBackoff() Backoff {
	return Backoff{
		initial: DefaultInitialDelay,
		max:     DefaultMaxDelay,
		current: DefaultInitialDelay,
	}
}

// NewBackoff returns a Backoff starting at initial and capped at max.
func NewBackoff(initial, max uint32) (Backoff, error) {
	if initial == 0 || max < initial {
		return Backoff{}, ErrInvalidBackoff
	}
	return Backoff{initial: initial, max: max, current: initial}, nil
}

// Current returns the delay to wait before the next attempt.
func (b *Backoff) Current() uint32 {
	return b.current
}

// Initial returns the lower bound.
func (b *Backoff) Initial() uint32 {
	return b.initial
}

// Max returns the upper bound.
func (b *Backoff) Max() uint32 {
	return b.max
}

// Advance doubles the delay, saturating at max.
func (b *Backoff) Advance() {
	if b.current >= b.max {
		return
	}
	next := uint64(b.current) * 2
	if next > uint64(b.max) {
		next = uint64(b.max)
	}
	b.current = uint32(next)
}

// Reset returns the delay to initial.
func (b *Backoff) Reset() {
	b.current = b.initial
}
