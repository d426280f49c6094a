package ratelimit

import (
	"math"
	"sync"
	"time"
)

// Limiter gates frame-available events on the time since the last accepted one
type Limiter struct {
	mu           sync.Mutex
	lastAccepted time.Time
}

// New creates a new limiter that accepts its first event
func New() *Limiter {
	return &Limiter{}
}

// ShouldProcess reports whether an event at now should be processed.
// It accepts, and remembers now, only when more than period has elapsed
// since the last accepted event. A non-positive period accepts everything.
// A rejection leaves the limiter unchanged.
func (l *Limiter) ShouldProcess(now time.Time, period time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if period > 0 && !l.lastAccepted.IsZero() && now.Sub(l.lastAccepted) <= period {
		return false
	}

	l.lastAccepted = now
	return true
}

// LastAccepted returns the time of the last accepted event (zero if none)
func (l *Limiter) LastAccepted() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastAccepted
}

// Reset forgets the last accepted event
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastAccepted = time.Time{}
}

// FramePeriod converts a frame rate into the minimum interval between
// processed frames, truncated to whole milliseconds. Zero, negative, NaN and
// infinite rates mean unbounded and yield 0.
func FramePeriod(frameRate float64) time.Duration {
	if frameRate <= 0 || math.IsInf(frameRate, 0) || math.IsNaN(frameRate) {
		return 0
	}
	return time.Duration(1000/frameRate) * time.Millisecond
}
