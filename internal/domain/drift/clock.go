package drift

import "time"

// Clock supplies threshold timestamps in milliseconds. Implementations must
// be non-decreasing; the controller treats a backwards step as no elapsed
// time.
type Clock interface {
	NowMS() int64
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() int64

// NowMS implements Clock.
func (f ClockFunc) NowMS() int64 { return f() }

// MonotonicClock counts milliseconds since its creation on Go's monotonic
// clock, so wall-clock adjustments on the host do not move it.
type MonotonicClock struct {
	start time.Time
}

// NewMonotonicClock starts a clock at zero.
func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{start: time.Now()}
}

// NowMS implements Clock.
func (c *MonotonicClock) NowMS() int64 {
	return time.Since(c.start).Milliseconds()
}

// ManualClock is a Clock moved explicitly, for replays and tests.
type ManualClock struct {
	now int64
}

// NewManualClock creates a ManualClock at now.
func NewManualClock(now int64) *ManualClock { return &ManualClock{now: now} }

// NowMS implements Clock.
func (c *ManualClock) NowMS() int64 { return c.now }

// Set moves the clock to now. Backward moves are ignored.
func (c *ManualClock) Set(now int64) {
	if now > c.now {
		c.now = now
	}
}

// Advance moves the clock forward by d milliseconds.
func (c *ManualClock) Advance(d int64) {
	if d > 0 {
		c.now += d
	}
}
