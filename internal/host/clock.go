package host

import "time"

// WallClock implements kernel.Clock (and the NowMicros-only clocks of the
// cpu and audio packages) against the real monotonic clock, measured
// from the moment it's constructed.
type WallClock struct {
	start time.Time
}

// NewWallClock starts a clock at the current instant.
func NewWallClock() *WallClock {
	return &WallClock{start: time.Now()}
}

// NowMicros returns microseconds elapsed since the clock was created.
func (c *WallClock) NowMicros() int64 {
	return time.Since(c.start).Microseconds()
}

// Sleep blocks for the given number of microseconds.
func (c *WallClock) Sleep(micros int64) {
	if micros <= 0 {
		return
	}
	time.Sleep(time.Duration(micros) * time.Microsecond)
}
