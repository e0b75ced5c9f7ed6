package host

import "testing"

func TestWallClockNowMicrosAdvancesMonotonically(t *testing.T) {
	clock := NewWallClock()

	first := clock.NowMicros()
	clock.Sleep(1000)
	second := clock.NowMicros()

	if second <= first {
		t.Fatalf("expected NowMicros to advance after Sleep, got %d then %d", first, second)
	}
}

func TestWallClockSleepIgnoresNonPositive(t *testing.T) {
	clock := NewWallClock()
	clock.Sleep(0)
	clock.Sleep(-100)
}
