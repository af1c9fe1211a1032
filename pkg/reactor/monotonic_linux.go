//go:build linux

package reactor

import "golang.org/x/sys/unix"

// monotonic reads CLOCK_MONOTONIC, the clock the controller time
// estimates are made against.
func monotonic() float64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return fallbackMonotonic()
	}
	return float64(ts.Nano()) / 1e9
}
