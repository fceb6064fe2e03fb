//go:build !linux && !darwin

package clock

import "time"

var processStart = time.Now()

// monotonicTicks counts from process start where the boot clock is not
// available.
func monotonicTicks() uint64 {
	return uint64(time.Since(processStart))
}

func bootTime() (time.Time, error) {
	return time.Time{}, ErrNotImplemented
}
