// Package clock provides the tick source used for checkpoint timestamps.
// Ticks are nanoseconds of the monotonic clock, which on the supported
// platforms counts from boot, so BootTime turns them back into wall time.
package clock

import (
	"errors"
	"time"
)

// ErrNotImplemented is returned when the boot time is not implemented for the
// current platform.
var ErrNotImplemented = errors.New("not implemented")

// Clock returns the current tick count.
type Clock interface {
	Ticks() uint64
}

// Func adapts a function to a Clock.
type Func func() uint64

func (f Func) Ticks() uint64 {
	return f()
}

// Monotonic is the system monotonic clock.
var Monotonic Clock = Func(monotonicTicks)

// BootTime returns the approximate boot time of the system. Adding a tick
// count of the Monotonic clock to it gives an approximate wall clock time.
func BootTime() (time.Time, error) {
	return bootTime()
}

// WallTime converts ticks of the Monotonic clock to wall clock time.
func WallTime(ticks uint64) (time.Time, error) {
	boot, err := BootTime()
	if err != nil {
		return time.Time{}, err
	}
	return boot.Add(time.Duration(ticks)), nil
}
