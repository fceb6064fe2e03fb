//go:build linux

package clock

import (
	"syscall"
	"time"
	"unsafe"
)

// https://github.com/torvalds/linux/blob/ffd294d3/include/uapi/linux/time.h#L49-L50
const (
	clockRealtime  = 0
	clockMonotonic = 1
)

func clockGettime(id uintptr) syscall.Timespec {
	var ts syscall.Timespec
	syscall.Syscall(syscall.SYS_CLOCK_GETTIME, id, uintptr(unsafe.Pointer(&ts)), 0)
	return ts
}

func monotonicTicks() uint64 {
	ts := clockGettime(clockMonotonic)
	return uint64(ts.Nano())
}

func bootTime() (time.Time, error) {
	monotonic := clockGettime(clockMonotonic)
	wallTime := clockGettime(clockRealtime)
	nanos := wallTime.Nsec - monotonic.Nsec
	secs := wallTime.Sec - monotonic.Sec
	return time.Unix(secs, nanos), nil
}
