//go:build linux

package threads

import "syscall"

// CurrentOSID returns the kernel id of the calling OS thread. The caller
// should be locked to its thread for the value to stay meaningful.
func CurrentOSID() uint64 {
	return uint64(syscall.Gettid())
}
