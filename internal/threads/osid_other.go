//go:build !linux

package threads

// CurrentOSID returns 0 on platforms without a cheap thread id syscall.
func CurrentOSID() uint64 {
	return 0
}
