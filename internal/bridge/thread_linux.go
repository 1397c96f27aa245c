//go:build linux

package bridge

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// setThreadName names the calling OS thread. Linux truncates names to 15
// bytes.
func setThreadName(name string) error {
	if name == "" {
		return nil
	}
	if len(name) > 15 {
		name = name[:15]
	}
	p, err := unix.BytePtrFromString(name)
	if err != nil {
		return err
	}
	return unix.Prctl(unix.PR_SET_NAME, uintptr(unsafe.Pointer(p)), 0, 0, 0)
}
