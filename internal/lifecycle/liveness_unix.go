//go:build unix

package lifecycle

import "syscall"

// processAlive reports whether pid refers to a live process, using
// the standard signal-0 trick: sending signal 0 performs all error
// checking but delivers nothing.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	return err != syscall.ESRCH
}
