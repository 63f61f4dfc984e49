//go:build unix

package security

import (
	"fmt"
	"os/user"
	"strconv"
	"syscall"
)

// setResourceLimits lowers the open-file descriptor limit so a
// resource-exhaustion bug in the proxy or blocklist reload path can't
// starve the rest of the system.
func (h *HardenProcess) setResourceLimits() error {
	limit := &syscall.Rlimit{Cur: h.fileDescriptorLimit, Max: h.fileDescriptorLimit}
	return syscall.Setrlimit(syscall.RLIMIT_NOFILE, limit)
}

// disableCoreDumps prevents a crash from writing process memory
// (which may contain in-flight DNS query data) to disk.
func (h *HardenProcess) disableCoreDumps() error {
	limit := &syscall.Rlimit{Cur: 0, Max: 0}
	return syscall.Setrlimit(syscall.RLIMIT_CORE, limit)
}

// setSecureUmask ensures files the daemon creates (backups, audit
// logs, PID file) are not group/world writable by default.
func (h *HardenProcess) setSecureUmask() error {
	syscall.Umask(0077)
	return nil
}

// dropPrivilegesTo permanently switches the process to the given
// unprivileged user. Group is dropped before user, since setuid
// removes the ability to change the group afterward.
func dropPrivilegesTo(u *user.User) error {
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return fmt.Errorf("parse uid %q: %w", u.Uid, err)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return fmt.Errorf("parse gid %q: %w", u.Gid, err)
	}
	if err := syscall.Setgid(gid); err != nil {
		return fmt.Errorf("setgid: %w", err)
	}
	if err := syscall.Setuid(uid); err != nil {
		return fmt.Errorf("setuid: %w", err)
	}
	return nil
}
