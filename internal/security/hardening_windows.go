//go:build windows

package security

import (
	"os/user"

	"github.com/sirupsen/logrus"
)

// setResourceLimits is a no-op on Windows; file-descriptor limits are
// not a syscall-level concept there.
func (h *HardenProcess) setResourceLimits() error {
	logrus.Debug("resource limits not applicable on windows")
	return nil
}

// disableCoreDumps is a no-op on Windows; crash dump collection is
// controlled by Windows Error Reporting policy, not per-process rlimits.
func (h *HardenProcess) disableCoreDumps() error {
	return nil
}

// setSecureUmask is a no-op on Windows, which has no umask concept;
// file permissions are governed by ACLs instead.
func (h *HardenProcess) setSecureUmask() error {
	return nil
}

// dropPrivilegesTo is a no-op on Windows. The daemon is expected to
// run under a dedicated service account configured at install time
// rather than dropping privileges mid-process.
func dropPrivilegesTo(u *user.User) error {
	logrus.Debug("privilege drop not applicable on windows, run as a dedicated service account instead")
	return nil
}
