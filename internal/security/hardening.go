// Package security applies process-level hardening before and after
// the daemon binds its privileged listening port.
package security

import (
	"fmt"
	"os"
	"os/user"

	"github.com/sirupsen/logrus"
)

// HardenProcess implements security hardening measures for the
// sinkguard process.
type HardenProcess struct {
	dropPrivileges       bool
	fileDescriptorLimit  uint64
}

// NewHardening creates a new process hardening configuration.
func NewHardening() *HardenProcess {
	return &HardenProcess{
		dropPrivileges:      true,
		fileDescriptorLimit: 1024,
	}
}

// ApplyHardening applies security hardening measures to the current
// process: resource limits, core dump suppression, a secure umask,
// and clearing any sensitive environment variables. The concrete
// syscalls are platform-specific; see hardening_unix.go/hardening_windows.go.
func (h *HardenProcess) ApplyHardening() error {
	if err := h.setResourceLimits(); err != nil {
		logrus.WithError(err).Warn("failed to set resource limits")
	}
	if err := h.disableCoreDumps(); err != nil {
		logrus.WithError(err).Warn("failed to disable core dumps")
	}
	h.clearSensitiveEnv()
	if err := h.setSecureUmask(); err != nil {
		logrus.WithError(err).Warn("failed to set secure umask")
	}
	return nil
}

// DropPrivilegesAfterBind drops root privileges once the process has
// bound port 53, so a later compromise of the DNS-handling code runs
// unprivileged.
func (h *HardenProcess) DropPrivilegesAfterBind() error {
	if !h.dropPrivileges {
		return nil
	}

	currentUser, err := user.Current()
	if err != nil {
		return fmt.Errorf("get current user: %w", err)
	}
	if currentUser.Uid != "0" {
		logrus.Debug("already running as non-root, nothing to drop")
		return nil
	}

	targetUser, err := h.findUnprivilegedUser()
	if err != nil {
		return fmt.Errorf("find unprivileged user: %w", err)
	}

	logrus.WithFields(logrus.Fields{"user": targetUser.Username, "uid": targetUser.Uid}).
		Info("dropping privileges")

	return dropPrivilegesTo(targetUser)
}

// findUnprivilegedUser finds a suitable unprivileged user to drop to.
func (h *HardenProcess) findUnprivilegedUser() (*user.User, error) {
	for _, username := range []string{"_sinkguard", "nobody", "daemon"} {
		if u, err := user.Lookup(username); err == nil {
			return u, nil
		}
	}
	return nil, fmt.Errorf("no suitable unprivileged user found")
}

// clearSensitiveEnv clears environment variables that could leak a
// remote log sink credential or similar into a child process or crash dump.
func (h *HardenProcess) clearSensitiveEnv() {
	for _, v := range []string{"SINKGUARD_REMOTE_SINK_TOKEN"} {
		os.Unsetenv(v)
	}
}
