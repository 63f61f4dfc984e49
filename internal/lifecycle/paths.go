package lifecycle

import (
	"fmt"
	"os"
	"path/filepath"
)

// runDir returns the directory sinkguard uses for its PID file, state
// file, and DNS backup file, creating it if necessary.
func runDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	dir := filepath.Join(homeDir, ".sinkguard", "run")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("create run directory: %w", err)
	}
	return dir, nil
}

func defaultPIDPath() string {
	dir, err := runDir()
	if err != nil {
		return ".sinkguard.pid"
	}
	return filepath.Join(dir, "sinkguard.pid")
}

func defaultStatePath() string {
	dir, err := runDir()
	if err != nil {
		return ".sinkguard-state.json"
	}
	return filepath.Join(dir, "state.json")
}

func defaultBackupPath() string {
	dir, err := runDir()
	if err != nil {
		return ".sinkguard-dns-backup.json"
	}
	return filepath.Join(dir, "dns-backup.json")
}

// DefaultBackupPath exposes the DNS backup file location used by a
// running daemon, for CLI one-shot operations (e.g. --force-restore-dns)
// that need to act on the same backup outside of a Manager instance.
func DefaultBackupPath() string { return defaultBackupPath() }

func defaultAuditDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./audit"
	}
	return filepath.Join(homeDir, ".sinkguard", "audit")
}
