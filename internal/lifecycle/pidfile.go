package lifecycle

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// pidRecord is the UTF-8 JSON contents of the PID file.
type pidRecord struct {
	PID       int       `json:"pid"`
	StartTime time.Time `json:"startTime"`
	Platform  string    `json:"platform"`
}

// acquireSingleInstance enforces single-instance startup: if the PID
// file names a live process, it refuses to start; if it names a dead
// one, the stale file is removed and startup proceeds.
func acquireSingleInstance(path string) error {
	existing, err := readPIDFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read pid file: %w", err)
	}

	if processAlive(existing.PID) {
		return &AnotherInstanceError{PID: existing.PID}
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale pid file: %w", err)
	}
	return nil
}

func readPIDFile(path string) (*pidRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec pidRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse pid file: %w", err)
	}
	return &rec, nil
}

// writePIDFile persists the current process's PID record, writing to
// a temp file and renaming so a crash mid-write never leaves a
// corrupt PID file behind.
func writePIDFile(path string) error {
	rec := pidRecord{
		PID:       os.Getpid(),
		StartTime: time.Now(),
		Platform:  runtime.GOOS,
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "pid-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

func removePIDFile(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return
	}
}
