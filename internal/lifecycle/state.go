package lifecycle

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

const stateVersion = "1"

// DaemonState is the persisted intent of the daemon: whether blocking
// should be active across a restart.
type DaemonState struct {
	IsBlocking bool      `json:"isBlocking"`
	Timestamp  time.Time `json:"timestamp"`
	Version    string    `json:"version"`
}

func loadState(path string) (*DaemonState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s DaemonState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// saveState writes state to path via write-to-temp-then-rename so a
// crash mid-write never corrupts the persisted file.
func saveState(path string, isBlocking bool) error {
	s := DaemonState{IsBlocking: isBlocking, Timestamp: time.Now(), Version: stateVersion}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "state-*.tmp")
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
