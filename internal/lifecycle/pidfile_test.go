package lifecycle

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteAndReadPIDFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sinkguard.pid")

	if err := writePIDFile(path); err != nil {
		t.Fatalf("write pid file: %v", err)
	}

	rec, err := readPIDFile(path)
	if err != nil {
		t.Fatalf("read pid file: %v", err)
	}
	if rec.PID != os.Getpid() {
		t.Errorf("expected pid %d, got %d", os.Getpid(), rec.PID)
	}
}

func TestAcquireSingleInstanceSucceedsWithNoExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sinkguard.pid")

	if err := acquireSingleInstance(path); err != nil {
		t.Fatalf("expected no error with no pre-existing pid file, got %v", err)
	}
}

func TestAcquireSingleInstanceRefusesWhenProcessIsAlive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sinkguard.pid")

	if err := writePIDFile(path); err != nil {
		t.Fatalf("write pid file: %v", err)
	}

	err := acquireSingleInstance(path)
	if err == nil {
		t.Fatal("expected AnotherInstanceError when the recorded pid is our own live process")
	}
	if _, ok := err.(*AnotherInstanceError); !ok {
		t.Fatalf("expected *AnotherInstanceError, got %T: %v", err, err)
	}
}

func TestAcquireSingleInstanceRemovesStaleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sinkguard.pid")

	stale := pidRecord{PID: unusedHighPID(), Platform: "linux"}
	writeRawPIDFile(t, path, stale)

	if err := acquireSingleInstance(path); err != nil {
		t.Fatalf("expected stale pid file to be cleaned up silently, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected stale pid file to be removed")
	}
}

// unusedHighPID returns a PID unlikely to be assigned to any live
// process in a test sandbox.
func unusedHighPID() int { return 1 << 30 }

func writeRawPIDFile(t *testing.T, path string, rec pidRecord) {
	t.Helper()
	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
}
