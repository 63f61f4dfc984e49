package lifecycle

import (
	"path/filepath"
	"testing"
)

func TestSaveAndLoadStateRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	if err := saveState(path, true); err != nil {
		t.Fatalf("save state: %v", err)
	}

	s, err := loadState(path)
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if !s.IsBlocking {
		t.Error("expected IsBlocking=true")
	}
	if s.Version != stateVersion {
		t.Errorf("expected version %q, got %q", stateVersion, s.Version)
	}
}

func TestLoadStateErrorsWhenFileMissing(t *testing.T) {
	dir := t.TempDir()
	if _, err := loadState(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatal("expected error loading a nonexistent state file")
	}
}
