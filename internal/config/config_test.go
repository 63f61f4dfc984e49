package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigErrorsOnExplicitMissingPath(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err == nil {
		t.Fatalf("expected error for explicit missing path, got config %+v", cfg)
	}
}

func TestLoadConfigAppliesDefaultsWithEmptyPathAndNoFilesPresent(t *testing.T) {
	dir := t.TempDir()
	cwd, _ := os.Getwd()
	defer os.Chdir(cwd)
	os.Chdir(dir)

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Agent.LogLevel != "info" {
		t.Errorf("expected default log level info, got %s", cfg.Agent.LogLevel)
	}
	if len(cfg.DNS.Upstreams) != 2 {
		t.Errorf("expected 2 default upstreams, got %v", cfg.DNS.Upstreams)
	}
	if cfg.Control.Port != 7353 {
		t.Errorf("expected default control port 7353, got %d", cfg.Control.Port)
	}
}

func TestLoadConfigOverridesDefaultsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "dns:\n  upstreams:\n    - 9.9.9.9\n  cacheSize: 500\ncontrol:\n  port: 9000\n"
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if len(cfg.DNS.Upstreams) != 1 || cfg.DNS.Upstreams[0] != "9.9.9.9" {
		t.Errorf("upstreams not overridden: %v", cfg.DNS.Upstreams)
	}
	if cfg.DNS.CacheSize != 500 {
		t.Errorf("cache size not overridden: %d", cfg.DNS.CacheSize)
	}
	if cfg.Control.Port != 9000 {
		t.Errorf("control port not overridden: %d", cfg.Control.Port)
	}
	if cfg.Blocklist.ReloadInterval != time.Hour {
		t.Errorf("expected untouched default reload interval, got %v", cfg.Blocklist.ReloadInterval)
	}
}

func TestLoadConfigEnvOverridesLogLevel(t *testing.T) {
	os.Setenv("SINKGUARD_LOG_LEVEL", "debug")
	defer os.Unsetenv("SINKGUARD_LOG_LEVEL")

	dir := t.TempDir()
	cwd, _ := os.Getwd()
	defer os.Chdir(cwd)
	os.Chdir(dir)

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Agent.LogLevel != "debug" || cfg.Logging.Level != "debug" {
		t.Errorf("expected env override to debug, got agent=%s logging=%s", cfg.Agent.LogLevel, cfg.Logging.Level)
	}
}
