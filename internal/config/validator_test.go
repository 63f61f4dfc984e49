package config

import "testing"

func TestValidateConfigRejectsNoUpstreams(t *testing.T) {
	cfg := &Config{Blocklist: BlocklistConfig{Path: "/tmp/b.json"}, Control: ControlConfig{Port: 100}}
	if err := ValidateConfig(cfg); err == nil {
		t.Fatal("expected error for missing upstreams")
	}
}

func TestValidateConfigRejectsInvalidControlPort(t *testing.T) {
	cfg := &Config{
		DNS:       DNSConfig{Upstreams: []string{"1.1.1.1"}},
		Blocklist: BlocklistConfig{Path: "/tmp/b.json"},
		Control:   ControlConfig{Port: 0},
	}
	if err := ValidateConfig(cfg); err == nil {
		t.Fatal("expected error for invalid control port")
	}
}

func TestValidateConfigAcceptsMinimalValidConfig(t *testing.T) {
	cfg := &Config{
		DNS:       DNSConfig{Upstreams: []string{"1.1.1.1"}},
		Blocklist: BlocklistConfig{Path: "/tmp/b.json"},
		Control:   ControlConfig{Port: 7353},
	}
	if err := ValidateConfig(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
