// Package sysdns points the host's resolvers at the loopback proxy and
// guarantees that the pre-existing configuration can be restored on
// clean exit, crash, or user request.
package sysdns

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const dhcpSentinel = "dhcp"

// Backup is the persisted record of the pre-modification resolver
// state for one managed interface. OriginalDNS is exactly one of: an
// ordered list of IP literals, the sentinel "dhcp", or a verbatim copy
// of the platform's resolver configuration file.
type Backup struct {
	Timestamp time.Time `json:"timestamp"`
	Platform  string    `json:"platform"`
	Interface string    `json:"interface"`

	resolvers []string
	dhcp      bool
	rawConfig string
}

// NewResolverBackup records an explicit ordered resolver list.
func NewResolverBackup(platform, iface string, resolvers []string) *Backup {
	return &Backup{Timestamp: time.Now(), Platform: platform, Interface: iface, resolvers: resolvers}
}

// NewDHCPBackup records the "restore to automatic" sentinel.
func NewDHCPBackup(platform, iface string) *Backup {
	return &Backup{Timestamp: time.Now(), Platform: platform, Interface: iface, dhcp: true}
}

// NewRawConfigBackup records a verbatim copy of a resolver config file,
// used on Linux when neither resolvectl nor a clean resolver list is
// available.
func NewRawConfigBackup(platform, iface, raw string) *Backup {
	return &Backup{Timestamp: time.Now(), Platform: platform, Interface: iface, rawConfig: raw}
}

// IsDHCP reports whether this backup is the automatic-mode sentinel.
func (b *Backup) IsDHCP() bool { return b.dhcp }

// Resolvers returns the explicit resolver list, or nil if this backup
// is a DHCP sentinel or a raw config copy.
func (b *Backup) Resolvers() []string { return b.resolvers }

// RawConfig returns the verbatim file contents, or "" if this backup
// is a resolver list or a DHCP sentinel.
func (b *Backup) RawConfig() string { return b.rawConfig }

type backupWire struct {
	Timestamp   time.Time       `json:"timestamp"`
	Platform    string          `json:"platform"`
	Interface   string          `json:"interface"`
	OriginalDNS json.RawMessage `json:"originalDNS"`
}

// MarshalJSON implements the polymorphic originalDNS field described in
// the external-interfaces contract: string[] | "dhcp" | string.
func (b *Backup) MarshalJSON() ([]byte, error) {
	var raw json.RawMessage
	var err error
	switch {
	case b.dhcp:
		raw, err = json.Marshal(dhcpSentinel)
	case b.rawConfig != "":
		raw, err = json.Marshal(b.rawConfig)
	default:
		raw, err = json.Marshal(b.resolvers)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(backupWire{
		Timestamp:   b.Timestamp,
		Platform:    b.Platform,
		Interface:   b.Interface,
		OriginalDNS: raw,
	})
}

func (b *Backup) UnmarshalJSON(data []byte) error {
	var wire backupWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	b.Timestamp = wire.Timestamp
	b.Platform = wire.Platform
	b.Interface = wire.Interface

	var asList []string
	if err := json.Unmarshal(wire.OriginalDNS, &asList); err == nil {
		b.resolvers = asList
		return nil
	}

	var asString string
	if err := json.Unmarshal(wire.OriginalDNS, &asString); err == nil {
		if asString == dhcpSentinel {
			b.dhcp = true
		} else {
			b.rawConfig = asString
		}
		return nil
	}

	return fmt.Errorf("originalDNS field is neither a string array nor a string")
}

// Store persists and loads the single on-disk Backup at path, using
// write-to-temp-then-rename for crash atomicity. Store never deletes
// its on-disk file implicitly -- callers only overwrite it with Save
// when a new non-poisoned value has been observed.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Save(b *Backup) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *Store) Load() (*Backup, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	var b Backup
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, err
	}
	return &b, nil
}
