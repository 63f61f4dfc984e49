// Package blocklist holds the in-memory set of blocked domain names.
// Snapshots are immutable once built and are swapped atomically so
// in-flight DNS queries never observe a half-updated list.
package blocklist

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

const maxFileSize = 100 * 1024 * 1024 // 100 MiB, per the on-disk format contract

var domainLabel = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

// emergencySeed is the hardcoded fallback list installed when a loaded
// file parses to zero usable entries, so the proxy never runs unprotected.
var emergencySeed = []string{
	"doubleclick.net",
	"adservice.google.com",
	"ads.pornhub.com",
	"xvideos-cdn.com",
}

// ValidationError reports why a single blocklist entry was rejected.
type ValidationError struct {
	Entry  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("blocklist entry %q: %s", e.Entry, e.Reason)
}

// LoadError wraps a failure to load a blocklist file.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load blocklist %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Blocklist is an immutable snapshot of blocked domains.
type Blocklist struct {
	domains    map[string]struct{}
	generation uint64
	Accepted   int
	Rejected   int
}

// Store holds the currently active Blocklist snapshot and allows it to
// be swapped atomically. The zero value is not usable; use NewStore.
type Store struct {
	current atomic.Pointer[Blocklist]
	gen     uint64
}

// NewStore creates a Store seeded with an empty, zero-generation snapshot.
func NewStore() *Store {
	s := &Store{}
	s.current.Store(&Blocklist{domains: map[string]struct{}{}})
	return s
}

// Current returns the active snapshot. Safe for concurrent use; the
// returned pointer is stable even if the store is swapped concurrently.
func (s *Store) Current() *Blocklist {
	return s.current.Load()
}

// Swap atomically replaces the active snapshot.
func (s *Store) Swap(b *Blocklist) {
	s.gen++
	b.generation = s.gen
	s.current.Store(b)
	logrus.WithFields(logrus.Fields{
		"generation": b.generation,
		"domains":    len(b.domains),
		"accepted":   b.Accepted,
		"rejected":   b.Rejected,
	}).Info("blocklist snapshot swapped")
}

// Load parses path (a JSON array of domain strings) into a new Blocklist
// and returns it without installing it into any Store — call Store.Swap
// with the result to activate it.
func Load(path string) (*Blocklist, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	if info.Size() > maxFileSize {
		return nil, &LoadError{Path: path, Err: fmt.Errorf("file exceeds %d bytes", maxFileSize)}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &LoadError{Path: path, Err: fmt.Errorf("not a JSON array of strings: %w", err)}
	}

	b, accepted, rejected := build(raw)
	if accepted == 0 {
		logrus.WithField("path", path).Warn("blocklist file produced zero usable entries, installing emergency fallback list")
		b, accepted, rejected = build(emergencySeed)
	}
	b.Accepted = accepted
	b.Rejected = rejected
	return b, nil
}

// LoadHostsFile converts a local hosts-file-format list ("0.0.0.0 domain"
// per line, comments with '#') into a Blocklist. This is an offline
// conversion utility for operators migrating existing hosts-file
// blocklists; it never performs network I/O.
func LoadHostsFile(path string) (*Blocklist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	var domains []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}
		domain := parts[1]
		if domain == "localhost" || domain == "localhost.localdomain" {
			continue
		}
		domains = append(domains, domain)
	}

	b, accepted, rejected := build(domains)
	b.Accepted = accepted
	b.Rejected = rejected
	return b, nil
}

func build(raw []string) (*Blocklist, int, int) {
	domains := make(map[string]struct{}, len(raw))
	accepted, rejected := 0, 0
	for _, entry := range raw {
		name, err := normalize(entry)
		if err != nil {
			rejected++
			continue
		}
		domains[name] = struct{}{}
		accepted++
	}
	return &Blocklist{domains: domains}, accepted, rejected
}

// normalize validates and canonicalizes a raw blocklist entry per the
// Domain invariant: lowercased, no trailing dot, 1-253 octets, labels
// 1-63 octets matching [a-z0-9]([a-z0-9-]*[a-z0-9])?, no "..".
func normalize(entry string) (string, error) {
	name := strings.ToLower(strings.TrimSpace(entry))
	name = strings.TrimSuffix(name, ".")

	if name == "" {
		return "", &ValidationError{Entry: entry, Reason: "empty"}
	}
	if len(name) > 253 {
		return "", &ValidationError{Entry: entry, Reason: "exceeds 253 octets"}
	}
	if strings.Contains(name, "..") {
		return "", &ValidationError{Entry: entry, Reason: "contains .."}
	}
	if !strings.Contains(name, ".") {
		return "", &ValidationError{Entry: entry, Reason: "missing a dot"}
	}

	for _, label := range strings.Split(name, ".") {
		if len(label) == 0 || len(label) > 63 || !domainLabel.MatchString(label) {
			return "", &ValidationError{Entry: entry, Reason: fmt.Sprintf("invalid label %q", label)}
		}
	}

	return name, nil
}

// Contains reports whether name or any proper suffix of name is on the
// blocklist. Lookup is O(1) for the exact match and O(depth) for the
// suffix walk, where depth is the number of labels in name.
func (b *Blocklist) Contains(name string) bool {
	name = strings.ToLower(strings.TrimSuffix(name, "."))
	if name == "" {
		return false
	}

	if _, ok := b.domains[name]; ok {
		return true
	}

	labels := strings.Split(name, ".")
	for i := 1; i < len(labels); i++ {
		suffix := strings.Join(labels[i:], ".")
		if _, ok := b.domains[suffix]; ok {
			return true
		}
	}
	return false
}

// Len returns the number of distinct domains held by the snapshot.
func (b *Blocklist) Len() int {
	return len(b.domains)
}

// Domains returns the snapshot's domain names in unspecified order, for
// callers that need to serialize the full set (e.g. the hosts-file
// conversion utility).
func (b *Blocklist) Domains() []string {
	out := make([]string, 0, len(b.domains))
	for d := range b.domains {
		out = append(out, d)
	}
	return out
}

// Generation returns the monotonically increasing swap counter assigned
// when the snapshot was installed into a Store (0 if never installed).
func (b *Blocklist) Generation() uint64 {
	return b.generation
}
