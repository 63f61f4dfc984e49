package sysdns

import (
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	propagationDelay  = 2 * time.Second
	externalCheckWait = 5 * time.Second
)

// Configurator owns the one platform Backend and the on-disk Backup
// store, and implements the Backup/Configure/Restore/IntegrityCheck
// algorithms on top of them. All operations are serialized: Configure
// and Restore must never run concurrently with each other or with
// themselves.
type Configurator struct {
	backend Backend
	store   *Store
	dryRun  bool

	mu      sync.Mutex
	iface   string
	memory  *Backup // last backup observed this process, used if the store is unreadable
}

// New builds a Configurator for the current platform's Backend. The
// actual Backend selection is GOOS-specific (see backend_*.go); tests
// construct a Configurator directly with a fake Backend instead.
func New(backend Backend, backupPath string, dryRun bool) *Configurator {
	return &Configurator{backend: backend, store: NewStore(backupPath), dryRun: dryRun}
}

// SetInterface overrides auto-detection.
func (c *Configurator) SetInterface(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.iface = name
}

func (c *Configurator) interfaceName() (string, error) {
	if c.iface != "" {
		return c.iface, nil
	}
	name, err := c.backend.DetectInterface()
	if err != nil {
		return "", fmt.Errorf("detect interface: %w", err)
	}
	c.iface = name
	return name, nil
}

// isPoisoned reports whether a resolver state already points at the
// loopback proxy, the signature of a previous run that crashed
// mid-configuration.
func isPoisoned(state ResolverState) bool {
	if state.IsDHCP {
		return false
	}
	for _, r := range state.Resolvers {
		if isLoopbackResolver(r) {
			return true
		}
	}
	if state.RawConfig != "" && len(state.Resolvers) == 0 {
		return strings.Contains(state.RawConfig, "127.0.0.1") || strings.Contains(state.RawConfig, "localhost")
	}
	return false
}

func isLoopbackResolver(s string) bool {
	s = strings.TrimSpace(s)
	if s == "localhost" {
		return true
	}
	ip := net.ParseIP(s)
	return ip != nil && ip.IsLoopback()
}

// backup implements the Backup algorithm. Callers must hold c.mu.
func (c *Configurator) backup() (*Backup, error) {
	iface, err := c.interfaceName()
	if err != nil {
		return nil, err
	}

	state, err := c.backend.ReadResolvers(iface)
	if err != nil {
		return nil, fmt.Errorf("read resolvers: %w", err)
	}

	var b *Backup
	if isPoisoned(state) {
		logrus.WithField("interface", iface).Warn("resolver config already points at loopback, previous run likely crashed mid-configuration")
		if existing, lerr := c.store.Load(); lerr == nil {
			c.memory = existing
			return existing, nil
		}
		if prober, ok := c.backend.(DHCPProber); ok {
			if resolvers, perr := prober.ProbeDHCP(iface); perr == nil && len(resolvers) > 0 {
				b = NewResolverBackup(c.backend.Platform(), iface, resolvers)
			}
		}
		if b == nil {
			b = NewDHCPBackup(c.backend.Platform(), iface)
		}
	} else if state.IsDHCP {
		b = NewDHCPBackup(c.backend.Platform(), iface)
	} else if len(state.Resolvers) > 0 {
		b = NewResolverBackup(c.backend.Platform(), iface, state.Resolvers)
	} else {
		b = NewRawConfigBackup(c.backend.Platform(), iface, state.RawConfig)
	}

	if err := c.store.Save(b); err != nil {
		logrus.WithError(err).Warn("failed to persist dns backup, continuing with in-memory copy only")
	}
	c.memory = b
	return b, nil
}

// Configure implements the Configure algorithm, pointing the host at
// the loopback proxy listening on proxyAddr.
func (c *Configurator) Configure(proxyAddr string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.backup(); err != nil {
		return fmt.Errorf("configure: %w", err)
	}

	if err := probeA(proxyAddr, "google.com", 5*time.Second); err != nil {
		return &ConfigureFailedError{Reason: "local proxy is not answering", Err: err}
	}

	iface, err := c.interfaceName()
	if err != nil {
		return &ConfigureFailedError{Reason: "interface detection", Err: err}
	}

	if c.dryRun {
		logrus.WithFields(logrus.Fields{"interface": iface, "primary": "127.0.0.1", "secondary": PublicFallback}).
			Info("dry run: would configure system resolvers")
		return nil
	}

	if err := validateInterfaceName(iface); err != nil {
		return &ConfigureFailedError{Reason: "interface name validation", Err: err}
	}

	if err := c.backend.SetResolvers(iface, "127.0.0.1", PublicFallback); err != nil {
		if rerr := c.restoreLocked(); rerr != nil {
			return &ConfigureFailedError{Reason: "set resolvers failed and restore also failed", Err: rerr}
		}
		return &ConfigureFailedError{Reason: "set resolvers", Err: err}
	}

	time.Sleep(propagationDelay)

	state, err := c.backend.ReadResolvers(iface)
	if err != nil || len(state.Resolvers) == 0 || state.Resolvers[0] != "127.0.0.1" {
		logrus.Warn("post-configure verification failed, restoring original resolvers")
		if rerr := c.restoreLocked(); rerr != nil {
			return &ConfigureFailedError{Reason: "verification failed and restore also failed", Err: rerr}
		}
		if err == nil {
			err = fmt.Errorf("resolver %v does not match expected primary 127.0.0.1", state.Resolvers)
		}
		return &ConfigureFailedError{Reason: "verification failed, original resolvers restored", Err: err}
	}

	return nil
}

// Restore implements the Restore algorithm.
func (c *Configurator) Restore() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.restoreLocked()
}

func (c *Configurator) restoreLocked() error {
	iface, err := c.interfaceName()
	if err != nil {
		return &RestoreFailedError{Err: err}
	}

	b, loadErr := c.store.Load()
	if loadErr != nil {
		b = c.memory
	}
	if b == nil {
		if c.dryRun {
			logrus.Info("dry run: no known backup, would restore automatic mode")
			return nil
		}
		if err := c.backend.RestoreAutomatic(iface); err != nil {
			return &RestoreFailedError{Err: err}
		}
		return nil
	}

	if c.dryRun {
		logrus.WithField("backup", b).Info("dry run: would restore previous resolver configuration")
		return nil
	}

	var restoreErr error
	switch {
	case b.IsDHCP():
		restoreErr = c.backend.RestoreAutomatic(iface)
	case b.RawConfig() != "":
		restoreErr = c.backend.RestoreRawConfig(iface, b.RawConfig())
	default:
		restoreErr = c.backend.RestoreExplicit(iface, b.Resolvers())
	}

	if restoreErr != nil {
		logrus.WithError(restoreErr).Warn("primary restore path failed, falling back to automatic mode")
		if err := c.backend.RestoreAutomatic(iface); err != nil {
			return &RestoreFailedError{Err: fmt.Errorf("%v (automatic fallback also failed: %w)", restoreErr, err)}
		}
	}

	return nil
}

// TestResolution verifies that external DNS resolution works through
// whatever resolvers the host is currently configured with, for the
// --test-dns-resolution CLI operation.
func (c *Configurator) TestResolution() error {
	return externalLookup("google.com", externalCheckWait)
}

// IntegrityCheck implements the startup integrity check: it never
// mutates a clean configuration, but forcibly recovers and verifies a
// poisoned one, refusing to proceed if recovery cannot be confirmed.
func (c *Configurator) IntegrityCheck(proxyAddrs []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	iface, err := c.interfaceName()
	if err != nil {
		return &DnsIntegrityFailedError{Err: err}
	}

	state, err := c.backend.ReadResolvers(iface)
	if err != nil {
		return &DnsIntegrityFailedError{Err: err}
	}

	if !isPoisoned(state) {
		return nil
	}

	for _, addr := range proxyAddrs {
		if probeA(addr, "google.com", time.Second) == nil {
			// Something is already answering on the loopback address we
			// would otherwise call poisoned; treat it as a live proxy
			// from an earlier invocation and leave it alone.
			return nil
		}
	}

	logrus.Warn("system resolvers point at loopback with no proxy answering, recovering automatically")
	if err := c.restoreLocked(); err != nil {
		return &DnsIntegrityFailedError{Err: err}
	}

	time.Sleep(propagationDelay)

	if err := externalLookup("google.com", externalCheckWait); err != nil {
		return &DnsIntegrityFailedError{Err: err}
	}

	return nil
}
