// Package lifecycle owns process start-up, shutdown, single-instance
// enforcement, and the serialized enable/disable toggle for the
// sinkguard daemon.
package lifecycle

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"sinkguard/internal/audit"
	"sinkguard/internal/blocklist"
	"sinkguard/internal/config"
	"sinkguard/internal/dnsproxy"
	"sinkguard/internal/security"
	"sinkguard/internal/sysdns"
)

const shutdownTimeout = 15 * time.Second

// blockingMethod names the technique used to intercept queries, for
// reporting over the Control Interface.
const blockingMethod = "loopback dns sinkhole with system resolver redirection"

// Manager coordinates the Blocklist Store, DNS Proxy, and System DNS
// Configurator through a single ordered startup/shutdown sequence,
// and serializes the enable/disable toggle against concurrent callers.
type Manager struct {
	cfg    *config.Config
	dryRun bool

	pidPath    string
	statePath  string
	backupPath string

	store        *blocklist.Store
	proxy        *dnsproxy.Proxy
	configurator *sysdns.Configurator

	toggleMu     sync.Mutex
	isBlocking   atomic.Bool
	shuttingDown atomic.Bool
	startTime    time.Time
}

// New builds a Manager. Call Run to execute the full startup sequence
// and block until a terminating signal is received.
func New(cfg *config.Config, dryRun bool) *Manager {
	return &Manager{
		cfg:        cfg,
		dryRun:     dryRun,
		pidPath:    defaultPIDPath(),
		statePath:  defaultStatePath(),
		backupPath: defaultBackupPath(),
	}
}

// Run executes the startup sequence, blocks until a terminating
// signal or fatal error occurs, then executes the shutdown sequence.
// Returns *AnotherInstanceError or *IntegrityFailedError for the
// caller to translate into the matching CLI exit code.
func (m *Manager) Run() error {
	if err := acquireSingleInstance(m.pidPath); err != nil {
		return err
	}
	if err := writePIDFile(m.pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer removePIDFile(m.pidPath)

	if err := audit.Initialize(defaultAuditDir()); err != nil {
		logrus.WithError(err).Warn("failed to initialize audit logging")
	}
	defer audit.Close()
	audit.Log(audit.EventServiceStart, "info", "sinkguard starting", nil)

	backend := sysdns.NewBackend()
	m.configurator = sysdns.New(backend, m.backupPath, m.dryRun)

	proxyAddrs := []string{"127.0.0.1:53", "127.0.0.1:5353"}
	if err := m.configurator.IntegrityCheck(proxyAddrs); err != nil {
		audit.Log(audit.EventDNSIntegrity, "critical", "startup dns integrity check failed", map[string]interface{}{"error": err.Error()})
		return &IntegrityFailedError{Err: err}
	}

	store := blocklist.NewStore()
	list, err := blocklist.Load(m.cfg.Blocklist.Path)
	if err != nil {
		logrus.WithError(err).Error("failed to load blocklist, keeping the empty starting snapshot")
		audit.Log(audit.EventSecurityWarn, "warning", "blocklist load failed", map[string]interface{}{"error": err.Error()})
	} else {
		store.Swap(list)
	}
	m.store = store
	audit.Log(audit.EventBlocklistLoad, "info", "blocklist loaded", map[string]interface{}{"domains": store.Current().Len()})

	m.proxy = dnsproxy.New(store, dnsproxy.Options{
		Upstreams:       m.cfg.DNS.Upstreams,
		CacheSize:       m.cfg.DNS.CacheSize,
		RateLimit:       m.cfg.DNS.RateLimitQueries,
		RateLimitWindow: m.cfg.DNS.RateLimitWindow,
	})
	if err := m.proxy.Start(); err != nil {
		return fmt.Errorf("start dns proxy: %w", err)
	}
	if err := security.NewHardening().DropPrivilegesAfterBind(); err != nil {
		logrus.WithError(err).Warn("failed to drop privileges after binding dns port")
	}

	priorState, err := loadState(m.statePath)
	wantBlocking := err == nil && priorState.IsBlocking
	if wantBlocking {
		if cfgErr := m.configurator.Configure(m.loopbackProxyAddr()); cfgErr != nil {
			logrus.WithError(cfgErr).Error("failed to reapply blocking state from prior run")
			audit.Log(audit.EventSecurityWarn, "error", "failed to reapply persisted blocking state", map[string]interface{}{"error": cfgErr.Error()})
			wantBlocking = false
		}
	}
	m.isBlocking.Store(wantBlocking)
	m.startTime = time.Now()

	ctrl := m.startControlInterface()

	logrus.WithFields(logrus.Fields{"port": m.proxy.Port(), "blocking": wantBlocking}).Info("sinkguard is running")

	sigCh := make(chan os.Signal, 1)
	notifySignals(sigCh)
	<-sigCh

	return m.shutdown(ctrl)
}

func (m *Manager) loopbackProxyAddr() string {
	return fmt.Sprintf("127.0.0.1:%d", m.proxy.Port())
}

func (m *Manager) shutdown(ctrl controlServer) error {
	if !m.shuttingDown.CompareAndSwap(false, true) {
		return nil
	}
	logrus.Info("shutting down")

	done := make(chan struct{})
	go func() {
		defer close(done)

		if err := saveState(m.statePath, m.isBlocking.Load()); err != nil {
			logrus.WithError(err).Warn("failed to persist daemon state on shutdown")
		}

		if ctrl != nil {
			shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := ctrl.Shutdown(shCtx); err != nil {
				logrus.WithError(err).Warn("error stopping control interface")
			}
		}

		if m.proxy != nil {
			if err := m.proxy.Stop(); err != nil {
				logrus.WithError(err).Warn("error stopping dns proxy")
			}
		}

		if m.configurator != nil {
			if err := m.configurator.Restore(); err != nil {
				logrus.WithError(err).Error("error restoring system dns")
				audit.Log(audit.EventSecurityWarn, "critical", "dns restore failed on shutdown", map[string]interface{}{"error": err.Error()})
			} else {
				audit.Log(audit.EventDNSRestored, "info", "system dns restored on shutdown", nil)
			}
		}
	}()

	select {
	case <-done:
		logrus.Info("sinkguard stopped")
		return nil
	case <-time.After(shutdownTimeout):
		logrus.Error("shutdown timed out, forcing exit")
		return fmt.Errorf("shutdown timeout after %s", shutdownTimeout)
	}
}

// Toggle flips blocking on or off, serialized against concurrent
// callers. On enable, it starts Configure; on disable, it runs
// Restore. The in-memory state and the persisted state file are
// updated only after the underlying operation succeeds.
func (m *Manager) Toggle(enable bool) (bool, error) {
	m.toggleMu.Lock()
	defer m.toggleMu.Unlock()

	if enable == m.isBlocking.Load() {
		return enable, nil
	}

	if enable {
		if err := m.configurator.Configure(m.loopbackProxyAddr()); err != nil {
			return m.isBlocking.Load(), err
		}
	} else {
		if err := m.configurator.Restore(); err != nil {
			return m.isBlocking.Load(), err
		}
	}

	m.isBlocking.Store(enable)
	audit.LogToggle(enable, "user requested toggle")
	if err := saveState(m.statePath, enable); err != nil {
		logrus.WithError(err).Warn("failed to persist daemon state")
	}
	return enable, nil
}

// Uptime, PID, IsRunning, IsBlocking, DomainsInList, QueryStats, and
// BlockingMethod together implement internal/control's Provider
// interface without control needing to import dnsproxy or blocklist.

func (m *Manager) Uptime() time.Duration { return time.Since(m.startTime) }

func (m *Manager) PID() int { return os.Getpid() }

func (m *Manager) IsRunning() bool { return !m.shuttingDown.Load() }

func (m *Manager) IsBlocking() bool { return m.isBlocking.Load() }

func (m *Manager) DomainsInList() int {
	if m.store == nil {
		return 0
	}
	return m.store.Current().Len()
}

func (m *Manager) QueryStats() (seen, blocked, allowed, forwardErrors uint64) {
	if m.proxy == nil {
		return 0, 0, 0, 0
	}
	snap := m.proxy.Stats()
	return snap.QueriesSeen, snap.QueriesBlocked, snap.QueriesAllowed, snap.ForwardErrors
}

func (m *Manager) BlockingMethod() string { return blockingMethod }

func notifySignals(ch chan os.Signal) {
	sigs := []os.Signal{os.Interrupt, syscall.SIGTERM}
	sigs = append(sigs, platformSignals()...)
	signal.Notify(ch, sigs...)
}
