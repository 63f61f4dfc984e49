package sysdns

import "time"

const subprocessTimeout = 10 * time.Second

// PublicFallback is the secondary resolver installed alongside the
// loopback proxy so a proxy crash still leaves partial connectivity.
const PublicFallback = "8.8.8.8"

// ResolverState is what a backend observes when reading the current
// resolver configuration for an interface.
type ResolverState struct {
	// Resolvers is the ordered list of configured resolver IPs. Empty
	// when IsDHCP is true.
	Resolvers []string
	// IsDHCP is true when the interface has no explicit resolvers and
	// is deferring to the platform's automatic (DHCP-supplied) config.
	IsDHCP bool
	// RawConfig is a verbatim copy of the backing config file, used by
	// the Linux fallback backend when no cleaner representation exists.
	RawConfig string
}

// Backend is the platform-specific half of the System DNS Configurator.
// Exactly one implementation is compiled in, selected by GOOS.
type Backend interface {
	// Platform returns the backup-file platform tag: "win32", "darwin", or "linux".
	Platform() string

	// DetectInterface auto-selects the interface to manage, per the
	// platform-specific preference order.
	DetectInterface() (string, error)

	// ReadResolvers reads the interface's current resolver configuration.
	ReadResolvers(iface string) (ResolverState, error)

	// SetResolvers installs primary (the loopback proxy) and secondary
	// (a public fallback) as the interface's resolvers.
	SetResolvers(iface, primary, secondary string) error

	// RestoreAutomatic reverts the interface to platform-automatic
	// (DHCP-managed) resolution.
	RestoreAutomatic(iface string) error

	// RestoreExplicit reapplies a previously observed resolver list.
	RestoreExplicit(iface string, resolvers []string) error

	// RestoreRawConfig reapplies a verbatim backed-up config file, when
	// supported; returns an error otherwise.
	RestoreRawConfig(iface, raw string) error
}

// NewBackend returns the Backend implementation compiled in for the
// current GOOS.
func NewBackend() Backend { return newPlatformBackend() }

// DHCPProber is implemented by backends that can query the live
// DHCP-assigned resolver list directly, instead of relying on the
// "dhcp" sentinel. Only the Windows backend implements this today;
// callers type-assert for it and fall back to the sentinel otherwise.
type DHCPProber interface {
	ProbeDHCP(iface string) ([]string, error)
}

// PermissionDeniedError surfaces a privileged operation that failed due
// to insufficient rights, distinct from other failures so the caller
// can advise the operator to elevate.
type PermissionDeniedError struct {
	Op  string
	Err error
}

func (e *PermissionDeniedError) Error() string {
	return "permission denied: " + e.Op + ": " + e.Err.Error()
}

func (e *PermissionDeniedError) Unwrap() error { return e.Err }
