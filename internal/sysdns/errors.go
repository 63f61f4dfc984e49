package sysdns

import "fmt"

// ConfigureFailedError indicates the Configure algorithm could not
// complete. When the failure comes after the resolvers may already have
// been changed (setting or verifying them), Configure makes an
// immediate Restore attempt before the error is surfaced to the caller.
type ConfigureFailedError struct {
	Reason string
	Err    error
}

func (e *ConfigureFailedError) Error() string {
	return fmt.Sprintf("configure failed: %s: %v", e.Reason, e.Err)
}

func (e *ConfigureFailedError) Unwrap() error { return e.Err }

// RestoreFailedError indicates every restore path -- explicit, raw
// config, and automatic-mode fallback -- was exhausted.
type RestoreFailedError struct {
	Err error
}

func (e *RestoreFailedError) Error() string {
	return fmt.Sprintf("restore failed: %v", e.Err)
}

func (e *RestoreFailedError) Unwrap() error { return e.Err }

// DnsIntegrityFailedError is fatal at daemon startup: the host was left
// with a poisoned (loopback-only) resolver configuration and automatic
// recovery could not be verified.
type DnsIntegrityFailedError struct {
	Err error
}

func (e *DnsIntegrityFailedError) Error() string {
	return fmt.Sprintf("dns integrity check failed: %v", e.Err)
}

func (e *DnsIntegrityFailedError) Unwrap() error { return e.Err }
