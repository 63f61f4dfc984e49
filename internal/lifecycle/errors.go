package lifecycle

import "fmt"

// AnotherInstanceError is returned at startup when a live process
// already holds the PID file. Callers should exit with code 2.
type AnotherInstanceError struct {
	PID int
}

func (e *AnotherInstanceError) Error() string {
	return fmt.Sprintf("another instance is already running (pid %d)", e.PID)
}

// IntegrityFailedError wraps a failed startup DNS integrity check.
// Callers should exit with code 3.
type IntegrityFailedError struct {
	Err error
}

func (e *IntegrityFailedError) Error() string {
	return fmt.Sprintf("dns integrity check failed: %v", e.Err)
}

func (e *IntegrityFailedError) Unwrap() error { return e.Err }
