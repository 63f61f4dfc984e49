package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// runForceRestoreDNS reverts the system's DNS configuration to whatever
// was backed up before sinkguard last configured it, without needing a
// running daemon. Intended for recovery when the daemon crashed or was
// killed before its own shutdown sequence could run.
func runForceRestoreDNS(opts *Options) error {
	configurator := newBackendForOneShot(opts.DryRun)
	if err := configurator.Restore(); err != nil {
		return fmt.Errorf("restore system dns: %w", err)
	}
	logrus.Info("system dns configuration restored")
	return nil
}

// runTestDNSResolution verifies that external DNS resolution currently
// works, independent of whether sinkguard's daemon is running.
func runTestDNSResolution(opts *Options) error {
	configurator := newBackendForOneShot(opts.DryRun)
	if err := configurator.TestResolution(); err != nil {
		return fmt.Errorf("dns resolution test failed: %w", err)
	}
	fmt.Println("dns resolution ok")
	return nil
}
