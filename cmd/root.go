// Package cmd implements the command-line interface for sinkguard.
package cmd

import (
	"github.com/spf13/cobra"
)

// Options holds the flags shared across the CLI's flag-driven
// surface. Only one action flag is meaningful per invocation; the
// zero value runs the daemon.
type Options struct {
	ConfigFile        string
	DryRun            bool
	BlocklistPath     string
	Status            bool
	Enable            bool
	Disable           bool
	ForceRestoreDNS   bool
	TestDNSResolution bool
}

// NewRootCmd builds the sinkguard root command. With no action flags
// it runs the daemon; each action flag instead performs a one-shot
// operation and exits.
func NewRootCmd() *cobra.Command {
	opts := &Options{}

	root := &cobra.Command{
		Use:   "sinkguardd",
		Short: "A DNS-based ad and tracker blocker with system DNS reconfiguration",
		Long: `sinkguardd runs a loopback DNS proxy that sinkholes queries against a
local blocklist and forwards everything else upstream, and reconfigures
the operating system's DNS resolvers to route through it.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return dispatch(opts)
		},
	}

	root.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file path")
	root.Flags().BoolVar(&opts.DryRun, "dry-run", false, "log intended system changes without performing them")
	root.Flags().StringVar(&opts.BlocklistPath, "blocklist-path", "", "override the configured blocklist path")
	root.Flags().BoolVar(&opts.Status, "status", false, "query the running daemon's status and exit")
	root.Flags().BoolVar(&opts.Enable, "enable", false, "enable blocking on the running daemon and exit")
	root.Flags().BoolVar(&opts.Disable, "disable", false, "disable blocking on the running daemon and exit")
	root.Flags().BoolVar(&opts.ForceRestoreDNS, "force-restore-dns", false, "restore system DNS to its pre-sinkguard configuration and exit")
	root.Flags().BoolVar(&opts.TestDNSResolution, "test-dns-resolution", false, "verify external DNS resolution works and exit")

	root.AddCommand(NewConvertHostsCmd())

	return root
}

func dispatch(opts *Options) error {
	switch {
	case opts.Status:
		return runStatus(opts)
	case opts.Enable:
		return runToggle(opts, true)
	case opts.Disable:
		return runToggle(opts, false)
	case opts.ForceRestoreDNS:
		return runForceRestoreDNS(opts)
	case opts.TestDNSResolution:
		return runTestDNSResolution(opts)
	default:
		return runDaemon(opts)
	}
}
