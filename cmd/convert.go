package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"sinkguard/internal/blocklist"
)

// NewConvertHostsCmd builds the convert-hosts-file subcommand, an
// offline migration utility for operators moving an existing
// hosts-file-format blocklist into sinkguard's JSON format. Unlike the
// rest of the CLI's flag-driven surface, this is a genuine subcommand
// since it takes positional source/destination arguments rather than
// toggling daemon state.
func NewConvertHostsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "convert-hosts-file <source> <destination>",
		Short: "Convert a hosts-file-format blocklist into sinkguard's JSON format",
		Long: `Reads a hosts-file-format blocklist ("0.0.0.0 domain" per line,
comments starting with '#') and writes the equivalent JSON array of
domain names that --blocklist-path expects. Performs no network I/O.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvertHostsFile(args[0], args[1])
		},
	}
}

func runConvertHostsFile(source, destination string) error {
	list, err := blocklist.LoadHostsFile(source)
	if err != nil {
		return fmt.Errorf("convert hosts file: %w", err)
	}

	domains := list.Domains()
	data, err := json.MarshalIndent(domains, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal converted blocklist: %w", err)
	}

	if err := os.WriteFile(destination, data, 0644); err != nil {
		return fmt.Errorf("write converted blocklist: %w", err)
	}

	fmt.Printf("converted %d domains (%d rejected) into %s\n", list.Accepted, list.Rejected, destination)
	return nil
}
