// Package cli implements the loadgen command line.
package cli

import (
	"github.com/spf13/cobra"
)

var version = "0.1.0"

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "loadgen",
		Short:   "Synthetic traffic generator for the event ingestion endpoint",
		Version: version,
		Long: `loadgen sends a steady stream of synthetic events to an ingestion
endpoint, injecting replayed idempotency keys and malformed events at
configurable rates, and reports how the endpoint classified them along
with latency percentiles.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			// If no subcommand is provided, print help
			cmd.Help()
		},
	}

	root.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")
	root.PersistentFlags().String("log-format", "console", "Log format: console or json")

	root.AddCommand(newRunCmd())
	root.AddCommand(newSampleCmd())
	root.AddCommand(newTargetCmd())
	return root
}

// Execute runs the command line. It is called by main.main().
func Execute() error {
	return NewRootCmd().Execute()
}
