// Package cli wires the batch engines into the recbatch command tree.
package cli

import (
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Config  string
}

// NewRootCommand creates the root command for the recbatch CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "recbatch",
		Short: "Sensor record rollup and export batches",
		Long: `recbatch runs the batch side of the sensor recorder: incremental
daily and monthly record-count rollups, per-observation record export,
and periodic recorder stats.`,
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "path to config file (required)")

	// Add subcommands
	cmd.AddCommand(NewRollupDailyCommand(opts))
	cmd.AddCommand(NewRollupMonthlyCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewInitDBCommand(opts))

	return cmd
}
