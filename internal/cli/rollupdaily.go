package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sensorgrid/recbatch/internal/rollup"
)

// NewRollupDailyCommand creates the rollup-daily command.
func NewRollupDailyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollup-daily",
		Short: "Roll up raw records into daily per-observation counts",
		Long: `Aggregate raw records into per-observation daily record counts and
fixed-width minute buckets, one calendar day per transaction, resuming
at the last committed day and stopping before today.

Example:
  recbatch -c recbatch.json rollup-daily`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRollupDaily(rootOpts, cmd)
		},
	}
	return cmd
}

func runRollupDaily(opts *RootOptions, cmd *cobra.Command) error {
	setupLogging(opts)

	_, st, err := openStore(opts)
	if err != nil {
		return err
	}
	defer closeStore(st)

	ctx, stop := signalContext(cmd)
	defer stop()

	engine := rollup.NewDailyEngine(st, nil)
	days, err := engine.Run(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "daily rollup failed", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "daily rollup done: %d day(s) processed\n", days)
	return nil
}
