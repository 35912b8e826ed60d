package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sensorgrid/recbatch/internal/rollup"
)

// NewRollupMonthlyCommand creates the rollup-monthly command.
func NewRollupMonthlyCommand(rootOpts *RootOptions) *cobra.Command {
	var stagingDir string

	cmd := &cobra.Command{
		Use:   "rollup-monthly",
		Short: "Roll up daily counts into monthly per-observation totals",
		Long: `Aggregate committed daily rollups into per-observation monthly totals,
one month per transaction via a staging-file bulk load, resuming at the
last committed month and stopping before the current month.

Example:
  recbatch -c recbatch.json rollup-monthly`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRollupMonthly(rootOpts, stagingDir, cmd)
		},
	}

	cmd.Flags().StringVar(&stagingDir, "staging-dir", "", "directory for staging files (default: system temp)")
	return cmd
}

func runRollupMonthly(opts *RootOptions, stagingDir string, cmd *cobra.Command) error {
	setupLogging(opts)

	_, st, err := openStore(opts)
	if err != nil {
		return err
	}
	defer closeStore(st)

	ctx, stop := signalContext(cmd)
	defer stop()

	engine := rollup.NewMonthlyEngine(st, nil)
	if stagingDir != "" {
		engine.StagingDir = stagingDir
	}
	months, err := engine.Run(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "monthly rollup failed", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "monthly rollup done: %d month(s) processed\n", months)
	return nil
}
