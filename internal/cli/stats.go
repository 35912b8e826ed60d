package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sensorgrid/recbatch/internal/stats"
)

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		watch    bool
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Record a recorder health snapshot",
		Long: `Measure table totals, recent-1min activity, and data-directory disk
usage, and insert the snapshot into recorder_stat. With --watch, keep
snapshotting on an interval until interrupted.

Example:
  recbatch -c recbatch.json stats --watch`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(rootOpts, watch, interval, cmd)
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "keep snapshotting on an interval")
	cmd.Flags().DurationVar(&interval, "interval", stats.DefaultInterval, "snapshot interval in watch mode")
	return cmd
}

func runStats(opts *RootOptions, watch bool, interval time.Duration, cmd *cobra.Command) error {
	setupLogging(opts)

	cfg, st, err := openStore(opts)
	if err != nil {
		return err
	}
	defer closeStore(st)

	ctx, stop := signalContext(cmd)
	defer stop()

	engine := stats.New(st, cfg.PGDataDir, nil)

	if !watch {
		snap, err := engine.Snapshot(ctx)
		if err != nil {
			return WrapExitError(ExitFailure, "stats snapshot failed", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "snapshot recorded at %s: %d record(s), %d observation(s)\n",
			snap.Created.Format("2006-01-02 15:04:05"), snap.TotalRecordCount, snap.TotalObservationCount)
		return nil
	}

	if err := engine.Run(ctx, interval); err != nil {
		return WrapExitError(ExitFailure, "stats loop failed", err)
	}
	return nil
}
