package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewInitDBCommand creates the initdb command.
func NewInitDBCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "initdb",
		Short: "Apply the schema to the configured database",
		Long: `Create the recbatch tables in the configured database if they do not
exist. The recorded tables are owned by the recorder in production;
this command exists for local databases and test setups.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInitDB(rootOpts, cmd)
		},
	}
	return cmd
}

func runInitDB(opts *RootOptions, cmd *cobra.Command) error {
	setupLogging(opts)

	_, st, err := openStore(opts)
	if err != nil {
		return err
	}
	defer closeStore(st)

	ctx, stop := signalContext(cmd)
	defer stop()

	if err := st.EnsureSchema(ctx); err != nil {
		return WrapExitError(ExitFailure, "schema setup failed", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "schema ready")
	return nil
}
