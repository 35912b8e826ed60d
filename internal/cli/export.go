package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sensorgrid/recbatch/internal/export"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Server       string
	NodeListFile string
	OutDir       string
	NoCSV        bool
	KeepLarge    bool
	Encoding     string
	FromTime     string
	UntilTime    string
	GzipJSON     bool
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export per-observation record history to flat files",
		Long: `Export the full record history of every node in the node list file as
one JSON-lines file per observation, then convert each to CSV. Both
steps are idempotent: an unchanged observation is skipped based on its
checkpoint sidecar.

Example:
  recbatch -c recbatch.json export -s sox.example.org -n nodes.txt -o ./out`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Server, "server", "s", "", "target server identity (required)")
	cmd.Flags().StringVarP(&opts.NodeListFile, "node-list-file", "n", "", "file listing node identities, one per line (required)")
	cmd.Flags().StringVarP(&opts.OutDir, "out-dir", "o", "", "output directory (required)")
	cmd.Flags().BoolVar(&opts.NoCSV, "no-csv", false, "skip CSV conversion")
	cmd.Flags().BoolVar(&opts.KeepLarge, "keep-large", false, "keep large-object columns in CSV output")
	cmd.Flags().StringVar(&opts.Encoding, "encoding", export.DefaultEncoding, "CSV output encoding")
	cmd.Flags().StringVar(&opts.FromTime, "from", "", `window start, inclusive (format: "2016-10-01 12:34:56")`)
	cmd.Flags().StringVar(&opts.UntilTime, "until", "", `window end, exclusive (format: "2016-10-10 00:00:00")`)
	cmd.Flags().BoolVar(&opts.GzipJSON, "gzip", false, "gzip JSON-lines output files")
	_ = cmd.MarkFlagRequired("server")
	_ = cmd.MarkFlagRequired("node-list-file")
	_ = cmd.MarkFlagRequired("out-dir")

	return cmd
}

func runExport(opts *ExportOptions, cmd *cobra.Command) error {
	setupLogging(opts.RootOptions)

	from, err := parseWindowTime(opts.FromTime)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --from time", err)
	}
	until, err := parseWindowTime(opts.UntilTime)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --until time", err)
	}

	nodes, err := export.ReadNodeList(opts.NodeListFile)
	if err != nil {
		return WrapExitError(ExitCommandError, "node list file", err)
	}
	if len(nodes) == 0 {
		return NewExitError(ExitCommandError, "node list file is empty")
	}

	_, st, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer closeStore(st)

	ctx, stop := signalContext(cmd)
	defer stop()

	exporter := export.NewExporter(st, nil)
	converter := export.NewCSVConverter(nil)

	summary, err := exporter.RunBatch(ctx, converter, export.BatchOptions{
		Server:           opts.Server,
		Nodes:            nodes,
		OutDir:           opts.OutDir,
		From:             from,
		Until:            until,
		NoCSV:            opts.NoCSV,
		DropLargeObjects: !opts.KeepLarge,
		Encoding:         opts.Encoding,
		GzipJSON:         opts.GzipJSON,
	})
	if summary != nil {
		printExportSummary(cmd, summary)
	}
	if err != nil {
		return WrapExitError(ExitFailure, "export failed", err)
	}
	return nil
}

// parseWindowTime parses an optional window bound. Empty means unbounded.
func parseWindowTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation(export.TimeFormat, s, time.UTC)
}

// printExportSummary reports counts, elapsed time, and not-found
// observations. Partial success is never hidden.
func printExportSummary(cmd *cobra.Command, s *export.BatchSummary) {
	out := cmd.OutOrStdout()

	var (
		rows    int64
		found   int
		skipped int
	)
	for _, n := range s.Nodes {
		rows += n.Rows
		if n.Found {
			found++
		}
		if n.Skipped {
			skipped++
		}
	}

	fmt.Fprintln(out, "------------------------------------------")
	fmt.Fprintf(out, "Time started:  %s\n", s.Started.Format(export.TimeFormat))
	fmt.Fprintf(out, "Time finished: %s\n", s.Finished.Format(export.TimeFormat))
	fmt.Fprintf(out, "Time passed: %.3fsec\n", s.Finished.Sub(s.Started).Seconds())
	fmt.Fprintf(out, "Nodes: %d (found: %d, skipped: %d)\n", len(s.Nodes), found, skipped)
	fmt.Fprintf(out, "Exported rows: %d\n", rows)

	if len(s.NotFound) > 0 {
		fmt.Fprintf(out, "WARNING: %d observation(s) not found:\n", len(s.NotFound))
		for _, node := range s.NotFound {
			fmt.Fprintf(out, "    %s\n", node)
		}
	}
}
