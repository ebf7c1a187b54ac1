package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/asaldivar93/reactors-czlab/internal/config"
	"github.com/asaldivar93/reactors-czlab/internal/export"
	"github.com/asaldivar93/reactors-czlab/internal/query"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	ExperimentSelector
	Window string
	To     string // "file" | "s3" | "-"
}

// ExportResult is the JSON payload of the export command.
type ExportResult struct {
	Experiment string `json:"experiment"`
	Window     string `json:"window"`
	Location   string `json:"location"`
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export an experiment as CSV",
		Long: `Export every measurement of an experiment, across all kinds, as one
CSV file named <experiment>_<YYYYmmddHHMMSS>.csv.

Columns: source_table, date, reactor, value, units, calibration.

--to selects the destination: "file" writes to export.dir, "s3" uploads
to export.bucket, "-" writes to stdout. The default comes from
export.driver in the config file.

Examples:
  reactorlog export -e exp-A
  reactorlog export --window 12h --to -
  reactorlog export -e exp-A --to s3`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, cmd)
		},
	}
	opts.ExperimentSelector.addFlags(cmd)
	cmd.Flags().StringVarP(&opts.Window, "window", "w", "all", "trailing time window (30m, 12h, 7d, all)")
	cmd.Flags().StringVar(&opts.To, "to", "", "destination: file, s3 or - (default from config)")

	return cmd
}

func runExport(opts *ExportOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	ctx := commandContext(cmd)

	window, err := query.ParseWindow(opts.Window)
	if err != nil {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid --window: %v", err))
	}

	env, err := OpenEnv(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer env.Close()
	q := env.Querier()

	exp, err := opts.Select(ctx, q)
	if err != nil {
		return out.Fail("failed to select experiment", err)
	}

	to := opts.To
	if to == "" {
		to = env.Config.Export.Driver
	}
	if to == "-" {
		rows, err := q.ExperimentData(ctx, exp.ID, window)
		if err != nil {
			return out.Fail("export failed", err)
		}
		return export.WriteCSV(cmd.OutOrStdout(), rows)
	}

	var sink export.Sink
	switch to {
	case config.ExportFile:
		sink, err = export.NewFileSink(env.Config.ExportDir())
	case config.ExportS3:
		sink, err = export.NewS3Sink(ctx, env.Config.S3Config())
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid --to %q: must be file, s3 or -", to))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open export destination", err)
	}

	location, err := export.Export(ctx, q, sink, exp.ID, window)
	if err != nil {
		return out.Fail("export failed", err)
	}
	env.Logger.Info("exported experiment", "experiment", exp.Name, "window", window.String(), "location", location)

	if opts.Format == "json" {
		return out.Success(ExportResult{Experiment: exp.Name, Window: window.String(), Location: location})
	}
	fmt.Fprintln(cmd.OutOrStdout(), location)
	return nil
}
