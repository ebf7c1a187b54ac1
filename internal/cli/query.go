package cli

import (
	"fmt"
	"iter"
	"time"

	"github.com/spf13/cobra"

	"github.com/asaldivar93/reactors-czlab/internal/export"
	"github.com/asaldivar93/reactors-czlab/internal/query"
	"github.com/asaldivar93/reactors-czlab/internal/telemetry"
)

// SeriesOptions holds flags shared by latest and history.
type SeriesOptions struct {
	*RootOptions
	ExperimentSelector
	Reactor string
	Model   string
}

func (o *SeriesOptions) addFlags(cmd *cobra.Command) {
	o.ExperimentSelector.addFlags(cmd)
	cmd.Flags().StringVar(&o.Reactor, "reactor", "", "reactor id (required)")
	cmd.Flags().StringVar(&o.Model, "model", "", "measurement kind (required)")
	_ = cmd.MarkFlagRequired("reactor")
	_ = cmd.MarkFlagRequired("model")
}

// NewLatestCommand creates the latest command.
func NewLatestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SeriesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "latest",
		Short: "Show the most recent measurement of a series",
		Long: `Show the most recent measurement of one (experiment, reactor, kind)
series. The experiment defaults to the most recently created one.

Examples:
  reactorlog latest --reactor R1 --model analog
  reactorlog latest -e exp-A --reactor R2 --model biomass --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLatest(opts, cmd)
		},
	}
	opts.addFlags(cmd)

	return cmd
}

func runLatest(opts *SeriesOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	ctx := commandContext(cmd)

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
	rec, err := q.Latest(ctx, exp.ID, opts.Reactor, opts.Model)
	if err != nil {
		return out.Fail("latest failed", err)
	}

	if opts.Format == "json" {
		return out.Success(rec)
	}
	if rec == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "no %s measurements for %s in %s\n", opts.Model, opts.Reactor, exp.Name)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s %s %s",
		rec.Timestamp.UTC().Format(export.DateLayout), rec.Reactor, rec.Kind, rec.Value, rec.Units)
	if rec.Calibration != "" {
		fmt.Fprintf(cmd.OutOrStdout(), " (%s)", rec.Calibration)
	}
	fmt.Fprintln(cmd.OutOrStdout())
	return nil
}

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	SeriesOptions
	Window string
	Limit  int
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{SeriesOptions: SeriesOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List a series in timestamp order",
		Long: `List every measurement of one (experiment, reactor, kind) series,
oldest first. Text output is CSV in the export format.

--window limits rows to a trailing span: a number followed by m, h or d
(for example 30m, 12h, 7d), or "all".

Examples:
  reactorlog history --reactor R1 --model analog
  reactorlog history -e exp-A --reactor R1 --model analog --window 2h --limit 100`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}
	opts.addFlags(cmd)
	cmd.Flags().StringVarP(&opts.Window, "window", "w", "all", "trailing time window (30m, 12h, 7d, all)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "stop after this many rows (0 = no limit)")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
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
	seq := limit(q.History(ctx, exp.ID, opts.Reactor, opts.Model, window.Since(time.Now())), opts.Limit)

	if opts.Format == "json" {
		rows, err := query.Collect(seq)
		if err != nil {
			return out.Fail("history failed", err)
		}
		return out.Success(rows)
	}
	if err := export.WriteSeq(cmd.OutOrStdout(), seq); err != nil {
		return out.Fail("history failed", err)
	}
	return nil
}

// limit stops seq after n rows. n <= 0 means no limit.
func limit(seq iter.Seq2[telemetry.Record, error], n int) iter.Seq2[telemetry.Record, error] {
	if n <= 0 {
		return seq
	}
	return func(yield func(telemetry.Record, error) bool) {
		count := 0
		for rec, err := range seq {
			if err != nil {
				yield(rec, err)
				return
			}
			if !yield(rec, nil) {
				return
			}
			count++
			if count >= n {
				return
			}
		}
	}
}
