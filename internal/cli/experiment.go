package cli

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/asaldivar93/reactors-czlab/internal/telemetry"
)

// NewExperimentCommand creates the experiment command group.
func NewExperimentCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "experiment",
		Short: "List, inspect and delete experiments",
	}

	cmd.AddCommand(newExperimentListCommand(rootOpts))
	cmd.AddCommand(newExperimentShowCommand(rootOpts))
	cmd.AddCommand(newExperimentDeleteCommand(rootOpts))

	return cmd
}

func newExperimentListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List experiments, oldest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := OpenEnv(cmd, opts)
			if err != nil {
				return err
			}
			defer env.Close()

			out := opts.formatter(cmd)
			all, err := env.Querier().Experiments(commandContext(cmd))
			if err != nil {
				return out.Fail("failed to list experiments", err)
			}
			if opts.Format == "json" {
				return out.Success(all)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tRUN DATE\tREACTORS\tVOLUME")
			for _, e := range all {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", e.ID, e.Name, e.RunDate, joinReactors(e.Reactors), formatVolume(e.Volume))
			}
			return tw.Flush()
		},
	}
}

// ExperimentDetail is the JSON payload of experiment show.
type ExperimentDetail struct {
	telemetry.Experiment
	Rows map[string]int64 `json:"rows"`
}

func newExperimentShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id|name>",
		Short: "Show one experiment and its row counts per table",
		Example: `  reactorlog experiment show 3
  reactorlog experiment show exp-A --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := OpenEnv(cmd, opts)
			if err != nil {
				return err
			}
			defer env.Close()

			out := opts.formatter(cmd)
			ctx := commandContext(cmd)
			exp, err := lookupExperiment(ctx, env.Querier(), args[0])
			if err != nil {
				return out.Fail("failed to find experiment", err)
			}

			detail := ExperimentDetail{Experiment: exp, Rows: make(map[string]int64)}
			for _, c := range env.Registry.Contracts() {
				n, err := env.Store.CountRows(ctx, c, exp.ID)
				if err != nil {
					return out.Fail("failed to count rows", err)
				}
				detail.Rows[c.Table] = n
			}

			if opts.Format == "json" {
				return out.Success(detail)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Experiment %d: %s\n", exp.ID, exp.Name)
			fmt.Fprintf(w, "  Run date: %s\n", exp.RunDate)
			fmt.Fprintf(w, "  Created:  %s\n", exp.CreatedAt.UTC().Format("2006-01-02 15:04:05 MST"))
			fmt.Fprintf(w, "  Reactors: %s\n", joinReactors(exp.Reactors))
			fmt.Fprintf(w, "  Volume:   %s\n", formatVolume(exp.Volume))
			if exp.RunID != "" {
				fmt.Fprintf(w, "  Run id:   %s\n", exp.RunID)
			}
			fmt.Fprintln(w, "  Rows:")
			for _, c := range env.Registry.Contracts() {
				fmt.Fprintf(w, "    %-10s %d\n", c.Table, detail.Rows[c.Table])
			}
			return nil
		},
	}
}

func newExperimentDeleteCommand(opts *RootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an experiment and all of its rows",
		Long: `Delete an experiment. Every measurement row of the experiment, in every
kind table, is removed with it. Rows of other experiments are untouched.

Requires --yes.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid experiment id %q", args[0]))
			}
			if !yes {
				return NewExitError(ExitCommandError, "refusing to delete without --yes")
			}

			env, err := OpenEnv(cmd, opts)
			if err != nil {
				return err
			}
			defer env.Close()

			out := opts.formatter(cmd)
			ctx := commandContext(cmd)
			exp, err := env.Querier().Experiment(ctx, id)
			if err != nil {
				return out.Fail("failed to find experiment", err)
			}
			if err := env.Store.DeleteExperiment(ctx, id); err != nil {
				return out.Fail("failed to delete experiment", err)
			}
			env.Logger.Info("deleted experiment", "id", id, "name", exp.Name)

			if opts.Format == "json" {
				return out.Success(exp)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted experiment %d (%s)\n", exp.ID, exp.Name)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm deletion")

	return cmd
}

func joinReactors(reactors []string) string {
	if len(reactors) == 0 {
		return "-"
	}
	return strings.Join(reactors, ",")
}

func formatVolume(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}
