package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/asaldivar93/reactors-czlab/internal/commit"
	"github.com/asaldivar93/reactors-czlab/internal/telemetry"
)

// CommitOptions holds flags for the commit command.
type CommitOptions struct {
	*RootOptions
	Experiment  string
	Reactor     string
	Model       string
	Value       string
	Units       string
	Calibration string
	At          string
}

// NewCommitCommand creates the commit command.
func NewCommitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CommitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Commit one measurement",
		Long: `Commit one measurement to the table of its kind, creating the
experiment on first use.

--value is a number for scalar kinds or a JSON integer array for vector
kinds. --at is an RFC 3339 timestamp and defaults to now.

Examples:
  reactorlog commit -e exp-A --reactor R1 --model analog --value 23.5 --units C
  reactorlog commit -e exp-A --reactor R2 --model biomass --value '[0,1,2,3,4,5,6,7,8,9]' --units counts`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommit(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Experiment, "experiment", "e", "", "experiment name (required)")
	cmd.Flags().StringVar(&opts.Reactor, "reactor", "", "reactor id (required)")
	cmd.Flags().StringVar(&opts.Model, "model", "", "measurement kind (required)")
	cmd.Flags().StringVar(&opts.Value, "value", "", "number or JSON integer array (required)")
	cmd.Flags().StringVar(&opts.Units, "units", "", "units label")
	cmd.Flags().StringVar(&opts.Calibration, "calibration", "", "calibration reference")
	cmd.Flags().StringVar(&opts.At, "at", "", "RFC 3339 timestamp (default now)")
	for _, name := range []string{"experiment", "reactor", "model", "value"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

func runCommit(opts *CommitOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	var value telemetry.Value
	if err := json.Unmarshal([]byte(opts.Value), &value); err != nil {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid --value %q: %v", opts.Value, err))
	}
	ts := time.Now()
	if opts.At != "" {
		var err error
		ts, err = time.Parse(time.RFC3339Nano, opts.At)
		if err != nil {
			return NewExitError(ExitCommandError, fmt.Sprintf("invalid --at %q: %v", opts.At, err))
		}
	}

	env, err := OpenEnv(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer env.Close()

	engine := commit.New(env.Registry, env.Resolver(), env.Store, commit.WithLogger(env.Logger))
	m := telemetry.Measurement{
		Model:       opts.Model,
		Value:       value,
		Units:       opts.Units,
		Calibration: opts.Calibration,
	}
	res, err := engine.Commit(commandContext(cmd), opts.Reactor, opts.Experiment, ts, m)
	if err != nil {
		return out.Fail("commit rejected", err)
	}

	if opts.Format == "json" {
		return out.Success(res)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "committed %s row %d (experiment %d)\n", res.Table, res.RowID, res.ExperimentID)
	return nil
}
