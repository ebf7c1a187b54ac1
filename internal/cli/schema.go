package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/asaldivar93/reactors-czlab/internal/registry"
	"github.com/asaldivar93/reactors-czlab/internal/store"
)

// SchemaOptions holds flags for the schema command.
type SchemaOptions struct {
	*RootOptions
	Apply bool
}

// SchemaResult is the JSON payload of the schema command.
type SchemaResult struct {
	Driver     string   `json:"driver"`
	Statements []string `json:"statements"`
	Applied    bool     `json:"applied"`
}

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SchemaOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print or apply the storage schema",
		Long: `Print the DDL for the experiment table and one table per registered
kind, for the configured storage driver. With --apply the statements are
run against the database. Every statement is idempotent.

Examples:
  reactorlog schema
  reactorlog schema --driver pgx
  reactorlog schema --db ./reactors.db --apply`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchema(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Apply, "apply", false, "create missing tables in the database")

	return cmd
}

func runSchema(opts *SchemaOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	cfg, err := LoadConfig(opts.RootOptions)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	reg, err := cfg.LoadRegistry()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load registry", err)
	}
	storeCfg, err := cfg.StoreConfig()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid storage settings", err)
	}

	result := SchemaResult{
		Driver:     string(storeCfg.Driver),
		Statements: store.SchemaStatements(storeCfg.Driver, reg),
	}

	if opts.Apply {
		env, err := OpenEnv(cmd, opts.RootOptions)
		if err != nil {
			return err
		}
		env.Close()
		result.Applied = true
		out.Debugf("schema applied to %s", storeCfg.DSN)
	}

	if opts.Format == "json" {
		return out.Success(result)
	}
	w := cmd.OutOrStdout()
	for _, stmt := range result.Statements {
		fmt.Fprintf(w, "%s;\n\n", stmt)
	}
	if result.Applied {
		fmt.Fprintf(w, "-- applied %d statements\n", len(result.Statements))
	}
	return nil
}

// KindInfo describes one registered kind.
type KindInfo struct {
	Kind         string `json:"kind"`
	Table        string `json:"table"`
	Shape        string `json:"shape"`
	VectorLen    int    `json:"vector_len,omitempty"`
	Calibration  bool   `json:"calibration"`
	UnitRequired bool   `json:"unit_required"`
}

// NewKindsCommand creates the kinds command.
func NewKindsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "List registered measurement kinds",
		Long: `List the measurement kinds in the registry and the table each one
writes to.

Examples:
  reactorlog kinds
  reactorlog kinds --config ./reactorlog.yaml --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKinds(rootOpts, cmd)
		},
	}
}

func runKinds(opts *RootOptions, cmd *cobra.Command) error {
	cfg, err := LoadConfig(opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	reg, err := cfg.LoadRegistry()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load registry", err)
	}

	kinds := make([]KindInfo, 0, len(reg.Kinds()))
	for _, c := range reg.Contracts() {
		kinds = append(kinds, KindInfo{
			Kind:         c.Kind,
			Table:        c.Table,
			Shape:        string(c.Shape),
			VectorLen:    c.VectorLen,
			Calibration:  c.Calibration,
			UnitRequired: c.UnitRequired,
		})
	}

	if opts.Format == "json" {
		return opts.formatter(cmd).Success(kinds)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tTABLE\tSHAPE\tCALIBRATION\tUNITS")
	for _, k := range kinds {
		shape := k.Shape
		if k.Shape == string(registry.ShapeVector) {
			shape = fmt.Sprintf("%s[%d]", k.Shape, k.VectorLen)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", k.Kind, k.Table, shape, yesNo(k.Calibration), requiredOptional(k.UnitRequired))
	}
	return tw.Flush()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func requiredOptional(b bool) string {
	if b {
		return "required"
	}
	return "optional"
}
