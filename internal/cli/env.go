package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/asaldivar93/reactors-czlab/internal/config"
	"github.com/asaldivar93/reactors-czlab/internal/query"
	"github.com/asaldivar93/reactors-czlab/internal/registry"
	"github.com/asaldivar93/reactors-czlab/internal/resolver"
	"github.com/asaldivar93/reactors-czlab/internal/store"
	"github.com/asaldivar93/reactors-czlab/internal/telemetry"
)

// Env holds what a command needs once settings are loaded: the logger, the
// registry and an open store with the schema applied.
type Env struct {
	Config   *config.Config
	Logger   *slog.Logger
	Registry *registry.Registry
	Store    *store.Store
}

// LoadConfig reads the config file named by --config, applies environment
// overrides and then the global flags.
func LoadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, err
	}
	if opts.Driver != "" {
		cfg.Storage.Driver = opts.Driver
	}
	if opts.Database != "" {
		cfg.Storage.DSN = opts.Database
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, nil
}

// newLogger builds the text logger every command logs through and makes it
// the slog default.
func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	level, _ := cfg.SlogLevel() // validated by LoadConfig
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// OpenEnv loads settings, opens the store and applies the schema.
// Callers must Close the returned Env.
func OpenEnv(cmd *cobra.Command, opts *RootOptions) (*Env, error) {
	cfg, err := LoadConfig(opts)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg)

	reg, err := cfg.LoadRegistry()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load registry", err)
	}

	storeCfg, err := cfg.StoreConfig()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid storage settings", err)
	}
	logger.Debug("opening database", "driver", storeCfg.Driver, "dsn", storeCfg.DSN)
	st, err := store.Open(storeCfg)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	if err := st.EnsureSchema(commandContext(cmd), reg); err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to apply schema", err)
	}
	logger.Debug("database ready", "kinds", len(reg.Kinds()))

	return &Env{Config: cfg, Logger: logger, Registry: reg, Store: st}, nil
}

// Close closes the store, logging any error.
func (e *Env) Close() {
	if err := e.Store.Close(); err != nil {
		e.Logger.Error("error closing database", "error", err)
	}
}

// Querier returns a read-side handle over the store.
func (e *Env) Querier() *query.Querier {
	return query.New(e.Store, e.Registry)
}

// Resolver returns an experiment resolver seeded with the configured
// experiment descriptions.
func (e *Env) Resolver(opts ...resolver.Option) *resolver.Resolver {
	base := []resolver.Option{
		resolver.WithInfo(e.Config.ResolverInfo()),
		resolver.WithLogger(e.Logger),
	}
	return resolver.New(e.Store, append(base, opts...)...)
}

// ExperimentSelector picks an experiment by id, by name, or, when neither
// is set, the most recently created one.
type ExperimentSelector struct {
	Name string
	ID   int64
}

func (s *ExperimentSelector) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&s.Name, "experiment", "e", "", "experiment name (default: most recent)")
	cmd.Flags().Int64Var(&s.ID, "id", 0, "experiment id")
}

// Select returns the chosen experiment.
func (s *ExperimentSelector) Select(ctx context.Context, q *query.Querier) (telemetry.Experiment, error) {
	switch {
	case s.ID > 0:
		return q.Experiment(ctx, s.ID)
	case s.Name != "":
		return q.ExperimentByName(ctx, s.Name)
	default:
		return q.LatestExperiment(ctx)
	}
}

// lookupExperiment resolves a positional argument that is either an id or
// a name.
func lookupExperiment(ctx context.Context, q *query.Querier, arg string) (telemetry.Experiment, error) {
	if id, err := strconv.ParseInt(arg, 10, 64); err == nil && id > 0 {
		return q.Experiment(ctx, id)
	}
	return q.ExperimentByName(ctx, arg)
}

// commandContext returns the command's context, or Background when the
// command was executed without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
