package commit

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/asaldivar93/reactors-czlab/internal/metrics"
	"github.com/asaldivar93/reactors-czlab/internal/registry"
	"github.com/asaldivar93/reactors-czlab/internal/store"
	"github.com/asaldivar93/reactors-czlab/internal/telemetry"
)

// Resolver maps an experiment name to its id. *resolver.Resolver
// implements it.
type Resolver interface {
	Resolve(ctx context.Context, name, reactor string) (int64, error)
}

// Store appends rows. *store.Store implements it.
type Store interface {
	Insert(ctx context.Context, c registry.Contract, r store.Row) (int64, error)
}

// Committer is anything that can commit one measurement. Implemented by
// *Engine; Pool depends on this interface.
type Committer interface {
	Commit(ctx context.Context, reactor, experiment string, ts time.Time, m telemetry.Measurement) (telemetry.CommitResult, error)
}

// Engine commits measurements.
//
// Thread-safety: Commit is safe for concurrent use. The registry is
// read-only and the resolver serializes only first resolutions.
type Engine struct {
	registry *registry.Registry
	resolver Resolver
	store    Store
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics records every commit in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an Engine.
func New(reg *registry.Registry, r Resolver, s Store, opts ...Option) *Engine {
	e := &Engine{
		registry: reg,
		resolver: r,
		store:    s,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Commit validates m, resolves the experiment, and appends one row.
//
// Validation errors (UNKNOWN_MODEL, SHAPE_MISMATCH, INVALID_MEASUREMENT)
// are returned before any storage access. Resolver errors are returned
// unchanged. If ctx is done before the insert, the context error is
// returned and nothing is written.
func (e *Engine) Commit(ctx context.Context, reactor, experiment string, ts time.Time, m telemetry.Measurement) (telemetry.CommitResult, error) {
	start := time.Now()
	res, err := e.commit(ctx, reactor, experiment, ts, m)
	e.metrics.ObserveCommit(res.Kind, time.Since(start), err)

	if err != nil {
		e.logger.Debug("commit failed",
			"experiment", experiment,
			"reactor", reactor,
			"model", m.Model,
			"error", err,
		)
		return res, err
	}
	e.logger.Debug("commit",
		"experiment", experiment,
		"experiment_id", res.ExperimentID,
		"reactor", reactor,
		"table", res.Table,
		"row_id", res.RowID,
	)
	return res, nil
}

func (e *Engine) commit(ctx context.Context, reactor, experiment string, ts time.Time, m telemetry.Measurement) (telemetry.CommitResult, error) {
	c, err := e.registry.Lookup(m.Model)
	if err != nil {
		return telemetry.CommitResult{}, err
	}
	res := telemetry.CommitResult{Kind: c.Kind, Table: c.Table}

	if err := Validate(c, reactor, ts, m); err != nil {
		return res, err
	}
	calibration := strings.TrimSpace(m.Calibration)
	if calibration != "" && !c.Calibration {
		e.logger.Debug("calibration ignored for table without calibration column",
			"table", c.Table,
			"calibration", calibration,
		)
		calibration = ""
	}

	if err := ctx.Err(); err != nil {
		return res, err
	}
	experimentID, err := e.resolver.Resolve(ctx, experiment, reactor)
	if err != nil {
		return res, err
	}
	res.ExperimentID = experimentID

	row := store.Row{
		ExperimentID: experimentID,
		Timestamp:    ts,
		Reactor:      strings.TrimSpace(reactor),
		Calibration:  calibration,
		Value:        m.Value,
		Units:        m.Units,
	}

	if err := ctx.Err(); err != nil {
		return res, err
	}
	id, err := e.store.Insert(ctx, c, row)
	if err != nil {
		return res, err
	}
	res.RowID = id
	return res, nil
}

// Validate checks one measurement against its table contract.
func Validate(c registry.Contract, reactor string, ts time.Time, m telemetry.Measurement) error {
	if err := registry.CheckValue(c, m.Value); err != nil {
		return err
	}
	if !m.Value.IsVector() && (math.IsNaN(m.Value.Scalar) || math.IsInf(m.Value.Scalar, 0)) {
		return invalid(c, "value is not a finite number")
	}
	if strings.TrimSpace(reactor) == "" {
		return invalid(c, "reactor label is empty")
	}
	if ts.IsZero() || ts.UnixMilli() <= 0 {
		return invalid(c, "timestamp is missing")
	}
	if c.UnitRequired && strings.TrimSpace(m.Units) == "" {
		return invalid(c, "units are required")
	}
	return nil
}

func invalid(c registry.Contract, msg string) error {
	err := telemetry.NewInvalid(msg)
	err.Kind = c.Kind
	return err
}
