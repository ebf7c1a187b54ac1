package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/asaldivar93/reactors-czlab/internal/commit"
	"github.com/asaldivar93/reactors-czlab/internal/export"
	"github.com/asaldivar93/reactors-czlab/internal/query"
	"github.com/asaldivar93/reactors-czlab/internal/registry"
	"github.com/asaldivar93/reactors-czlab/internal/resolver"
	"github.com/asaldivar93/reactors-czlab/internal/store"
	"github.com/asaldivar93/reactors-czlab/internal/telemetry"
	"github.com/asaldivar93/reactors-czlab/internal/testutil"
)

// Harness holds the components one scenario runs against.
type Harness struct {
	store    *store.Store
	registry *registry.Registry
	engine   *commit.Engine
	query    *query.Querier
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// An error is returned only when the scenario cannot be executed at all;
// failed expectations are reported in the result.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	reg := registry.Default()
	if scenario.Registry != "" {
		var err error
		reg, err = registry.LoadCUE(scenario.Registry)
		if err != nil {
			return nil, fmt.Errorf("failed to load registry: %w", err)
		}
	}

	st, err := store.Open(store.Config{Driver: store.DriverSQLite3, DSN: ":memory:"})
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()
	if err := st.EnsureSchema(ctx, reg); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	start, err := scenario.startTime()
	if err != nil {
		return nil, err
	}
	clock := testutil.NewDeterministicClock(start)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests

	info := make(map[string]resolver.Info, len(scenario.Experiments))
	for name, e := range scenario.Experiments {
		info[name] = resolver.Info{Reactors: e.Reactors, Volume: e.Volume}
	}
	res := resolver.New(st,
		resolver.WithClock(clock),
		resolver.WithRunIDGenerator(testutil.FixedRunID(scenario.RunID)),
		resolver.WithInfo(info),
		resolver.WithLogger(logger),
	)

	h := &Harness{
		store:    st,
		registry: reg,
		engine:   commit.New(reg, res, st, commit.WithLogger(logger)),
		query:    query.New(st, reg, query.WithClock(clock)),
	}

	result := NewResult()
	if err := h.executeCommits(ctx, scenario.Commits, start, result); err != nil {
		return nil, err
	}

	for _, msg := range h.evaluateAssertions(ctx, scenario.Assertions) {
		result.AddError(msg)
	}

	if scenario.Export != "" {
		csv, err := h.exportCSV(ctx, scenario.Export)
		if err != nil {
			result.AddError(fmt.Sprintf("export %s: %v", scenario.Export, err))
		}
		result.CSV = csv
	}

	return result, nil
}

// executeCommits runs every commit step in order and compares its outcome
// with the step's expectation.
func (h *Harness) executeCommits(ctx context.Context, steps []CommitStep, start time.Time, result *Result) error {
	for i, step := range steps {
		ts, err := step.timestamp(start)
		if err != nil {
			return fmt.Errorf("commits[%d]: %w", i, err)
		}
		value, err := toValue(step.Value)
		if err != nil {
			return fmt.Errorf("commits[%d]: %w", i, err)
		}

		m := telemetry.Measurement{
			Model:       step.Model,
			Value:       value,
			Units:       step.Units,
			Calibration: step.Calibration,
		}
		res, err := h.engine.Commit(ctx, step.Reactor, step.Experiment, ts, m)

		outcome := CommitOutcome{Step: i, Table: res.Table, ExperimentID: res.ExperimentID, RowID: res.RowID}
		code := errorCode(err)
		outcome.Code = code
		result.Commits = append(result.Commits, outcome)

		switch {
		case step.Expect == "" && err != nil:
			result.AddError(fmt.Sprintf("commits[%d]: unexpected error: %v", i, err))
		case step.Expect != "" && code != step.Expect:
			got := "success"
			if err != nil {
				got = err.Error()
			}
			result.AddError(fmt.Sprintf("commits[%d]: expected %s, got %s", i, step.Expect, got))
		}
	}
	return nil
}

func (h *Harness) exportCSV(ctx context.Context, name string) ([]byte, error) {
	exp, err := h.query.ExperimentByName(ctx, name)
	if err != nil {
		return nil, err
	}
	rows, err := h.query.ExperimentData(ctx, exp.ID, query.All)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func errorCode(err error) string {
	if err == nil {
		return ""
	}
	var te *telemetry.Error
	if errors.As(err, &te) {
		return string(te.Code)
	}
	return "ERROR"
}
