package query

import (
	"context"
	"iter"
	"strings"
	"time"

	"github.com/asaldivar93/reactors-czlab/internal/registry"
	"github.com/asaldivar93/reactors-czlab/internal/resolver"
	"github.com/asaldivar93/reactors-czlab/internal/store"
	"github.com/asaldivar93/reactors-czlab/internal/telemetry"
)

// Clock supplies "now" for time windows.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Querier answers read queries against a store.
type Querier struct {
	store    *store.Store
	registry *registry.Registry
	clock    Clock
	pageSize int
}

// Option configures a Querier.
type Option func(*Querier)

// WithClock sets the clock windows are measured against.
func WithClock(c Clock) Option {
	return func(q *Querier) { q.clock = c }
}

// WithPageSize sets how many rows History fetches per query.
func WithPageSize(n int) Option {
	return func(q *Querier) { q.pageSize = n }
}

// New creates a Querier.
func New(s *store.Store, reg *registry.Registry, opts ...Option) *Querier {
	q := &Querier{
		store:    s,
		registry: reg,
		clock:    systemClock{},
		pageSize: store.DefaultPageSize,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Latest returns the most recent row of the series by timestamp, ties
// broken by highest row id. Returns nil, nil when the series is empty.
// The reactor label is trimmed the same way Commit trims it.
func (q *Querier) Latest(ctx context.Context, experimentID int64, reactor, model string) (*telemetry.Record, error) {
	c, err := q.registry.Lookup(model)
	if err != nil {
		return nil, err
	}
	return q.store.Latest(ctx, c, experimentID, strings.TrimSpace(reactor))
}

// History returns the series in ascending (timestamp, id) order. since,
// when non-nil, is inclusive. The sequence is lazy and restartable: each
// range runs the query again from the start.
//
// An unknown model yields a single UNKNOWN_MODEL error.
func (q *Querier) History(ctx context.Context, experimentID int64, reactor, model string, since *time.Time) iter.Seq2[telemetry.Record, error] {
	c, err := q.registry.Lookup(model)
	if err != nil {
		return func(yield func(telemetry.Record, error) bool) {
			yield(telemetry.Record{}, err)
		}
	}
	return q.store.History(ctx, c, experimentID, strings.TrimSpace(reactor), since, q.pageSize)
}

// ExperimentData returns every row of every registered kind for the
// experiment within the window, ordered by (timestamp, table, id).
func (q *Querier) ExperimentData(ctx context.Context, experimentID int64, window Window) ([]telemetry.Record, error) {
	if _, err := q.store.Experiment(ctx, experimentID); err != nil {
		return nil, err
	}
	return q.store.ExperimentRows(ctx, q.registry.Contracts(), experimentID, window.Since(q.clock.Now()))
}

// Experiment returns the experiment with the given id.
func (q *Querier) Experiment(ctx context.Context, id int64) (telemetry.Experiment, error) {
	return q.store.Experiment(ctx, id)
}

// ExperimentByName returns the most recent run of the named experiment.
func (q *Querier) ExperimentByName(ctx context.Context, name string) (telemetry.Experiment, error) {
	return q.store.ExperimentByName(ctx, resolver.Normalize(name))
}

// LatestExperiment returns the experiment with the highest id.
func (q *Querier) LatestExperiment(ctx context.Context) (telemetry.Experiment, error) {
	return q.store.LatestExperiment(ctx)
}

// Experiments lists every experiment ordered by id.
func (q *Querier) Experiments(ctx context.Context) ([]telemetry.Experiment, error) {
	return q.store.Experiments(ctx)
}

// Collect drains a History sequence into a slice.
func Collect(seq iter.Seq2[telemetry.Record, error]) ([]telemetry.Record, error) {
	out := []telemetry.Record{}
	for rec, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
