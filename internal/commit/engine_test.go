package commit

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asaldivar93/reactors-czlab/internal/registry"
	"github.com/asaldivar93/reactors-czlab/internal/store"
	"github.com/asaldivar93/reactors-czlab/internal/telemetry"
)

func TestCommit_WorkedExample(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	t1 := t0.Add(time.Second)

	first, err := f.engine.Commit(ctx, "R1", "exp-A", t0, analog(23.5, ""))
	require.NoError(t, err)
	second, err := f.engine.Commit(ctx, "R1", "exp-A", t1, analog(24.0, "cal-2024-01"))
	require.NoError(t, err)

	assert.Equal(t, first.ExperimentID, second.ExperimentID)
	assert.NotEqual(t, first.RowID, second.RowID)
	assert.Equal(t, "analog", second.Table)
	assert.Equal(t, "analog", second.Kind)
	assert.Equal(t, 1, f.experiments(t))

	c, err := registry.Default().Lookup("analog")
	require.NoError(t, err)

	latest, err := f.store.Latest(ctx, c, first.ExperimentID, "R1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 24.0, latest.Value.Scalar)
	assert.Equal(t, "cal-2024-01", latest.Calibration)
	assert.True(t, latest.Timestamp.Equal(t1))

	var rows []telemetry.Record
	for rec, err := range f.store.History(ctx, c, first.ExperimentID, "R1", nil, 0) {
		require.NoError(t, err)
		rows = append(rows, rec)
	}
	require.Len(t, rows, 2)
	assert.Equal(t, 23.5, rows[0].Value.Scalar)
	assert.Empty(t, rows[0].Calibration)
	assert.Equal(t, 24.0, rows[1].Value.Scalar)
}

func TestCommit_ReadYourWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := telemetry.Measurement{Model: "arcph", Value: telemetry.ScalarValue(7.02), Units: "pH"}

	res, err := f.engine.Commit(ctx, "R2", "exp-B", t0, m)
	require.NoError(t, err)

	c, err := registry.Default().Lookup("arcph")
	require.NoError(t, err)
	latest, err := f.store.Latest(ctx, c, res.ExperimentID, "R2")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, res.RowID, latest.ID)
	assert.True(t, latest.Value.Equal(m.Value))
	assert.Equal(t, "pH", latest.Units)
}

func TestCommit_UnknownModelWritesNothing(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Commit(context.Background(), "R1", "exp-A", t0, telemetry.Measurement{
		Model: "spectrometer", Value: telemetry.ScalarValue(1), Units: "au",
	})
	assert.True(t, telemetry.IsUnknownModel(err))
	assert.Equal(t, 0, f.experiments(t))
}

func TestCommit_ModelLookupIgnoresCase(t *testing.T) {
	f := newFixture(t)

	res, err := f.engine.Commit(context.Background(), "R1", "exp-A", t0, telemetry.Measurement{
		Model: " VisiFerm ", Value: telemetry.ScalarValue(35.2), Units: "%",
	})
	require.NoError(t, err)
	assert.Equal(t, "visiferm", res.Table)
}

func TestCommit_ShapeMismatchWritesNothing(t *testing.T) {
	tests := []struct {
		name string
		m    telemetry.Measurement
	}{
		{"vector on scalar table", telemetry.Measurement{Model: "analog", Value: telemetry.VectorValue(1, 2), Units: "C"}},
		{"scalar on vector table", telemetry.Measurement{Model: "biomass", Value: telemetry.ScalarValue(1), Units: "counts"}},
		{"short vector", biomass(1, 2, 3)},
		{"long vector", biomass(0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.engine.Commit(context.Background(), "R1", "exp-A", t0, tt.m)
			assert.True(t, telemetry.IsShapeMismatch(err), "got %v", err)
			assert.Equal(t, int64(0), f.count(t, tt.m.Model))
			assert.Equal(t, 0, f.experiments(t))
		})
	}
}

func TestCommit_InvalidMeasurement(t *testing.T) {
	tests := []struct {
		name    string
		reactor string
		ts      time.Time
		m       telemetry.Measurement
	}{
		{"NaN", "R1", t0, analog(math.NaN(), "")},
		{"Inf", "R1", t0, analog(math.Inf(1), "")},
		{"empty reactor", "  ", t0, analog(1, "")},
		{"zero timestamp", "R1", time.Time{}, analog(1, "")},
		{"epoch timestamp", "R1", time.UnixMilli(0), analog(1, "")},
		{"missing units", "R1", t0, telemetry.Measurement{Model: "digital", Value: telemetry.ScalarValue(1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.engine.Commit(context.Background(), tt.reactor, "exp-A", tt.ts, tt.m)
			assert.True(t, telemetry.IsInvalid(err), "got %v", err)
			assert.Equal(t, int64(0), f.count(t, tt.m.Model))
		})
	}
}

func TestCommit_EmptyExperimentName(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Commit(context.Background(), "R1", " ", t0, analog(1, ""))
	assert.True(t, telemetry.IsInvalid(err))
	assert.Equal(t, int64(0), f.count(t, "analog"))
}

func TestCommit_BiomassVector(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.engine.Commit(ctx, "R1", "exp-A", t0, biomass(0, 1, 2, 3, 4, 5, 6, 7, 8, 9))
	require.NoError(t, err)
	assert.Equal(t, "biomass", res.Table)

	c, err := registry.Default().Lookup("biomass")
	require.NoError(t, err)
	latest, err := f.store.Latest(ctx, c, res.ExperimentID, "R1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, []int64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, latest.Value.Vector)
	assert.Empty(t, latest.Calibration)
}

func TestCommit_CalibrationIgnoredWithoutColumn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.engine.Commit(ctx, "R1", "exp-A", t0, telemetry.Measurement{
		Model: "visiferm", Value: telemetry.ScalarValue(41.5), Units: "%", Calibration: "cal-x",
	})
	require.NoError(t, err)

	c, err := registry.Default().Lookup("visiferm")
	require.NoError(t, err)
	latest, err := f.store.Latest(ctx, c, res.ExperimentID, "R1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Empty(t, latest.Calibration)
}

func TestCommit_CancelledContextNoSideEffect(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.engine.Commit(ctx, "R1", "exp-A", t0, analog(1, ""))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, f.experiments(t))
	assert.Equal(t, int64(0), f.count(t, "analog"))
}

func TestCommit_ConcurrentFirstCommits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 24
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			_, err := f.engine.Commit(ctx, "R1", "exp-race", t0.Add(time.Duration(i)*time.Millisecond), analog(float64(i), ""))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, f.experiments(t))
	assert.Equal(t, int64(n), f.count(t, "analog"))
	assert.Equal(t, int64(1), f.resolver.Created())
}

func TestCommit_Metrics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Commit(ctx, "R1", "exp-A", t0, analog(1, ""))
	require.NoError(t, err)
	_, err = f.engine.Commit(ctx, "R1", "exp-A", t0, telemetry.Measurement{Model: "nope", Value: telemetry.ScalarValue(1), Units: "x"})
	require.Error(t, err)

	expected := `
# HELP reactorlog_commits_total Measurement commits by kind and outcome.
# TYPE reactorlog_commits_total counter
reactorlog_commits_total{kind="analog",outcome="ok"} 1
reactorlog_commits_total{kind="unknown",outcome="unknown_model"} 1
# HELP reactorlog_experiments_created_total Experiment rows inserted by this process.
# TYPE reactorlog_experiments_created_total counter
reactorlog_experiments_created_total 1
`
	err = promtest.GatherAndCompare(f.metrics.Registry(), strings.NewReader(expected),
		"reactorlog_commits_total", "reactorlog_experiments_created_total")
	assert.NoError(t, err)
}

type failingStore struct{ err error }

func (s failingStore) Insert(context.Context, registry.Contract, store.Row) (int64, error) {
	return 0, s.err
}

type stubResolver struct {
	id  int64
	err error
}

func (r stubResolver) Resolve(context.Context, string, string) (int64, error) {
	return r.id, r.err
}

func TestCommit_StoreFailure(t *testing.T) {
	storeErr := telemetry.NewPersistence("insert into analog", errors.New("database is locked"))
	e := New(registry.Default(), stubResolver{id: 1}, failingStore{err: storeErr})

	res, err := e.Commit(context.Background(), "R1", "exp-A", t0, analog(1, ""))
	assert.True(t, telemetry.IsPersistence(err))
	assert.Equal(t, int64(0), res.RowID)
	assert.Equal(t, int64(1), res.ExperimentID)
}

func TestCommit_ResolverErrorUnchanged(t *testing.T) {
	resolveErr := telemetry.NewPersistence("create experiment: begin tx", errors.New("unreachable"))
	e := New(registry.Default(), stubResolver{err: resolveErr}, failingStore{err: errors.New("must not be called")})

	_, err := e.Commit(context.Background(), "R1", "exp-A", t0, analog(1, ""))
	assert.Same(t, resolveErr, err)
}
