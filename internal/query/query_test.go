package query

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asaldivar93/reactors-czlab/internal/commit"
	"github.com/asaldivar93/reactors-czlab/internal/registry"
	"github.com/asaldivar93/reactors-czlab/internal/resolver"
	"github.com/asaldivar93/reactors-czlab/internal/store"
	"github.com/asaldivar93/reactors-czlab/internal/telemetry"
	"github.com/asaldivar93/reactors-czlab/internal/testutil"
)

var t0 = time.Date(2024, 1, 2, 3, 4, 5, 678_000_000, time.UTC)

type fixture struct {
	store  *store.Store
	engine *commit.Engine
	clock  *testutil.DeterministicClock
	q      *Querier
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	s, err := store.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	reg := registry.Default()
	require.NoError(t, s.EnsureSchema(context.Background(), reg))

	clock := testutil.NewDeterministicClock(t0)
	r := resolver.New(s, resolver.WithClock(clock), resolver.WithRunIDGenerator(testutil.FixedRunID("")))
	return &fixture{
		store:  s,
		engine: commit.New(reg, r, s),
		clock:  clock,
		q:      New(s, reg, append([]Option{WithClock(clock)}, opts...)...),
	}
}

func (f *fixture) commit(t *testing.T, experiment, reactor string, ts time.Time, m telemetry.Measurement) telemetry.CommitResult {
	t.Helper()
	res, err := f.engine.Commit(context.Background(), reactor, experiment, ts, m)
	require.NoError(t, err)
	return res
}

func scalar(model string, v float64, units string) telemetry.Measurement {
	return telemetry.Measurement{Model: model, Value: telemetry.ScalarValue(v), Units: units}
}

func TestLatest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.commit(t, "exp-A", "R1", t0, scalar("analog", 23.5, "C"))
	f.commit(t, "exp-A", "R1", t0.Add(time.Second), telemetry.Measurement{Model: "analog", Value: telemetry.ScalarValue(24), Units: "C", Calibration: "cal-2024-01"})

	rec, err := f.q.Latest(ctx, res.ExperimentID, "R1", "analog")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 24.0, rec.Value.Scalar)
	assert.Equal(t, "cal-2024-01", rec.Calibration)

	none, err := f.q.Latest(ctx, res.ExperimentID, "R2", "analog")
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = f.q.Latest(ctx, res.ExperimentID, "R1", "spectro")
	assert.True(t, telemetry.IsUnknownModel(err))
}

func TestSeries_ReactorLabelTrimmed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.commit(t, "exp-A", " R1 ", t0, scalar("analog", 23.5, "C"))

	rec, err := f.q.Latest(ctx, res.ExperimentID, " R1 ", "analog")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "R1", rec.Reactor)

	rows, err := Collect(f.q.History(ctx, res.ExperimentID, "R1\t", "analog", nil))
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestLatest_TieBrokenByRowID(t *testing.T) {
	f := newFixture(t)

	f.commit(t, "exp-A", "R1", t0, scalar("digital", 0, "bool"))
	res := f.commit(t, "exp-A", "R1", t0, scalar("digital", 1, "bool"))

	rec, err := f.q.Latest(context.Background(), res.ExperimentID, "R1", "digital")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, res.RowID, rec.ID)
}

func TestHistory_OrderedAndRestartable(t *testing.T) {
	f := newFixture(t, WithPageSize(2))
	ctx := context.Background()

	var expID int64
	for _, off := range []int{4, 0, 2, 1, 3} {
		res := f.commit(t, "exp-A", "R1", t0.Add(time.Duration(off)*time.Second), scalar("arcph", float64(off), "pH"))
		expID = res.ExperimentID
	}

	seq := f.q.History(ctx, expID, "R1", "arcph", nil)
	first, err := Collect(seq)
	require.NoError(t, err)
	second, err := Collect(seq)
	require.NoError(t, err)

	require.Len(t, first, 5)
	assert.Equal(t, first, second)
	for i, rec := range first {
		assert.Equal(t, float64(i), rec.Value.Scalar)
	}
}

func TestHistory_Since(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var expID int64
	for i := 0; i < 4; i++ {
		expID = f.commit(t, "exp-A", "R1", t0.Add(time.Duration(i)*time.Minute), scalar("analog", float64(i), "C")).ExperimentID
	}

	since := t0.Add(2 * time.Minute)
	recs, err := Collect(f.q.History(ctx, expID, "R1", "analog", &since))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.True(t, recs[0].Timestamp.Equal(since))
}

func TestHistory_UnknownModel(t *testing.T) {
	f := newFixture(t)
	_, err := Collect(f.q.History(context.Background(), 1, "R1", "nope", nil))
	assert.True(t, telemetry.IsUnknownModel(err))
}

func TestHistory_EmptyIsFinite(t *testing.T) {
	f := newFixture(t)
	recs, err := Collect(f.q.History(context.Background(), 1, "R1", "analog", nil))
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestExperimentData_Window(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	expID := f.commit(t, "exp-A", "R1", t0.Add(-3*time.Hour), scalar("analog", 1, "C")).ExperimentID
	f.commit(t, "exp-A", "R1", t0.Add(-30*time.Minute), scalar("visiferm", 40, "%"))
	f.commit(t, "exp-A", "R2", t0.Add(-10*time.Minute), telemetry.Measurement{Model: "biomass", Value: telemetry.VectorValue(0, 1, 2, 3, 4, 5, 6, 7, 8, 9), Units: "counts"})
	f.commit(t, "exp-B", "R1", t0.Add(-time.Minute), scalar("analog", 99, "C"))

	all, err := f.q.ExperimentData(ctx, expID, All)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"analog", "visiferm", "biomass"}, []string{all[0].Table, all[1].Table, all[2].Table})

	w, err := ParseWindow("1h")
	require.NoError(t, err)
	recent, err := f.q.ExperimentData(ctx, expID, w)
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	_, err = f.q.ExperimentData(ctx, 999, All)
	assert.True(t, telemetry.IsNotFound(err))
}

func TestExperimentLookups(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.q.LatestExperiment(ctx)
	assert.True(t, telemetry.IsNotFound(err))

	a := f.commit(t, "exp-A", "R1", t0, scalar("analog", 1, "C")).ExperimentID
	b := f.commit(t, "exp-B", "R1", t0, scalar("analog", 1, "C")).ExperimentID

	latest, err := f.q.LatestExperiment(ctx)
	require.NoError(t, err)
	assert.Equal(t, b, latest.ID)

	byName, err := f.q.ExperimentByName(ctx, " exp-A ")
	require.NoError(t, err)
	assert.Equal(t, a, byName.ID)
	assert.Equal(t, []string{"R1"}, byName.Reactors)
	assert.Equal(t, "test-run", byName.RunID)

	byID, err := f.q.Experiment(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, "exp-B", byID.Name)

	list, err := f.q.Experiments(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
