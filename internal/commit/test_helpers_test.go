package commit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/asaldivar93/reactors-czlab/internal/metrics"
	"github.com/asaldivar93/reactors-czlab/internal/registry"
	"github.com/asaldivar93/reactors-czlab/internal/resolver"
	"github.com/asaldivar93/reactors-czlab/internal/store"
	"github.com/asaldivar93/reactors-czlab/internal/telemetry"
	"github.com/asaldivar93/reactors-czlab/internal/testutil"
)

var t0 = time.Date(2024, 1, 2, 3, 4, 5, 678_000_000, time.UTC)

type fixture struct {
	store    *store.Store
	resolver *resolver.Resolver
	metrics  *metrics.Metrics
	engine   *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	reg := registry.Default()
	require.NoError(t, s.EnsureSchema(context.Background(), reg))

	m := metrics.New()
	r := resolver.New(s,
		resolver.WithClock(testutil.NewDeterministicClock(t0)),
		resolver.WithRunIDGenerator(testutil.FixedRunID("run-1")),
		resolver.WithCreateHook(func(telemetry.Experiment) { m.ExperimentCreated() }),
	)
	return &fixture{
		store:    s,
		resolver: r,
		metrics:  m,
		engine:   New(reg, r, s, WithMetrics(m)),
	}
}

func (f *fixture) count(t *testing.T, kind string) int64 {
	t.Helper()
	c, err := registry.Default().Lookup(kind)
	require.NoError(t, err)
	n, err := f.store.CountRows(context.Background(), c, 0)
	require.NoError(t, err)
	return n
}

func (f *fixture) experiments(t *testing.T) int {
	t.Helper()
	all, err := f.store.Experiments(context.Background())
	require.NoError(t, err)
	return len(all)
}

func analog(v float64, cal string) telemetry.Measurement {
	return telemetry.Measurement{Model: "analog", Value: telemetry.ScalarValue(v), Units: "C", Calibration: cal}
}

func biomass(channels ...int64) telemetry.Measurement {
	return telemetry.Measurement{Model: "biomass", Value: telemetry.VectorValue(channels...), Units: "counts"}
}
