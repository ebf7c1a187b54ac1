package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asaldivar93/reactors-czlab/internal/telemetry"
)

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{context.Canceled, "canceled"},
		{fmt.Errorf("commit: %w", context.DeadlineExceeded), "canceled"},
		{telemetry.NewUnknownModel("x"), "unknown_model"},
		{telemetry.NewShapeMismatch("biomass", "short"), "shape_mismatch"},
		{telemetry.NewInvalid("empty reactor"), "invalid_measurement"},
		{telemetry.NewPersistence("insert", errors.New("locked")), "persistence"},
		{errors.New("plain"), "error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Outcome(tt.err), "Outcome(%v)", tt.err)
	}
}

func TestObserveCommit(t *testing.T) {
	m := New()

	m.ObserveCommit("analog", 2*time.Millisecond, nil)
	m.ObserveCommit("analog", time.Millisecond, nil)
	m.ObserveCommit("biomass", time.Millisecond, telemetry.NewShapeMismatch("biomass", "short"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.commits.WithLabelValues("analog", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commits.WithLabelValues("biomass", "shape_mismatch")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.commitDuration))
}

func TestExperimentCreatedAndQueueDepth(t *testing.T) {
	m := New()
	m.ExperimentCreated()
	m.ExperimentCreated()
	m.SetQueueDepth(7)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.experimentsCreated))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.queueDepth))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveCommit("analog", time.Millisecond, nil)
		m.ExperimentCreated()
		m.SetQueueDepth(1)
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveCommit("arcph", time.Millisecond, nil)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	out := string(body)
	assert.True(t, strings.Contains(out, `reactorlog_commits_total{kind="arcph",outcome="ok"} 1`), out)
	assert.Contains(t, out, "reactorlog_commit_duration_seconds_bucket")
	assert.Contains(t, out, "go_goroutines")
}
