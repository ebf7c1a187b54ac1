package harness

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_WorkedExample(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "worked_example.yaml"))
	require.NoError(t, err)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Commits, 4)
	assert.Equal(t, "analog", result.Commits[0].Table)
	assert.Equal(t, result.Commits[0].ExperimentID, result.Commits[3].ExperimentID)
	assert.Empty(t, result.Commits[0].Code)
}

func TestRun_ExpectationMismatch(t *testing.T) {
	scenario := &Scenario{
		Name:        "mismatch",
		Description: "expects a failure that does not happen",
		Commits: []CommitStep{
			{Experiment: "e", Reactor: "R1", Model: "analog", Value: 1.0, Units: "C", Expect: "UNKNOWN_MODEL"},
			{Experiment: "e", Reactor: "R1", Model: "nope", Value: 1.0, Units: "C"},
		},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "expected UNKNOWN_MODEL, got success")
	assert.Contains(t, result.Errors[1], "unexpected error")
	assert.Equal(t, "UNKNOWN_MODEL", result.Commits[1].Code)
}

func TestRun_FailedAssertions(t *testing.T) {
	two := 2
	cal := "cal-x"
	scenario := &Scenario{
		Name:        "failing",
		Description: "every assertion is wrong",
		Commits: []CommitStep{
			{Experiment: "e", Reactor: "R1", Model: "analog", Value: 1.0, Units: "C"},
		},
		Assertions: []Assertion{
			{Type: AssertLatest, Experiment: "e", Reactor: "R1", Model: "analog", Value: 2.0},
			{Type: AssertLatest, Experiment: "e", Reactor: "R1", Model: "analog", Calibration: &cal},
			{Type: AssertHistory, Experiment: "e", Reactor: "R1", Model: "analog", Values: []any{1.0, 2.0}},
			{Type: AssertRowCount, Model: "analog", Count: &two},
			{Type: AssertExperimentCount, Count: &two},
			{Type: AssertLatest, Experiment: "e", Reactor: "R2", Model: "analog"},
		},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 6)
	assert.Contains(t, result.Errors[0], "Expected: value 2")
	assert.Contains(t, result.Errors[0], "Actual: value 1")
	assert.Contains(t, result.Errors[2], "[1, 2]")
	assert.Contains(t, result.Errors[5], "no rows")
}

func TestRun_CustomRegistry(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "kinds.cue"), []byte(`
kinds: {
	ph: {table: "ph_probe"}
}
`), 0o644))

	one := 1
	scenario := &Scenario{
		Name:        "custom",
		Description: "registry from CUE",
		Registry:    filepath.Join(dir, "kinds.cue"),
		Commits: []CommitStep{
			{Experiment: "e", Reactor: "R1", Model: "ph", Value: 7, Units: "pH"},
			{Experiment: "e", Reactor: "R1", Model: "analog", Value: 1, Units: "C", Expect: "UNKNOWN_MODEL"},
		},
		Assertions: []Assertion{
			{Type: AssertRowCount, Model: "ph", Count: &one},
		},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "ph_probe", result.Commits[0].Table)
}

func TestRun_BadRegistry(t *testing.T) {
	scenario := &Scenario{
		Name:        "bad",
		Description: "registry file missing",
		Registry:    filepath.Join(t.TempDir(), "missing.cue"),
		Commits:     []CommitStep{{Model: "analog", Value: 1}},
	}
	_, err := Run(context.Background(), scenario)
	assert.Error(t, err)
}
