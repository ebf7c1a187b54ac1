package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// runCLI executes the root command with args and returns what it wrote to
// stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return runCLIWithInput(t, nil, args...)
}

// runCLIWithInput is runCLI with stdin.
func runCLIWithInput(t *testing.T, in io.Reader, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	if in != nil {
		cmd.SetIn(in)
	}
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// testDB returns a fresh SQLite path.
func testDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "reactors.db")
}

// mustCommit commits one measurement through the CLI.
func mustCommit(t *testing.T, db string, args ...string) {
	t.Helper()
	_, err := runCLI(t, append([]string{"--db", db, "commit"}, args...)...)
	require.NoError(t, err)
}

// seedWorkedExample commits the analog pair and the biomass vector of the
// worked example into experiment exp-A.
func seedWorkedExample(t *testing.T, db string) {
	t.Helper()
	mustCommit(t, db, "-e", "exp-A", "--reactor", "R1", "--model", "analog", "--value", "23.5", "--units", "C",
		"--at", "2024-01-02T03:04:05.678Z")
	mustCommit(t, db, "-e", "exp-A", "--reactor", "R1", "--model", "analog", "--value", "24.0", "--units", "C",
		"--calibration", "cal-2024-01", "--at", "2024-01-02T03:04:06.678Z")
	mustCommit(t, db, "-e", "exp-A", "--reactor", "R2", "--model", "biomass", "--value", "[0,1,2,3,4,5,6,7,8,9]",
		"--units", "counts", "--at", "2024-01-02T03:04:07.678Z")
}

// decodeData decodes the data field of a JSON CLIResponse into v.
func decodeData(t *testing.T, out string, v any) CLIResponse {
	t.Helper()
	var resp struct {
		CLIResponse
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	if v != nil {
		require.NoError(t, json.Unmarshal(resp.Data, v), out)
	}
	return resp.CLIResponse
}

func lines(s string) []string {
	return strings.Split(strings.TrimRight(s, "\n"), "\n")
}
