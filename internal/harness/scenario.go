package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/asaldivar93/reactors-czlab/internal/telemetry"
)

// DefaultStart is the scenario clock when "start" is omitted.
const DefaultStart = "2024-01-02T00:00:00Z"

// Scenario is one commit scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Registry is an optional CUE registry file, relative to the scenario.
	// The built-in registry is used when empty.
	Registry string `yaml:"registry,omitempty"`

	// Start is the RFC 3339 clock reading experiments are created at.
	Start string `yaml:"start,omitempty"`

	// RunID is stamped on created experiments. Defaults to "test-run".
	RunID string `yaml:"run_id,omitempty"`

	// Experiments pre-declares reactor sets and volumes.
	Experiments map[string]ExperimentInfo `yaml:"experiments,omitempty"`

	// Commits run in order.
	Commits []CommitStep `yaml:"commits"`

	// Assertions run after all commits.
	Assertions []Assertion `yaml:"assertions,omitempty"`

	// Export names an experiment whose full CSV is captured in the result.
	Export string `yaml:"export,omitempty"`
}

// ExperimentInfo mirrors the config file's experiment entry.
type ExperimentInfo struct {
	Reactors []string `yaml:"reactors,omitempty"`
	Volume   *float64 `yaml:"volume,omitempty"`
}

// CommitStep is one Commit call.
type CommitStep struct {
	Experiment  string `yaml:"experiment"`
	Reactor     string `yaml:"reactor"`
	At          string `yaml:"at,omitempty"`
	Model       string `yaml:"model"`
	Value       any    `yaml:"value"`
	Units       string `yaml:"units,omitempty"`
	Calibration string `yaml:"calibration,omitempty"`

	// Expect is the error code this commit must fail with. Empty means
	// it must succeed.
	Expect string `yaml:"expect,omitempty"`
}

// Assertion checks stored state after the commits.
type Assertion struct {
	Type        string  `yaml:"type"`
	Experiment  string  `yaml:"experiment,omitempty"`
	Reactor     string  `yaml:"reactor,omitempty"`
	Model       string  `yaml:"model,omitempty"`
	Value       any     `yaml:"value,omitempty"`
	Calibration *string `yaml:"calibration,omitempty"`
	Values      []any   `yaml:"values,omitempty"`
	Count       *int    `yaml:"count,omitempty"`
	Absent      bool    `yaml:"absent,omitempty"`
}

// Assertion type constants.
const (
	AssertLatest          = "latest"
	AssertHistory         = "history"
	AssertRowCount        = "row_count"
	AssertExperimentCount = "experiment_count"
)

var errorCodes = map[string]bool{
	string(telemetry.ErrCodeUnknownModel):        true,
	string(telemetry.ErrCodeShapeMismatch):       true,
	string(telemetry.ErrCodeInvalid):             true,
	string(telemetry.ErrCodePersistence):         true,
	string(telemetry.ErrCodeDuplicateExperiment): true,
	string(telemetry.ErrCodeNotFound):            true,
}

// LoadScenario reads and parses a scenario YAML file. A relative registry
// path is resolved against the scenario's directory.
// Returns an error if the file doesn't exist, is malformed, contains
// unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	if scenario.Registry != "" && !filepath.IsAbs(scenario.Registry) {
		scenario.Registry = filepath.Join(filepath.Dir(path), scenario.Registry)
	}
	return scenario, nil
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Commits) == 0 {
		return fmt.Errorf("commits list is required and must be non-empty")
	}
	if _, err := s.startTime(); err != nil {
		return err
	}

	for i, c := range s.Commits {
		if c.Model == "" {
			return fmt.Errorf("commits[%d]: model is required", i)
		}
		if c.Value == nil {
			return fmt.Errorf("commits[%d]: value is required", i)
		}
		if c.Expect != "" && !errorCodes[c.Expect] {
			return fmt.Errorf("commits[%d]: unknown error code %q", i, c.Expect)
		}
	}

	for i, a := range s.Assertions {
		switch a.Type {
		case AssertLatest, AssertHistory:
			if a.Experiment == "" || a.Reactor == "" || a.Model == "" {
				return fmt.Errorf("assertions[%d]: %s needs experiment, reactor and model", i, a.Type)
			}
		case AssertRowCount:
			if a.Model == "" || a.Count == nil {
				return fmt.Errorf("assertions[%d]: row_count needs model and count", i)
			}
		case AssertExperimentCount:
			if a.Count == nil {
				return fmt.Errorf("assertions[%d]: experiment_count needs count", i)
			}
		default:
			return fmt.Errorf("assertions[%d]: unknown assertion type %q", i, a.Type)
		}
	}
	return nil
}

func (s *Scenario) startTime() (time.Time, error) {
	start := s.Start
	if start == "" {
		start = DefaultStart
	}
	t, err := time.Parse(time.RFC3339Nano, start)
	if err != nil {
		return time.Time{}, fmt.Errorf("start: %w", err)
	}
	return t.UTC(), nil
}

// timestamp resolves a step's "at" against start.
func (c CommitStep) timestamp(start time.Time) (time.Time, error) {
	at := strings.TrimSpace(c.At)
	if at == "" {
		return start, nil
	}
	if d, err := time.ParseDuration(strings.TrimPrefix(at, "+")); err == nil {
		return start.Add(d), nil
	}
	t, err := time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return time.Time{}, fmt.Errorf("at %q is neither a duration nor an RFC 3339 time", c.At)
	}
	return t, nil
}

// toValue converts a YAML number or integer list to a telemetry.Value.
func toValue(v any) (telemetry.Value, error) {
	switch x := v.(type) {
	case int:
		return telemetry.ScalarValue(float64(x)), nil
	case float64:
		return telemetry.ScalarValue(x), nil
	case []any:
		channels := make([]int64, len(x))
		for i, e := range x {
			n, ok := e.(int)
			if !ok {
				return telemetry.Value{}, fmt.Errorf("vector element %d is %T, want integer", i, e)
			}
			channels[i] = int64(n)
		}
		return telemetry.VectorValue(channels...), nil
	default:
		return telemetry.Value{}, fmt.Errorf("value %v (%T) is neither a number nor a list", v, v)
	}
}
