package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/asaldivar93/reactors-czlab/internal/query"
	"github.com/asaldivar93/reactors-czlab/internal/telemetry"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Index    int
	Type     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "assertions[%d] failed: %s\n", e.Index, e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// evaluateAssertions returns one message per failed assertion.
func (h *Harness) evaluateAssertions(ctx context.Context, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertLatest:
			err = h.assertLatest(ctx, a)
		case AssertHistory:
			err = h.assertHistory(ctx, a)
		case AssertRowCount:
			err = h.assertRowCount(ctx, a)
		case AssertExperimentCount:
			err = h.assertExperimentCount(ctx, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			if ae, ok := err.(*AssertionError); ok {
				ae.Index = i
				failures = append(failures, ae.Error())
				continue
			}
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

func (h *Harness) assertLatest(ctx context.Context, a Assertion) error {
	exp, err := h.query.ExperimentByName(ctx, a.Experiment)
	if err != nil {
		return err
	}
	rec, err := h.query.Latest(ctx, exp.ID, a.Reactor, a.Model)
	if err != nil {
		return err
	}

	series := fmt.Sprintf("%s/%s/%s", a.Experiment, a.Reactor, a.Model)
	if a.Absent {
		if rec != nil {
			return &AssertionError{Type: a.Type, Expected: series + " has no rows", Actual: "value " + rec.Value.String()}
		}
		return nil
	}
	if rec == nil {
		return &AssertionError{Type: a.Type, Expected: series + " has a row", Actual: "no rows"}
	}
	if a.Value != nil {
		want, err := toValue(a.Value)
		if err != nil {
			return err
		}
		if !want.Equal(rec.Value) {
			return &AssertionError{Type: a.Type, Expected: "value " + want.String(), Actual: "value " + rec.Value.String()}
		}
	}
	if a.Calibration != nil && *a.Calibration != rec.Calibration {
		return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("calibration %q", *a.Calibration), Actual: fmt.Sprintf("calibration %q", rec.Calibration)}
	}
	return nil
}

func (h *Harness) assertHistory(ctx context.Context, a Assertion) error {
	exp, err := h.query.ExperimentByName(ctx, a.Experiment)
	if err != nil {
		return err
	}
	rows, err := query.Collect(h.query.History(ctx, exp.ID, a.Reactor, a.Model, nil))
	if err != nil {
		return err
	}

	want := make([]string, len(a.Values))
	for i, v := range a.Values {
		val, err := toValue(v)
		if err != nil {
			return err
		}
		want[i] = val.String()
	}
	got := make([]string, len(rows))
	for i, r := range rows {
		got[i] = r.Value.String()
	}
	if strings.Join(want, ",") != strings.Join(got, ",") {
		return &AssertionError{Type: a.Type, Expected: "[" + strings.Join(want, ", ") + "]", Actual: "[" + strings.Join(got, ", ") + "]"}
	}
	return nil
}

func (h *Harness) assertRowCount(ctx context.Context, a Assertion) error {
	c, err := h.registry.Lookup(a.Model)
	if err != nil {
		return err
	}
	var experimentID int64
	if a.Experiment != "" {
		exp, err := h.query.ExperimentByName(ctx, a.Experiment)
		switch {
		case telemetry.IsNotFound(err):
			return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%d %s rows", *a.Count, c.Table), Actual: "experiment " + a.Experiment + " does not exist"}
		case err != nil:
			return err
		}
		experimentID = exp.ID
	}
	n, err := h.store.CountRows(ctx, c, experimentID)
	if err != nil {
		return err
	}
	if n != int64(*a.Count) {
		return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%d %s rows", *a.Count, c.Table), Actual: fmt.Sprintf("%d", n)}
	}
	return nil
}

func (h *Harness) assertExperimentCount(ctx context.Context, a Assertion) error {
	all, err := h.query.Experiments(ctx)
	if err != nil {
		return err
	}
	if len(all) != *a.Count {
		return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%d experiments", *a.Count), Actual: fmt.Sprintf("%d", len(all))}
	}
	return nil
}
