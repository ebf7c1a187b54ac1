package telemetry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Value is either a single float reading or a fixed-length vector of
// integer channels. A non-nil Vector marks the vector form.
type Value struct {
	Scalar float64
	Vector []int64
}

// ScalarValue returns a scalar Value.
func ScalarValue(f float64) Value {
	return Value{Scalar: f}
}

// VectorValue returns a vector Value. The slice is copied.
func VectorValue(channels ...int64) Value {
	v := make([]int64, len(channels))
	copy(v, channels)
	return Value{Vector: v}
}

// IsVector reports whether v holds a vector.
func (v Value) IsVector() bool {
	return v.Vector != nil
}

// Equal reports whether two values have the same shape and content.
func (v Value) Equal(o Value) bool {
	if v.IsVector() != o.IsVector() {
		return false
	}
	if !v.IsVector() {
		return v.Scalar == o.Scalar
	}
	if len(v.Vector) != len(o.Vector) {
		return false
	}
	for i := range v.Vector {
		if v.Vector[i] != o.Vector[i] {
			return false
		}
	}
	return true
}

// String renders scalars with the shortest exact float form and vectors
// as space separated channels in brackets.
func (v Value) String() string {
	if !v.IsVector() {
		return strconv.FormatFloat(v.Scalar, 'g', -1, 64)
	}
	parts := make([]string, len(v.Vector))
	for i, c := range v.Vector {
		parts[i] = strconv.FormatInt(c, 10)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// MarshalJSON encodes scalars as numbers and vectors as arrays.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.IsVector() {
		return json.Marshal(v.Vector)
	}
	if math.IsNaN(v.Scalar) || math.IsInf(v.Scalar, 0) {
		return nil, fmt.Errorf("marshal value: non-finite scalar %v", v.Scalar)
	}
	return json.Marshal(v.Scalar)
}

// UnmarshalJSON accepts a number or an array of integers. null is an
// error: a reading with no value must not decode as zero.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return errors.New("unmarshal value: value is null")
	}
	if len(data) > 0 && data[0] == '[' {
		var channels []int64
		if err := json.Unmarshal(data, &channels); err != nil {
			return fmt.Errorf("unmarshal vector value: %w", err)
		}
		if channels == nil {
			channels = []int64{}
		}
		*v = Value{Vector: channels}
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("unmarshal scalar value: %w", err)
	}
	*v = Value{Scalar: f}
	return nil
}

// Measurement is one channel reading handed to the commit layer.
// Calibration is empty when no calibration routine has run yet.
type Measurement struct {
	Model       string `json:"model"`
	Value       Value  `json:"value"`
	Units       string `json:"units"`
	Calibration string `json:"calibration,omitempty"`
}

// Experiment is a named run grouping one or more reactors.
type Experiment struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	RunDate   string    `json:"run_date"`
	CreatedAt time.Time `json:"created_at"`
	Reactors  []string  `json:"reactors,omitempty"`
	Volume    *float64  `json:"volume,omitempty"`
	RunID     string    `json:"run_id,omitempty"`
}

// Record is a committed measurement row as read back from storage.
type Record struct {
	ID           int64     `json:"id"`
	ExperimentID int64     `json:"experiment_id"`
	Timestamp    time.Time `json:"date"`
	Reactor      string    `json:"reactor"`
	Kind         string    `json:"kind"`
	Table        string    `json:"table"`
	Calibration  string    `json:"calibration,omitempty"`
	Value        Value     `json:"value"`
	Units        string    `json:"units"`
}

// CommitResult identifies the row written by a commit.
type CommitResult struct {
	RowID        int64  `json:"row_id"`
	ExperimentID int64  `json:"experiment_id"`
	Kind         string `json:"kind"`
	Table        string `json:"table"`
}

// ToMillis converts t to Unix milliseconds.
func ToMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// FromMillis converts Unix milliseconds to a UTC time.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// Truncate drops sub-millisecond precision and normalizes to UTC.
func Truncate(t time.Time) time.Time {
	return FromMillis(ToMillis(t))
}

// RunDate returns the UTC calendar date used to scope experiment names.
func RunDate(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}
