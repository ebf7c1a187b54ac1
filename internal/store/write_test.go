package store

import (
	"context"
	"testing"

	"github.com/asaldivar93/reactors-czlab/internal/telemetry"
)

func TestInsert_ScalarWithCalibration(t *testing.T) {
	s := createTestStore(t)
	exp := createTestExperiment(t, s, "exp")
	analog := mustContract(t, "analog")

	id := mustInsert(t, s, analog, Row{
		ExperimentID: exp,
		Timestamp:    t0,
		Reactor:      "R1",
		Calibration:  "cal-2024-01",
		Value:        telemetry.ScalarValue(24.0),
		Units:        "C",
	})
	if id <= 0 {
		t.Errorf("id = %d, want > 0", id)
	}

	var calibration string
	var value float64
	var date int64
	err := s.db.QueryRow("SELECT calibration, value, date FROM analog WHERE id = ?", id).Scan(&calibration, &value, &date)
	if err != nil {
		t.Fatal(err)
	}
	if calibration != "cal-2024-01" || value != 24.0 || date != t0.UnixMilli() {
		t.Errorf("row = (%q, %v, %d)", calibration, value, date)
	}
}

func TestInsert_NullCalibration(t *testing.T) {
	s := createTestStore(t)
	exp := createTestExperiment(t, s, "exp")
	analog := mustContract(t, "analog")

	id := mustInsert(t, s, analog, Row{ExperimentID: exp, Timestamp: t0, Reactor: "R1", Value: telemetry.ScalarValue(1), Units: "C"})

	var isNull bool
	if err := s.db.QueryRow("SELECT calibration IS NULL FROM analog WHERE id = ?", id).Scan(&isNull); err != nil {
		t.Fatal(err)
	}
	if !isNull {
		t.Error("empty calibration should be stored as NULL")
	}
}

func TestInsert_AppendOnly(t *testing.T) {
	s := createTestStore(t)
	exp := createTestExperiment(t, s, "exp")
	arcph := mustContract(t, "arcph")
	r := Row{ExperimentID: exp, Timestamp: t0, Reactor: "R1", Value: telemetry.ScalarValue(7.1), Units: "pH"}

	a := mustInsert(t, s, arcph, r)
	b := mustInsert(t, s, arcph, r)
	if a == b {
		t.Error("identical readings should produce distinct rows")
	}
	n, err := s.CountRows(context.Background(), arcph, exp)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("rows = %d, want 2", n)
	}
}

func TestInsert_Vector(t *testing.T) {
	s := createTestStore(t)
	exp := createTestExperiment(t, s, "exp")
	biomass := mustContract(t, "biomass")
	vec := telemetry.VectorValue(10, 11, 12, 13, 14, 15, 16, 17, 18, 19)

	mustInsert(t, s, biomass, Row{ExperimentID: exp, Timestamp: t0, Reactor: "R1", Value: vec, Units: "counts"})

	rec, err := s.Latest(context.Background(), biomass, exp, "R1")
	if err != nil {
		t.Fatal(err)
	}
	if rec == nil || !rec.Value.Equal(vec) {
		t.Errorf("latest = %+v, want vector %v", rec, vec)
	}
}

func TestInsert_WrongVectorLength(t *testing.T) {
	s := createTestStore(t)
	exp := createTestExperiment(t, s, "exp")
	biomass := mustContract(t, "biomass")

	_, err := s.Insert(context.Background(), biomass, Row{ExperimentID: exp, Timestamp: t0, Reactor: "R1", Value: telemetry.VectorValue(1, 2), Units: "counts"})
	if !telemetry.IsShapeMismatch(err) {
		t.Errorf("expected SHAPE_MISMATCH, got %v", err)
	}
}

func TestInsert_ForeignKeyEnforced(t *testing.T) {
	s := createTestStore(t)
	analog := mustContract(t, "analog")

	_, err := s.Insert(context.Background(), analog, Row{ExperimentID: 999, Timestamp: t0, Reactor: "R1", Value: telemetry.ScalarValue(1), Units: "C"})
	if !telemetry.IsPersistence(err) {
		t.Errorf("expected PERSISTENCE for dangling experiment_id, got %v", err)
	}
}
