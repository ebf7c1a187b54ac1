package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/asaldivar93/reactors-czlab/internal/registry"
	"github.com/asaldivar93/reactors-czlab/internal/telemetry"
)

var t0 = time.Date(2024, 1, 2, 3, 4, 5, 678_000_000, time.UTC)

// createTestStore creates a new store in a temp directory with the default
// registry schema applied.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.EnsureSchema(context.Background(), registry.Default()); err != nil {
		t.Fatalf("EnsureSchema() failed: %v", err)
	}
	return s
}

// createTestExperiment inserts an experiment and returns its id.
func createTestExperiment(t *testing.T, s *Store, name string) int64 {
	t.Helper()
	e, _, err := s.CreateExperimentIfAbsent(context.Background(), telemetry.Experiment{
		Name:      name,
		RunDate:   telemetry.RunDate(t0),
		CreatedAt: t0,
	})
	if err != nil {
		t.Fatalf("CreateExperimentIfAbsent(%q) failed: %v", name, err)
	}
	return e.ID
}

func mustContract(t *testing.T, kind string) registry.Contract {
	t.Helper()
	c, err := registry.Default().Lookup(kind)
	if err != nil {
		t.Fatalf("Lookup(%q) failed: %v", kind, err)
	}
	return c
}

func mustInsert(t *testing.T, s *Store, c registry.Contract, r Row) int64 {
	t.Helper()
	id, err := s.Insert(context.Background(), c, r)
	if err != nil {
		t.Fatalf("Insert(%s) failed: %v", c.Table, err)
	}
	return id
}
