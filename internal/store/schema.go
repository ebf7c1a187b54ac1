package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/asaldivar93/reactors-czlab/internal/registry"
	"github.com/asaldivar93/reactors-czlab/internal/telemetry"
)

// SchemaStatements returns the DDL for the experiment table and every kind
// table in the registry. Statements are idempotent.
func SchemaStatements(d Driver, reg *registry.Registry) []string {
	stmts := []string{fmt.Sprintf(`CREATE TABLE IF NOT EXISTS experiment (
	id %s,
	name TEXT NOT NULL,
	run_date TEXT NOT NULL,
	created_at BIGINT NOT NULL,
	reactors TEXT,
	volume DOUBLE PRECISION,
	run_id TEXT NOT NULL DEFAULT '',
	UNIQUE (name, run_date)
)`, d.primaryKey())}

	for _, c := range reg.Contracts() {
		stmts = append(stmts, kindTableDDL(d, c),
			fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_lookup ON %s (experiment_id, reactor, date, id)", c.Table, c.Table))
	}
	return stmts
}

func kindTableDDL(d Driver, c registry.Contract) string {
	cols := []string{
		"id " + d.primaryKey(),
		"experiment_id BIGINT NOT NULL REFERENCES experiment (id) ON DELETE CASCADE",
		"date BIGINT NOT NULL",
		"reactor TEXT NOT NULL",
	}
	if c.Calibration {
		cols = append(cols, "calibration TEXT")
	}
	if c.Shape == registry.ShapeVector {
		for _, name := range registry.ValueColumns(c) {
			cols = append(cols, name+" BIGINT NOT NULL")
		}
	} else {
		cols = append(cols, "value DOUBLE PRECISION NOT NULL")
	}
	cols = append(cols, "units TEXT NOT NULL")

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", c.Table, strings.Join(cols, ",\n\t"))
}

// EnsureSchema creates the experiment table and one table per registered
// kind. This function is idempotent.
func (s *Store) EnsureSchema(ctx context.Context, reg *registry.Registry) error {
	for _, stmt := range SchemaStatements(s.driver, reg) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return telemetry.NewPersistence("apply schema", err)
		}
	}
	return nil
}
