package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/asaldivar93/reactors-czlab/internal/registry"
	"github.com/asaldivar93/reactors-czlab/internal/telemetry"
)

// Row is one channel reading ready for insertion. The caller has already
// validated it against the contract.
type Row struct {
	ExperimentID int64
	Timestamp    time.Time
	Reactor      string
	Calibration  string
	Value        telemetry.Value
	Units        string
}

// Insert appends one row to the contract's table and returns its id.
// There is no upsert: two identical readings produce two rows.
//
// An empty Calibration is stored as NULL. Calibration is dropped for tables
// without a calibration column.
func (s *Store) Insert(ctx context.Context, c registry.Contract, r Row) (int64, error) {
	cols := registry.Columns(c)
	args := make([]any, 0, len(cols))
	args = append(args, r.ExperimentID, telemetry.ToMillis(r.Timestamp), r.Reactor)
	if c.Calibration {
		args = append(args, sql.NullString{String: r.Calibration, Valid: r.Calibration != ""})
	}
	if c.Shape == registry.ShapeVector {
		for _, ch := range r.Value.Vector {
			args = append(args, ch)
		}
	} else {
		args = append(args, r.Value.Scalar)
	}
	args = append(args, r.Units)

	if len(args) != len(cols) {
		return 0, telemetry.NewShapeMismatch(c.Kind, fmt.Sprintf("row has %d values for %d columns", len(args), len(cols)))
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id",
		c.Table, strings.Join(cols, ", "), placeholders(len(cols)))

	var id int64
	if err := s.db.QueryRowContext(ctx, s.driver.rebind(query), args...).Scan(&id); err != nil {
		return 0, telemetry.NewPersistence(fmt.Sprintf("insert into %s", c.Table), err)
	}
	return id, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}
