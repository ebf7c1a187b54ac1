package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/asaldivar93/reactors-czlab/internal/telemetry"
)

const experimentColumns = "id, name, run_date, created_at, reactors, volume, run_id"

// CreateExperimentIfAbsent inserts the experiment unless a row with the same
// (name, run_date) exists. Returns the stored experiment and whether this
// call inserted it.
//
// Uses ON CONFLICT(name, run_date) DO NOTHING so concurrent callers, in this
// process or another, end up with the same row.
func (s *Store) CreateExperimentIfAbsent(ctx context.Context, e telemetry.Experiment) (telemetry.Experiment, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return telemetry.Experiment{}, false, telemetry.NewPersistence("create experiment: begin tx", err)
	}
	defer tx.Rollback() // No-op if committed

	var id int64
	err = tx.QueryRowContext(ctx, s.driver.rebind(`
		INSERT INTO experiment (name, run_date, created_at, reactors, volume, run_id)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (name, run_date) DO NOTHING
		RETURNING id
	`), experimentArgs(e)...).Scan(&id)

	inserted := true
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// Conflict - row already exists, fetch it
		inserted = false
	case err != nil:
		return telemetry.Experiment{}, false, telemetry.NewPersistence("create experiment: insert", err)
	}

	var stored telemetry.Experiment
	if inserted {
		stored = e
		stored.ID = id
		stored.CreatedAt = telemetry.Truncate(e.CreatedAt)
	} else {
		row := tx.QueryRowContext(ctx, s.driver.rebind(`
			SELECT `+experimentColumns+` FROM experiment
			WHERE name = ? AND run_date = ?
		`), e.Name, e.RunDate)
		stored, err = scanExperiment(row)
		if err != nil {
			return telemetry.Experiment{}, false, telemetry.NewPersistence("create experiment: select existing", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return telemetry.Experiment{}, false, telemetry.NewPersistence("create experiment: commit", err)
	}
	return stored, inserted, nil
}

// CreateExperiment inserts the experiment and fails with
// DUPLICATE_EXPERIMENT if (name, run_date) already exists.
func (s *Store) CreateExperiment(ctx context.Context, e telemetry.Experiment) (telemetry.Experiment, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, s.driver.rebind(`
		INSERT INTO experiment (name, run_date, created_at, reactors, volume, run_id)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`), experimentArgs(e)...).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return telemetry.Experiment{}, telemetry.NewDuplicateExperiment(e.Name, err)
		}
		return telemetry.Experiment{}, telemetry.NewPersistence("create experiment", err)
	}
	e.ID = id
	e.CreatedAt = telemetry.Truncate(e.CreatedAt)
	return e, nil
}

// Experiment returns the experiment with the given id.
func (s *Store) Experiment(ctx context.Context, id int64) (telemetry.Experiment, error) {
	row := s.db.QueryRowContext(ctx, s.driver.rebind(`
		SELECT `+experimentColumns+` FROM experiment WHERE id = ?
	`), id)
	e, err := scanExperiment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return telemetry.Experiment{}, telemetry.NewNotFound("experiment not found")
	}
	if err != nil {
		return telemetry.Experiment{}, telemetry.NewPersistence("read experiment", err)
	}
	return e, nil
}

// ExperimentByName returns the most recent run of the named experiment.
func (s *Store) ExperimentByName(ctx context.Context, name string) (telemetry.Experiment, error) {
	row := s.db.QueryRowContext(ctx, s.driver.rebind(`
		SELECT `+experimentColumns+` FROM experiment
		WHERE name = ?
		ORDER BY run_date DESC, id DESC
		LIMIT 1
	`), name)
	e, err := scanExperiment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return telemetry.Experiment{}, &telemetry.Error{Code: telemetry.ErrCodeNotFound, Message: "experiment not found", Experiment: name}
	}
	if err != nil {
		return telemetry.Experiment{}, telemetry.NewPersistence("read experiment", err)
	}
	return e, nil
}

// LatestExperiment returns the most recently created experiment.
func (s *Store) LatestExperiment(ctx context.Context) (telemetry.Experiment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+experimentColumns+` FROM experiment
		ORDER BY id DESC
		LIMIT 1
	`)
	e, err := scanExperiment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return telemetry.Experiment{}, telemetry.NewNotFound("no experiments")
	}
	if err != nil {
		return telemetry.Experiment{}, telemetry.NewPersistence("read latest experiment", err)
	}
	return e, nil
}

// Experiments lists every experiment ordered by id.
// Returns an empty slice (not nil) when there are none.
func (s *Store) Experiments(ctx context.Context) ([]telemetry.Experiment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+experimentColumns+` FROM experiment
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, telemetry.NewPersistence("list experiments", err)
	}
	defer rows.Close()

	experiments := []telemetry.Experiment{}
	for rows.Next() {
		e, err := scanExperiment(rows)
		if err != nil {
			return nil, telemetry.NewPersistence("scan experiment", err)
		}
		experiments = append(experiments, e)
	}
	if err := rows.Err(); err != nil {
		return nil, telemetry.NewPersistence("iterate experiments", err)
	}
	return experiments, nil
}

// DeleteExperiment deletes the experiment. The foreign keys cascade the
// delete to every measurement row that references it.
func (s *Store) DeleteExperiment(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.driver.rebind(`DELETE FROM experiment WHERE id = ?`), id)
	if err != nil {
		return telemetry.NewPersistence("delete experiment", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return telemetry.NewPersistence("delete experiment: rows affected", err)
	}
	if n == 0 {
		return telemetry.NewNotFound("experiment not found")
	}
	return nil
}

func experimentArgs(e telemetry.Experiment) []any {
	var reactors sql.NullString
	if len(e.Reactors) > 0 {
		reactors = sql.NullString{String: strings.Join(e.Reactors, ","), Valid: true}
	}
	var volume sql.NullFloat64
	if e.Volume != nil {
		volume = sql.NullFloat64{Float64: *e.Volume, Valid: true}
	}
	return []any{e.Name, e.RunDate, telemetry.ToMillis(e.CreatedAt), reactors, volume, e.RunID}
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanExperiment(row rowScanner) (telemetry.Experiment, error) {
	var (
		e         telemetry.Experiment
		createdAt int64
		reactors  sql.NullString
		volume    sql.NullFloat64
	)
	if err := row.Scan(&e.ID, &e.Name, &e.RunDate, &createdAt, &reactors, &volume, &e.RunID); err != nil {
		return telemetry.Experiment{}, err
	}
	e.CreatedAt = telemetry.FromMillis(createdAt)
	if reactors.Valid && reactors.String != "" {
		e.Reactors = strings.Split(reactors.String, ",")
	}
	if volume.Valid {
		v := volume.Float64
		e.Volume = &v
	}
	return e, nil
}
