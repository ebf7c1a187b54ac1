package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/asaldivar93/reactors-czlab/internal/registry"
	"github.com/asaldivar93/reactors-czlab/internal/telemetry"
)

// DefaultPageSize is the number of rows History fetches per query.
const DefaultPageSize = 256

func selectColumns(c registry.Contract) string {
	cols := []string{"id", "experiment_id", "date", "reactor"}
	if c.Calibration {
		cols = append(cols, "calibration")
	}
	cols = append(cols, registry.ValueColumns(c)...)
	cols = append(cols, "units")
	return strings.Join(cols, ", ")
}

func scanRecord(c registry.Contract, row rowScanner) (telemetry.Record, error) {
	var (
		rec         telemetry.Record
		date        int64
		calibration sql.NullString
	)
	dest := []any{&rec.ID, &rec.ExperimentID, &date, &rec.Reactor}
	if c.Calibration {
		dest = append(dest, &calibration)
	}
	if c.Shape == registry.ShapeVector {
		rec.Value.Vector = make([]int64, c.VectorLen)
		for i := range rec.Value.Vector {
			dest = append(dest, &rec.Value.Vector[i])
		}
	} else {
		dest = append(dest, &rec.Value.Scalar)
	}
	dest = append(dest, &rec.Units)

	if err := row.Scan(dest...); err != nil {
		return telemetry.Record{}, err
	}
	rec.Timestamp = telemetry.FromMillis(date)
	rec.Calibration = calibration.String
	rec.Kind = c.Kind
	rec.Table = c.Table
	return rec, nil
}

// Latest returns the most recent row for (experiment, reactor) in the
// contract's table, or nil when there is none. Equal timestamps resolve to
// the row inserted last.
func (s *Store) Latest(ctx context.Context, c registry.Contract, experimentID int64, reactor string) (*telemetry.Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s
		WHERE experiment_id = ? AND reactor = ?
		ORDER BY date DESC, id DESC
		LIMIT 1`, selectColumns(c), c.Table)

	row := s.db.QueryRowContext(ctx, s.driver.rebind(query), experimentID, reactor)
	rec, err := scanRecord(c, row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, telemetry.NewPersistence(fmt.Sprintf("read latest from %s", c.Table), err)
	}
	return &rec, nil
}

// HistoryPage returns up to limit rows for (experiment, reactor) strictly
// after the cursor (afterDate, afterID), ordered by date ASC, id ASC.
func (s *Store) HistoryPage(ctx context.Context, c registry.Contract, experimentID int64, reactor string, afterDate, afterID int64, limit int) ([]telemetry.Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s
		WHERE experiment_id = ? AND reactor = ?
		AND (date > ? OR (date = ? AND id > ?))
		ORDER BY date ASC, id ASC
		LIMIT ?`, selectColumns(c), c.Table)

	rows, err := s.db.QueryContext(ctx, s.driver.rebind(query),
		experimentID, reactor, afterDate, afterDate, afterID, limit)
	if err != nil {
		return nil, telemetry.NewPersistence(fmt.Sprintf("read history from %s", c.Table), err)
	}
	defer rows.Close()

	records := []telemetry.Record{}
	for rows.Next() {
		rec, err := scanRecord(c, rows)
		if err != nil {
			return nil, telemetry.NewPersistence(fmt.Sprintf("scan %s row", c.Table), err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, telemetry.NewPersistence(fmt.Sprintf("iterate %s rows", c.Table), err)
	}
	return records, nil
}

// History returns a lazy, finite sequence of rows for (experiment, reactor)
// ordered by date ASC, id ASC. since, when non-nil, is inclusive.
//
// Rows are fetched in pages with keyset pagination and no connection is
// held while the caller's loop body runs. Ranging over the sequence again
// re-runs the queries from the start.
func (s *Store) History(ctx context.Context, c registry.Contract, experimentID int64, reactor string, since *time.Time, pageSize int) iter.Seq2[telemetry.Record, error] {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return func(yield func(telemetry.Record, error) bool) {
		afterDate, afterID := int64(math.MinInt64), int64(0)
		if since != nil {
			// ids start at 1, so (since, 0) includes rows stamped exactly at since
			afterDate = telemetry.ToMillis(*since)
		}
		for {
			page, err := s.HistoryPage(ctx, c, experimentID, reactor, afterDate, afterID, pageSize)
			if err != nil {
				yield(telemetry.Record{}, err)
				return
			}
			for _, rec := range page {
				if !yield(rec, nil) {
					return
				}
			}
			if len(page) < pageSize {
				return
			}
			last := page[len(page)-1]
			afterDate, afterID = telemetry.ToMillis(last.Timestamp), last.ID
		}
	}
}

// ExperimentRows returns every row of the experiment across the given
// contracts, optionally limited to date >= since, ordered by
// (date, table, id).
func (s *Store) ExperimentRows(ctx context.Context, contracts []registry.Contract, experimentID int64, since *time.Time) ([]telemetry.Record, error) {
	cutoff := int64(math.MinInt64)
	if since != nil {
		cutoff = telemetry.ToMillis(*since)
	}

	all := []telemetry.Record{}
	for _, c := range contracts {
		query := fmt.Sprintf(`SELECT %s FROM %s
			WHERE experiment_id = ? AND date >= ?
			ORDER BY date ASC, id ASC`, selectColumns(c), c.Table)

		rows, err := s.db.QueryContext(ctx, s.driver.rebind(query), experimentID, cutoff)
		if err != nil {
			return nil, telemetry.NewPersistence(fmt.Sprintf("read %s", c.Table), err)
		}
		for rows.Next() {
			rec, err := scanRecord(c, rows)
			if err != nil {
				rows.Close()
				return nil, telemetry.NewPersistence(fmt.Sprintf("scan %s row", c.Table), err)
			}
			all = append(all, rec)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, telemetry.NewPersistence(fmt.Sprintf("iterate %s rows", c.Table), err)
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].Timestamp.Equal(all[j].Timestamp) {
			return all[i].Timestamp.Before(all[j].Timestamp)
		}
		if all[i].Table != all[j].Table {
			return all[i].Table < all[j].Table
		}
		return all[i].ID < all[j].ID
	})
	return all, nil
}

// CountRows returns the number of rows in the contract's table, optionally
// restricted to one experiment (experimentID > 0).
func (s *Store) CountRows(ctx context.Context, c registry.Contract, experimentID int64) (int64, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", c.Table)
	var args []any
	if experimentID > 0 {
		query += " WHERE experiment_id = ?"
		args = append(args, experimentID)
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, s.driver.rebind(query), args...).Scan(&n); err != nil {
		return 0, telemetry.NewPersistence(fmt.Sprintf("count %s", c.Table), err)
	}
	return n, nil
}

// CountExperiments returns the number of experiment rows with the given
// name, across all run dates.
func (s *Store) CountExperiments(ctx context.Context, name string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, s.driver.rebind(`SELECT COUNT(*) FROM experiment WHERE name = ?`), name).Scan(&n)
	if err != nil {
		return 0, telemetry.NewPersistence("count experiments", err)
	}
	return n, nil
}
