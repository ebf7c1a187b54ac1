// Package store provides durable storage for bioreactor telemetry.
//
// The store holds one experiment table and one append-only table per
// measurement kind. Kind tables are generated from the registry contract:
//
//	experiment (id, name, run_date, created_at, reactors, volume, run_id)
//	<kind>     (id, experiment_id, date, reactor, [calibration], value | ch_0..ch_n, units)
//
// # Invariants
//
//   - Every kind row references experiment(id) with ON DELETE CASCADE, so
//     deleting an experiment removes its rows from every kind table and
//     nothing else.
//   - UNIQUE(name, run_date) on experiment backs the create-if-absent path:
//     INSERT ... ON CONFLICT DO NOTHING RETURNING id, then SELECT on conflict.
//   - Rows are never updated. Reads order by (date ASC, id ASC) or the exact
//     reverse, so equal timestamps still have a deterministic order.
//   - date is stored as INTEGER Unix milliseconds in every dialect.
//
// # Drivers
//
//   - sqlite3: github.com/mattn/go-sqlite3 (default)
//   - sqlite:  modernc.org/sqlite, pure Go
//   - pgx:     github.com/jackc/pgx/v5/stdlib, PostgreSQL
//
// SQLite connections are configured with WAL, synchronous=NORMAL,
// busy_timeout=5000 and foreign_keys=ON, and the pool is limited to one
// connection so the single writer never sees SQLITE_BUSY.
//
// Storage failures are returned as telemetry errors with code PERSISTENCE
// wrapping the driver error.
package store
