package store

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Config selects the driver and data source.
type Config struct {
	Driver Driver
	// DSN is a file path (or ":memory:") for the SQLite drivers and a
	// connection string for pgx.
	DSN string
}

// Store is the storage boundary for experiments and measurement rows.
type Store struct {
	db     *sql.DB
	driver Driver
}

// Open connects to the database. SQLite pragmas are carried in the data
// source so every connection the pool opens gets them.
// It does not create kind tables; call EnsureSchema with a registry.
func Open(cfg Config) (*Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverSQLite3
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("open %s: empty data source", driver)
	}

	db, err := sql.Open(string(driver), driver.dataSource(cfg.DSN))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if driver.isSQLite() {
		// SQLite only supports one writer at a time, so limit connections
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	return &Store{db: db, driver: driver}, nil
}

// OpenSQLite opens a mattn/go-sqlite3 database at path.
func OpenSQLite(path string) (*Store, error) {
	return Open(Config{Driver: DriverSQLite3, DSN: path})
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Driver returns the driver the store was opened with.
func (s *Store) Driver() Driver {
	return s.driver
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
