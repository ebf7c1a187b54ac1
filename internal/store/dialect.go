package store

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

// Driver names a database/sql driver the store knows how to configure.
type Driver string

const (
	DriverSQLite3  Driver = "sqlite3" // github.com/mattn/go-sqlite3
	DriverSQLite   Driver = "sqlite"  // modernc.org/sqlite
	DriverPostgres Driver = "pgx"     // github.com/jackc/pgx/v5/stdlib
)

// ParseDriver accepts the driver names above plus the aliases
// "postgres" and "postgresql".
func ParseDriver(name string) (Driver, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", string(DriverSQLite3):
		return DriverSQLite3, nil
	case string(DriverSQLite):
		return DriverSQLite, nil
	case string(DriverPostgres), "postgres", "postgresql":
		return DriverPostgres, nil
	default:
		return "", fmt.Errorf("unknown storage driver %q (want sqlite3, sqlite or pgx)", name)
	}
}

func (d Driver) isSQLite() bool {
	return d == DriverSQLite3 || d == DriverSQLite
}

// sqlitePragmas are the per-connection settings for each SQLite driver,
// in the DSN parameter syntax that driver understands.
var sqlitePragmas = map[Driver][]string{
	DriverSQLite3: {"_journal_mode=WAL", "_synchronous=NORMAL", "_busy_timeout=5000", "_foreign_keys=on"},
	DriverSQLite:  {"_pragma=journal_mode(WAL)", "_pragma=synchronous(NORMAL)", "_pragma=busy_timeout(5000)", "_pragma=foreign_keys(1)"},
}

// dataSource appends the driver's pragmas to a SQLite DSN. Other drivers
// get dsn unchanged.
func (d Driver) dataSource(dsn string) string {
	params, ok := sqlitePragmas[d]
	if !ok {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

func (d Driver) primaryKey() string {
	if d == DriverPostgres {
		return "BIGSERIAL PRIMARY KEY"
	}
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

// rebind rewrites ? placeholders to $n for PostgreSQL. Queries in this
// package never contain literal question marks.
func (d Driver) rebind(query string) string {
	if d != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// isUniqueViolation reports whether err is a unique-constraint failure from
// any of the supported drivers.
func isUniqueViolation(err error) bool {
	var mattnErr sqlite3.Error
	if errors.As(err, &mattnErr) {
		return mattnErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			mattnErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var moderncErr *sqlite.Error
	if errors.As(err, &moderncErr) {
		return moderncErr.Code() == sqlitelib.SQLITE_CONSTRAINT_UNIQUE ||
			moderncErr.Code() == sqlitelib.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
