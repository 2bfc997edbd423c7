// Package store persists panel accounts and the action log in a SQL database.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite3"
)

// SQLite DSN parameters for production hardening.
const (
	sqliteBusyTimeout = "5000" // 5 seconds
	sqliteSynchronous = "NORMAL"
	sqliteJournalMode = "WAL"
)

// DB is a database handle that knows its driver's placeholder style.
type DB struct {
	db     *sql.DB
	driver string
}

// Open connects to the database and verifies the connection.
func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	var err error
	switch driver {
	case DriverPostgres:
	case DriverMySQL:
		dsn, err = mysqlDSN(dsn)
		if err != nil {
			return nil, err
		}
	case DriverSQLite:
		dsn = sqliteDSN(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q (must be postgres, mysql, or sqlite3)", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if driver == DriverSQLite {
		// A single writer; also keeps in-memory databases on one connection.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	return &DB{db: db, driver: driver}, nil
}

// New wraps an existing handle.
func New(db *sql.DB, driver string) *DB {
	return &DB{db: db, driver: driver}
}

// Driver returns the driver name.
func (d *DB) Driver() string {
	return d.driver
}

// Close closes the underlying pool.
func (d *DB) Close() error {
	return d.db.Close()
}

// rebind converts ? placeholders to $n for postgres.
func (d *DB) rebind(query string) string {
	if d.driver != DriverPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// mysqlDSN enables time parsing and makes UPDATE report matched rather than
// changed rows, so rewriting an unchanged key is not mistaken for a miss.
func mysqlDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid mysql DSN: %w", err)
	}
	cfg.ParseTime = true
	cfg.ClientFoundRows = true
	return cfg.FormatDSN(), nil
}

// sqliteDSN adds hardened defaults unless the caller supplied parameters.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "?") {
		return dsn
	}

	params := url.Values{}
	params.Set("_busy_timeout", sqliteBusyTimeout)
	params.Set("_foreign_keys", "on")
	if !strings.Contains(dsn, ":memory:") {
		params.Set("_journal_mode", sqliteJournalMode)
		params.Set("_synchronous", sqliteSynchronous)
	}
	return dsn + "?" + params.Encode()
}
