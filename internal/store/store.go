// Package store opens the relational database behind prompta and applies
// its schema. SQLite (pure Go) is the default; Postgres is used when the
// configured driver is "postgres".
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Driver names a supported database backend.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Config holds database connection settings.
type Config struct {
	Driver       Driver
	DSN          string
	MaxOpenConns int
}

// DB wraps sqlx.DB with the dialect it was opened with.
type DB struct {
	*sqlx.DB
	driver Driver
}

// Open connects to the database and verifies the connection.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database dsn is required")
	}

	var driverName string
	switch cfg.Driver {
	case DriverSQLite, "":
		cfg.Driver = DriverSQLite
		driverName = "sqlite"
	case DriverPostgres:
		driverName = "pgx"
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	db, err := sqlx.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.Driver == DriverSQLite {
		// SQLite allows a single writer; one connection keeps transactions
		// from tripping over SQLITE_BUSY.
		db.SetMaxOpenConns(1)
		db.SetConnMaxLifetime(0)
	} else if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetConnMaxIdleTime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db, driver: cfg.Driver}, nil
}

// Driver returns the backend this DB was opened with.
func (db *DB) Driver() Driver {
	return db.driver
}

// WithTx runs fn inside a transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback failed: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		if IsUniqueViolation(err) {
			return err
		}
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SQLiteDSN builds a file DSN with foreign keys enforced and immediate
// write transactions.
func SQLiteDSN(path string) string {
	return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"
}

// MemoryDSN builds a DSN for a private in-memory SQLite database.
func MemoryDSN(name string) string {
	return "file:" + name + "?mode=memory&cache=shared&_pragma=foreign_keys(1)"
}

// IsUniqueViolation reports whether err came from a unique or primary key
// constraint in either backend.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		case sqlite3.SQLITE_CONSTRAINT:
			return strings.Contains(liteErr.Error(), "UNIQUE constraint failed")
		}
	}
	return false
}
