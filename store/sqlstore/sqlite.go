package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang-migrate/migrate/v4/database"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"zako_server/store"
)

// sqlitePragmas are applied to every pooled connection. Immediate transactions
// make concurrent writers queue on the busy timeout instead of failing on upgrade.
const sqlitePragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)&_txlock=immediate"

type sqliteDialect struct{}

func (sqliteDialect) name() string       { return DriverSQLite }
func (sqliteDialect) driverName() string { return "sqlite" }

func (sqliteDialect) prepareDSN(dsn string) (string, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return "", fmt.Errorf("sqlite path is required")
	}
	if strings.Contains(dsn, "?") {
		return dsn, nil
	}
	path := filepath.Clean(strings.TrimPrefix(dsn, "file:"))
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return "", fmt.Errorf("create sqlite directory: %w", err)
		}
	}
	return "file:" + path + "?" + sqlitePragmas, nil
}

func (sqliteDialect) rebind(query string) string { return query }

// Write transactions begin IMMEDIATE on a single connection, so they are already serialized.
func (sqliteDialect) lockRow(lockMode) string { return "" }

func (sqliteDialect) classify(err error) error {
	if err == nil {
		return nil
	}
	var se *msqlite.Error
	if !errors.As(err, &se) {
		return err
	}
	switch se.Code() {
	case sqlite3lib.SQLITE_CONSTRAINT_UNIQUE, sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY:
		return &store.Error{Kind: store.KindUniqueViolation, Constraint: constraintFromText(se.Error()), Err: err}
	case sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY:
		return &store.Error{Kind: store.KindForeignKeyViolation, Constraint: store.ConstraintLikedTarget, Err: err}
	}
	switch se.Code() & 0xff {
	case sqlite3lib.SQLITE_CONSTRAINT:
		msg := se.Error()
		if strings.Contains(msg, "UNIQUE") {
			return &store.Error{Kind: store.KindUniqueViolation, Constraint: constraintFromText(msg), Err: err}
		}
		if strings.Contains(msg, "FOREIGN KEY") {
			return &store.Error{Kind: store.KindForeignKeyViolation, Constraint: store.ConstraintLikedTarget, Err: err}
		}
	case sqlite3lib.SQLITE_BUSY, sqlite3lib.SQLITE_LOCKED, sqlite3lib.SQLITE_CANTOPEN, sqlite3lib.SQLITE_IOERR:
		return &store.Error{Kind: store.KindConnectionFailure, Err: err}
	}
	return err
}

func (sqliteDialect) migrationDriver(db *sql.DB) (database.Driver, error) {
	return migratesqlite.WithInstance(db, &migratesqlite.Config{})
}
