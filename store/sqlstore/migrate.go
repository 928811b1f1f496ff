package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"zako_server/store/sqlstore/migrations"
)

// migrateUp applies every pending embedded migration for the dialect.
// The migrate instance is not closed: closing it would close db as well.
func migrateUp(db *sql.DB, d dialect) error {
	src, err := iofs.New(migrations.FS, d.name())
	if err != nil {
		return fmt.Errorf("open migration source: %w", err)
	}
	drv, err := d.migrationDriver(db)
	if err != nil {
		return fmt.Errorf("open migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, d.name(), drv)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
