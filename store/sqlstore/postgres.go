package sqlstore

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4/database"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/lib/pq"
	"github.com/omeid/pgerror"

	"zako_server/store"
)

type postgresDialect struct{}

func (postgresDialect) name() string       { return DriverPostgres }
func (postgresDialect) driverName() string { return "postgres" }

func (postgresDialect) prepareDSN(dsn string) (string, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return "", fmt.Errorf("postgres dsn is required")
	}
	return dsn, nil
}

func (postgresDialect) rebind(query string) string { return rebindDollar(query) }

func (postgresDialect) lockRow(mode lockMode) string {
	if mode == lockUpdate {
		return " FOR UPDATE"
	}
	return " FOR KEY SHARE"
}

func (postgresDialect) classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, driver.ErrBadConn) {
		return &store.Error{Kind: store.KindConnectionFailure, Err: err}
	}
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	if e := pgerror.UniqueViolation(pqErr); e != nil {
		return &store.Error{Kind: store.KindUniqueViolation, Constraint: constraintFromText(e.Constraint), Err: err}
	}
	if e := pgerror.ForeignKeyViolation(pqErr); e != nil {
		return &store.Error{Kind: store.KindForeignKeyViolation, Constraint: store.ConstraintLikedTarget, Err: err}
	}
	if pgerror.ConnectionException(pqErr) != nil ||
		pgerror.ConnectionFailure(pqErr) != nil ||
		pgerror.CannotConnectNow(pqErr) != nil ||
		pgerror.AdminShutdown(pqErr) != nil {
		return &store.Error{Kind: store.KindConnectionFailure, Err: err}
	}
	return err
}

func (postgresDialect) migrationDriver(db *sql.DB) (database.Driver, error) {
	return migratepostgres.WithInstance(db, &migratepostgres.Config{})
}
