package sqlstore

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4/database"

	"zako_server/store"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// dialect isolates everything engine specific: connection strings, placeholder
// style, migrations and error codes.
type dialect interface {
	name() string
	driverName() string
	prepareDSN(dsn string) (string, error)
	rebind(query string) string
	// lockRow is appended to a single-row SELECT inside a transaction.
	lockRow(mode lockMode) string
	classify(err error) error
	migrationDriver(db *sql.DB) (database.Driver, error)
}

type lockMode int

const (
	// lockKeyShare blocks deletion of the row but not updates to its other columns.
	lockKeyShare lockMode = iota
	lockUpdate
)

func dialectFor(driver string) (dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverSQLite, "sqlite3":
		return sqliteDialect{}, nil
	case DriverPostgres, "postgresql":
		return postgresDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}
}

// rebindDollar rewrites ? placeholders into $1, $2, ...
func rebindDollar(query string) string {
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

// constraintFromText maps a constraint name or a column list reported by the
// engine onto the shared constraint names.
func constraintFromText(text string) string {
	text = strings.ToLower(text)
	switch {
	case strings.Contains(text, "uq_like_edges_pair"),
		strings.Contains(text, "like_edges.liker_client_id"):
		return store.ConstraintLikePair
	case strings.Contains(text, "fk_like_edges_liked"),
		strings.Contains(text, "foreign key"):
		return store.ConstraintLikedTarget
	case strings.Contains(text, "session_token"):
		return store.ConstraintSessionToken
	case strings.Contains(text, "client_id"):
		return store.ConstraintClientID
	default:
		return ""
	}
}
