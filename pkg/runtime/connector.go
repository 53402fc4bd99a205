package runtime

import (
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/reflectx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/TechXTT/tormsh/internal/core"
)

// Supported driver names, as registered with database/sql.
const (
	SQLite   = "sqlite3"
	Postgres = "postgres"
	MySQL    = "mysql"
)

var Drivers = []string{SQLite, Postgres, MySQL}

// Connect opens and pings a database connection using the given driver and DSN.
func Connect(driver, dsn string) (*sqlx.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("DSN is empty")
	}
	dsn, err := NormalizeDSN(driver, dsn)
	if err != nil {
		return nil, err
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	if driver == SQLite {
		// SQLite only supports one writer at a time.
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma: %w", err)
		}
	}
	UseColumnNames(db)
	return db, nil
}

// UseColumnNames makes sqlx map untagged struct fields with the same
// snake_case rule the schema reflection uses.
func UseColumnNames(db *sqlx.DB) {
	db.Mapper = reflectx.NewMapperFunc("db", core.ColumnName)
}

// NormalizeDSN fills in driver defaults the session relies on.
func NormalizeDSN(driver, dsn string) (string, error) {
	switch driver {
	case Postgres:
		// Ensure SSL mode is disabled by default if not specified.
		if strings.HasPrefix(dsn, "postgres://") && !strings.Contains(dsn, "sslmode=") {
			dsn = appendParam(dsn, "sslmode=disable")
		}
	case MySQL:
		// Report matched rather than changed rows so an UPDATE that rewrites
		// identical values is not mistaken for a missing row.
		if !strings.Contains(dsn, "clientFoundRows=") {
			dsn = appendParam(dsn, "clientFoundRows=true")
		}
	case SQLite:
	default:
		return "", fmt.Errorf("unsupported driver %q (want one of %s)", driver, strings.Join(Drivers, ", "))
	}
	return dsn, nil
}

func appendParam(dsn, param string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + param
}
