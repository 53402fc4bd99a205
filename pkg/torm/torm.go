// File: pkg/torm/torm.go
package torm

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/TechXTT/tormsh/internal/plugin"
	"github.com/TechXTT/tormsh/pkg/runtime"
)

// DB is the main handle for executing queries. It is safe to share; units of
// work are carried by the Sessions it creates.
type DB struct {
	conn  *sqlx.DB
	log   *slog.Logger
	hooks plugin.Chain
}

// Option configures a DB.
type Option func(*DB)

// WithLogger sets the structured logger used by the DB and its sessions.
func WithLogger(l *slog.Logger) Option {
	return func(d *DB) { d.log = l }
}

// WithHooks installs lifecycle hooks run during commit. Hook sets run in the
// order they were given, across repeated options too.
func WithHooks(h ...plugin.Hooks) Option {
	return func(d *DB) { d.hooks = append(d.hooks, h...) }
}

// Open connects to the database and returns a DB
func Open(driver, dsn string, opts ...Option) (*DB, error) {
	conn, err := runtime.Connect(driver, dsn)
	if err != nil {
		return nil, err
	}
	return New(conn, opts...), nil
}

// New wraps an existing connection.
func New(conn *sqlx.DB, opts ...Option) *DB {
	runtime.UseColumnNames(conn)
	d := &DB{conn: conn, log: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.conn.Close()
}

// Driver returns the database/sql driver name.
func (d *DB) Driver() string {
	return d.conn.DriverName()
}

// Exec executes raw SQL with context, outside any session.
func (d *DB) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return d.conn.ExecContext(ctx, d.conn.Rebind(query), args...)
}

// returning reports whether inserts must read generated keys with RETURNING.
func (d *DB) returning() bool {
	return sqlx.BindType(d.conn.DriverName()) == sqlx.DOLLAR
}
