package pg

import (
	"database/sql"
	"embed"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// OpenDB opens a pooled Postgres connection through the pgx stdlib driver
// and wraps it in sqlx for the named-query convenience the managed-mode
// mirror store uses. Grounded on the teacher's internal/store/pg/pool.go
// OpenDB, generalized from a bare *sql.DB to *sqlx.DB.
func OpenDB(dsn string) (*sqlx.DB, error) {
	raw, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	raw.SetMaxOpenConns(25)
	raw.SetMaxIdleConns(10)

	if err := raw.Ping(); err != nil {
		raw.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	slog.Info("postgres connected", "dsn_len", len(dsn))
	return sqlx.NewDb(raw, "pgx"), nil
}

// Migrate runs the embedded schema migrations against dsn to completion,
// tolerating ErrNoChange when the schema is already current.
func Migrate(dsn string) error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("init migrator: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
