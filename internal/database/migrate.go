package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"

	"github.com/iliyamo/canteen-voting/internal/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies every pending migration.  The SQL is written to run
// unchanged on MySQL 8 and SQLite; only the goose dialect differs.
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	dialect := goose.DialectMySQL
	if driver == config.DriverSQLite {
		dialect = goose.DialectSQLite3
	}
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(dialect, db, sub)
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("migrations up: %w", err)
	}
	return nil
}
