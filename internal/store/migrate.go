package store

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// Migrate applies the embedded schema migrations for the active driver.
func (s *SQL) Migrate() error {
	var (
		driver database.Driver
		dir    string
		err    error
	)
	switch s.driver {
	case DriverPostgres:
		dir = "migrations/postgres"
		driver, err = pgxmigrate.WithInstance(s.db.DB, &pgxmigrate.Config{})
	case DriverSQLite:
		dir = "migrations/sqlite"
		driver, err = sqlitemigrate.WithInstance(s.db.DB, &sqlitemigrate.Config{})
	default:
		return fmt.Errorf("migrate: unsupported driver %q", s.driver)
	}
	if err != nil {
		return fmt.Errorf("migrate driver: %w", err)
	}
	src, err := iofs.New(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("migrate source: %w", err)
	}
	// m.Close would also close the shared *sql.DB, so only the source is released.
	defer func() { _ = src.Close() }()
	m, err := migrate.NewWithInstance("iofs", src, s.driver, driver)
	if err != nil {
		return fmt.Errorf("migrate init: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	v, dirty, _ := m.Version()
	s.log.WithField("version", v).WithField("dirty", dirty).Info("schema migrated")
	return nil
}
