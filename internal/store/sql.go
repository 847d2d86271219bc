package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"fieldcrm/internal/model"
)

const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite3"
)

// SQL implements Store on Postgres (pgx) or SQLite. Queries are written with
// '?' placeholders and rebound for the active driver.
type SQL struct {
	db     *sqlx.DB
	driver string
	now    func() time.Time
	log    logrus.FieldLogger
}

// Open connects to dsn with the given driver and verifies connectivity.
func Open(ctx context.Context, driver, dsn string, log logrus.FieldLogger) (*SQL, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// one connection keeps in-memory databases alive and serializes writers
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return &SQL{db: db, driver: driver, now: func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }, log: log}, nil
}

// NewPostgres opens a Postgres store through the pgx stdlib driver.
func NewPostgres(ctx context.Context, dsn string, log logrus.FieldLogger) (*SQL, error) {
	return Open(ctx, DriverPostgres, dsn, log)
}

// NewSQLite opens a SQLite store. Foreign keys are switched on for the connection.
func NewSQLite(ctx context.Context, dsn string, log logrus.FieldLogger) (*SQL, error) {
	if !strings.Contains(dsn, "_foreign_keys") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_foreign_keys=on"
	}
	return Open(ctx, DriverSQLite, dsn, log)
}

// DriverForURL picks the driver and DSN for a DATABASE_URL value.
// sqlite:// and file: URLs select SQLite; anything else is handed to pgx.
func DriverForURL(url string) (driver, dsn string) {
	switch {
	case strings.HasPrefix(url, "sqlite://"):
		return DriverSQLite, strings.TrimPrefix(url, "sqlite://")
	case strings.HasPrefix(url, "sqlite:"):
		return DriverSQLite, strings.TrimPrefix(url, "sqlite:")
	case strings.HasPrefix(url, "file:"):
		return DriverSQLite, url
	default:
		return DriverPostgres, url
	}
}

func (s *SQL) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQL) Close() error { return s.db.Close() }

// DB exposes the underlying handle for migrations.
func (s *SQL) DB() *sqlx.DB { return s.db }

func (s *SQL) q(query string) string { return s.db.Rebind(query) }

// withTx runs fn in a transaction, committing when it returns nil.
func (s *SQL) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func notFound(err error, kind, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return model.NotFound(kind, id)
	}
	return err
}
