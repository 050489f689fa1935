// Package migrations applies the embedded database schema.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5" // pgx5:// driver
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed postgres/*.sql sqlite/*.sql
var migrationsFS embed.FS

// Migrator applies schema migrations.
type Migrator struct {
	migrate *migrate.Migrate
	source  source.Driver
	logger  *zap.Logger
	ownsDB  bool
}

// NewPostgres creates a migrator for the PostgreSQL database at databaseURL.
// postgres:// and postgresql:// URLs are accepted.
func NewPostgres(databaseURL string, logger *zap.Logger) (*Migrator, error) {
	src, err := iofs.New(migrationsFS, "postgres")
	if err != nil {
		return nil, fmt.Errorf("create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, pgxURL(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}

	return &Migrator{migrate: m, source: src, logger: logger, ownsDB: true}, nil
}

// NewSQLite creates a migrator for an open SQLite database. The database is
// not closed by Close.
func NewSQLite(db *sql.DB, logger *zap.Logger) (*Migrator, error) {
	src, err := iofs.New(migrationsFS, "sqlite")
	if err != nil {
		return nil, fmt.Errorf("create migration source: %w", err)
	}

	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("create sqlite migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}

	return &Migrator{migrate: m, source: src, logger: logger}, nil
}

// Up applies all pending migrations. A dirty schema is rolled back to the
// version before the failed migration, which is then applied again. The
// migrations only create missing objects, so re-running one is safe.
func (m *Migrator) Up() error {
	version, dirty, err := m.migrate.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("read schema version: %w", err)
	}

	if dirty {
		previous, err := m.previousVersion(version)
		if err != nil {
			return err
		}

		m.logger.Warn("schema is dirty, retrying failed migration",
			zap.Uint("failed_version", version),
			zap.Int("forced_version", previous),
		)

		if err := m.migrate.Force(previous); err != nil {
			return fmt.Errorf("force schema version: %w", err)
		}
	}

	if err := m.migrate.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			m.logger.Info("schema is up to date")

			return nil
		}

		return fmt.Errorf("apply migrations: %w", err)
	}

	newVersion, _, _ := m.migrate.Version()
	m.logger.Info("schema migrated", zap.Uint("version", newVersion))

	return nil
}

// previousVersion returns the migration version preceding version, or
// database.NilVersion when version is the first one.
func (m *Migrator) previousVersion(version uint) (int, error) {
	prev, err := m.source.Prev(version)
	if errors.Is(err, fs.ErrNotExist) {
		return database.NilVersion, nil
	}

	if err != nil {
		return 0, fmt.Errorf("find migration before version %d: %w", version, err)
	}

	return int(prev), nil
}

// Down rolls back one migration.
func (m *Migrator) Down() error {
	if err := m.migrate.Steps(-1); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}

		return fmt.Errorf("roll back migration: %w", err)
	}

	return nil
}

// Version returns the current schema version.
func (m *Migrator) Version() (uint, bool, error) {
	return m.migrate.Version()
}

// Close releases the migration source and, for migrators that opened their
// own connection, the database.
func (m *Migrator) Close() error {
	if !m.ownsDB {
		return nil
	}

	sourceErr, dbErr := m.migrate.Close()
	if sourceErr != nil {
		return fmt.Errorf("close migration source: %w", sourceErr)
	}

	if dbErr != nil {
		return fmt.Errorf("close migration database: %w", dbErr)
	}

	return nil
}

// pgxURL rewrites a postgres URL to the scheme of the pgx/v5 migrate driver.
func pgxURL(databaseURL string) string {
	for _, prefix := range []string{"postgresql://", "postgres://"} {
		if rest, ok := strings.CutPrefix(databaseURL, prefix); ok {
			return "pgx5://" + rest
		}
	}

	return databaseURL
}
