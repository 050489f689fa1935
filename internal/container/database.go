package container

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/do"
	"github.com/serroba/shortlink/internal/analytics"
	"github.com/serroba/shortlink/internal/migrations"
	"github.com/serroba/shortlink/internal/shortener"
	"github.com/serroba/shortlink/internal/store"
	"go.uber.org/zap"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = Memory
)

var ErrUnsupportedDatabase = errors.New("unsupported database url")

// Database is the open connection behind the link store.
type Database struct {
	Driver string
	Pool   *pgxpool.Pool
	SQL    *sql.DB
}

// Ping checks the connection. The in-memory database is always reachable.
func (d *Database) Ping(ctx context.Context) error {
	switch {
	case d.Pool != nil:
		return d.Pool.Ping(ctx)
	case d.SQL != nil:
		return d.SQL.PingContext(ctx)
	default:
		return nil
	}
}

func (d *Database) Shutdown() error {
	if d.Pool != nil {
		d.Pool.Close()
	}

	if d.SQL != nil {
		return d.SQL.Close()
	}

	return nil
}

// LinkStore is the persistence every backend provides.
type LinkStore interface {
	shortener.Repository
	analytics.ClickReader
}

// ParseDatabaseURL splits raw into a driver name and the DSN that driver opens.
func ParseDatabaseURL(raw string) (driver, dsn string, err error) {
	switch {
	case raw == Memory:
		return DriverMemory, "", nil
	case strings.HasPrefix(raw, "postgres://"), strings.HasPrefix(raw, "postgresql://"):
		return DriverPostgres, raw, nil
	case strings.HasPrefix(raw, "sqlite://"):
		path := strings.TrimPrefix(raw, "sqlite://")
		if path == "" {
			return "", "", fmt.Errorf("%w: %q has no path", ErrUnsupportedDatabase, raw)
		}

		return DriverSQLite, path, nil
	default:
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedDatabase, raw)
	}
}

// DatabasePackage provides the *Database, migrated when Options.Migrate is set.
func DatabasePackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*Database, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)

		driver, dsn, err := ParseDatabaseURL(opts.DatabaseURL)
		if err != nil {
			return nil, err
		}

		db, err := openDatabase(driver, dsn, millis(opts.StoreTimeoutMS))
		if err != nil {
			return nil, fmt.Errorf("open %s database: %w", driver, err)
		}

		if opts.Migrate {
			if err := migrate(db, dsn, logger); err != nil {
				_ = db.Shutdown()

				return nil, err
			}
		}

		logger.Info("database ready", zap.String("driver", driver))

		return db, nil
	})
}

func openDatabase(driver, dsn string, timeout time.Duration) (*Database, error) {
	switch driver {
	case DriverPostgres:
		if timeout <= 0 {
			timeout = shortener.DefaultStoreTimeout
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return nil, err
		}

		if err := pool.Ping(ctx); err != nil {
			pool.Close()

			return nil, err
		}

		return &Database{Driver: driver, Pool: pool}, nil
	case DriverSQLite:
		db, err := store.OpenSQLite(dsn)
		if err != nil {
			return nil, err
		}

		return &Database{Driver: driver, SQL: db}, nil
	default:
		return &Database{Driver: DriverMemory}, nil
	}
}

func migrate(db *Database, dsn string, logger *zap.Logger) error {
	var (
		m   *migrations.Migrator
		err error
	)

	switch db.Driver {
	case DriverPostgres:
		m, err = migrations.NewPostgres(dsn, logger)
	case DriverSQLite:
		m, err = migrations.NewSQLite(db.SQL, logger)
	default:
		return nil
	}

	if err != nil {
		return err
	}

	defer func() { _ = m.Close() }()

	if err := m.Up(); err != nil {
		return fmt.Errorf("migrate %s: %w", db.Driver, err)
	}

	return nil
}

// RepositoryPackage provides the LinkStore matching the database driver,
// exposed as shortener.Repository and analytics.ClickReader.
func RepositoryPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (LinkStore, error) {
		db := do.MustInvoke[*Database](i)

		switch db.Driver {
		case DriverPostgres:
			return store.NewPostgresStore(db.Pool), nil
		case DriverSQLite:
			return store.NewSQLiteStore(db.SQL), nil
		default:
			return store.NewMemoryStore(), nil
		}
	})

	do.Provide(i, func(i *do.Injector) (shortener.Repository, error) {
		return do.MustInvoke[LinkStore](i), nil
	})

	do.Provide(i, func(i *do.Injector) (analytics.ClickReader, error) {
		return do.MustInvoke[LinkStore](i), nil
	})
}
