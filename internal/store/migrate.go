package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	MigrateUp   = "up"
	MigrateDown = "down"
)

// Migrate applies or rolls back the embedded migrations. steps <= 0 means all of them.
func (s *Store) Migrate(direction string, steps int, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if direction != MigrateUp && direction != MigrateDown {
		return fmt.Errorf("invalid migration direction %q (must be %q or %q)", direction, MigrateUp, MigrateDown)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}

	driver, closeDB, err := s.migrationDriver()
	if err != nil {
		return err
	}
	defer closeDB()

	m, err := migrate.NewWithInstance("iofs", source, s.cfg.Driver, driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	switch {
	case direction == MigrateUp && steps <= 0:
		err = m.Up()
	case direction == MigrateUp:
		err = m.Steps(steps)
	case steps <= 0:
		err = m.Down()
	default:
		err = m.Steps(-steps)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("no pending migrations", zap.String("direction", direction))
		return nil
	}
	if err != nil {
		return fmt.Errorf("run migrations %s: %w", direction, err)
	}

	version, dirty, verr := m.Version()
	if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
		return fmt.Errorf("get migration version: %w", verr)
	}

	logger.Info("migrations applied",
		zap.String("direction", direction),
		zap.Uint("version", version),
		zap.Bool("dirty", dirty),
	)
	return nil
}

// migrationDriver returns a golang-migrate driver. PostgreSQL gets its own connection
// because the driver pins one for its lifetime; SQLite reuses the store connection.
func (s *Store) migrationDriver() (database.Driver, func(), error) {
	switch s.cfg.Driver {
	case DriverSQLite:
		driver, err := migratesqlite.WithInstance(s.db.DB, &migratesqlite.Config{})
		if err != nil {
			return nil, nil, fmt.Errorf("create sqlite migration driver: %w", err)
		}
		return driver, func() {}, nil
	case DriverPostgres:
		db, err := sql.Open(DriverPostgres, s.cfg.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("open migration connection: %w", err)
		}
		driver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
		if err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("create postgres migration driver: %w", err)
		}
		return driver, func() {
			_ = driver.Close()
			_ = db.Close()
		}, nil
	default:
		return nil, nil, fmt.Errorf("migrations are not supported for driver %q", s.cfg.Driver)
	}
}
