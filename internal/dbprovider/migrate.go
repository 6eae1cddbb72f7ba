package dbprovider

import (
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// RunMigrations applies all pending schema migrations for every engine
// component (catalog, capability, signal, pipeline, evaluation,
// decision, auditlog). The connection string's scheme selects the
// driver: pgx5:// uses pgx/v5, sqlite3:// uses sqlite3.
func RunMigrations(connString string, logger *zap.Logger) error {
	logger = logger.With(zap.String("component", "migrations"))
	logger.Info("applying database migrations")

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, connString)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("get current migration version: %w", err)
	}
	if dirty {
		return fmt.Errorf("database is in dirty state at version %d", version)
	}
	logger.Info("current migration version", zap.Uint("version", version))

	if err := m.Up(); err != nil {
		if err == migrate.ErrNoChange {
			logger.Info("no pending migrations")
			return nil
		}
		return fmt.Errorf("apply migrations: %w", err)
	}

	newVersion, _, err := m.Version()
	if err != nil {
		return fmt.Errorf("get new migration version: %w", err)
	}
	logger.Info("migrations applied successfully", zap.Uint("new_version", newVersion))
	return nil
}
