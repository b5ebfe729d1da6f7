package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"deyn.app/cloud/internal/logger"
)

//go:embed migrations
var migrationFS embed.FS

// migrateSQLite applies the embedded SQLite migrations on an open handle.
// The migrate instance is not closed: its sqlite3 driver would close db.
func migrateSQLite(db *sql.DB) error {
	src, err := iofs.New(migrationFS, "migrations/sqlite")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	defer src.Close()

	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to init sqlite3 migrate driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to init migrate: %w", err)
	}
	return runUp(m, "sqlite")
}

func migratePostgres(databaseURL string) error {
	src, err := iofs.New(migrationFS, "migrations/postgres")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, pgx5URL(databaseURL))
	if err != nil {
		return fmt.Errorf("failed to init migrate: %w", err)
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logger.Warn("Failed to close migrator", map[string]interface{}{
				"source_error":   fmt.Sprint(srcErr),
				"database_error": fmt.Sprint(dbErr),
			})
		}
	}()
	return runUp(m, "postgres")
}

func runUp(m *migrate.Migrate, backend string) error {
	err := m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Debug("Schema up to date", map[string]interface{}{"backend": backend})
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, _ := m.Version()
	logger.Info("Migrations applied", map[string]interface{}{
		"backend": backend,
		"version": version,
		"dirty":   dirty,
	})
	return nil
}

// pgx5URL rewrites a postgres:// URL to the scheme registered by the
// migrate pgx/v5 driver.
func pgx5URL(databaseURL string) string {
	for _, scheme := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(databaseURL, scheme) {
			return "pgx5://" + strings.TrimPrefix(databaseURL, scheme)
		}
	}
	return databaseURL
}
