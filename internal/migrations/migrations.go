// Package migrations embeds the SQL schema for the sample, resource,
// tariff and score tables and applies it at startup.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed *.sql
var schemaFiles embed.FS

// RunMigrations brings the schema up to the embedded version. With
// autoMigrate disabled it reports the current version and applies nothing.
func RunMigrations(db *sql.DB, autoMigrate bool) error {
	source, err := iofs.New(schemaFiles, ".")
	if err != nil {
		return fmt.Errorf("failed to load embedded schema: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if dirty {
		// An interrupted run left the version flagged dirty. The baseline
		// migration is the only one, so forcing back to the recorded
		// version is safe and lets Up re-apply cleanly.
		slog.Warn("[Migrations] Schema flagged dirty, forcing recorded version",
			"version", version)
		if err := m.Force(int(version)); err != nil {
			return fmt.Errorf("failed to clear dirty schema state at version %d: %w", version, err)
		}
	}

	if !autoMigrate {
		slog.Info("[Migrations] Auto-migration disabled, leaving schema as is",
			"current_version", version)
		return nil
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			slog.Info("[Migrations] Schema already current", "version", version)
			return nil
		}
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	applied, _, err := m.Version()
	if err != nil {
		return fmt.Errorf("failed to read schema version after migrating: %w", err)
	}
	slog.Info("[Migrations] Schema migrated",
		"from_version", version, "to_version", applied)
	return nil
}
