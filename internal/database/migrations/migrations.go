package migrations

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// MigrateOptions defines configuration options for migration
type MigrateOptions struct {
	// MigrationsDir is the directory containing migration files
	MigrationsDir string
	// AutoMigrate determines whether to run migrations automatically on startup
	AutoMigrate bool
}

// DefaultOptions returns the default migration options
func DefaultOptions() MigrateOptions {
	dir := os.Getenv("MIGRATIONS_DIR")
	if dir == "" {
		dir = "./migrations"
	}
	return MigrateOptions{
		MigrationsDir: dir,
		AutoMigrate:   os.Getenv("AUTO_MIGRATE") != "false",
	}
}

// Run applies pending migrations against the given database handle.
func Run(sqldb *sql.DB, opts MigrateOptions) error {
	if !opts.AutoMigrate {
		log.Println("[Migrations] AUTO_MIGRATE disabled, skipping")
		return nil
	}

	driver, err := postgres.WithInstance(sqldb, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+opts.MigrationsDir, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to init migrations from %s: %w", opts.MigrationsDir, err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Println("[Migrations] Schema up to date")
			return nil
		}
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	log.Println("[Migrations] Migrations applied")
	return nil
}
