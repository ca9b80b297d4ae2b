package database

import (
	"errors"
	"fmt"

	"github.com/alexivanou/cityweather-api/internal/config"
	"github.com/alexivanou/cityweather-api/migrations"
	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
)

// NewMigrator builds a migrate instance over an already opened connection,
// reading the schema for the configured backend from the embedded files.
func NewMigrator(db *sqlx.DB, dbType config.DBType) (*migrate.Migrate, error) {
	dir := "postgres"
	if dbType == config.DBTypeSQLite || dbType == config.DBTypeMemory {
		dir = "sqlite"
	}

	source, err := iofs.New(migrations.FS, dir)
	if err != nil {
		return nil, fmt.Errorf("could not open migration source: %w", err)
	}

	var (
		driver     migratedb.Driver
		driverName string
	)
	if dir == "sqlite" {
		// Use driver instance directly to avoid DSN parsing issues with in-memory SQLite
		driver, err = sqlite3.WithInstance(db.DB, &sqlite3.Config{})
		driverName = "sqlite3"
	} else {
		driver, err = postgres.WithInstance(db.DB, &postgres.Config{})
		driverName = "postgres"
	}
	if err != nil {
		return nil, fmt.Errorf("could not create %s driver: %w", driverName, err)
	}

	m, err := migrate.NewWithInstance("iofs", source, driverName, driver)
	if err != nil {
		return nil, fmt.Errorf("could not create migrate instance: %w", err)
	}
	return m, nil
}

// Migrate brings the schema up to date. It is safe to call on every startup.
func Migrate(db *sqlx.DB, dbType config.DBType) error {
	m, err := NewMigrator(db, dbType)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}
