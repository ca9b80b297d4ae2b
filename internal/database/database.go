package database

import (
	"context"
	"fmt"

	"github.com/alexivanou/cityweather-api/internal/config"
	_ "github.com/jackc/pgx/v5/stdlib" // Postgres driver for database/sql
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Connect creates a database connection based on configuration using sqlx.
// The returned handle is shared by request handlers and the refresh scheduler;
// the caller owns it and must Close it on shutdown.
func Connect(ctx context.Context, cfg config.DBConfig) (*sqlx.DB, error) {
	driverName := "pgx"
	if cfg.IsSQLite() {
		driverName = "sqlite3"
	}

	db, err := sqlx.ConnectContext(ctx, driverName, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite serializes writers anyway; a single connection keeps every
	// statement atomic and keeps shared-cache memory databases alive.
	if cfg.IsSQLite() {
		db.SetMaxOpenConns(1)
	}

	return db, nil
}
