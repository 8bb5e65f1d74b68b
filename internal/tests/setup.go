package tests

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/potholewatch/server/internal/db"
)

// OpenSQLiteAt opens and migrates a SQLite database file in dir.
func OpenSQLiteAt(ctx context.Context, dir string) (*sql.DB, error) {
	database, err := db.OpenSQLite(ctx, filepath.Join(dir, "potholes.db"))
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(database, db.SQLite); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return database, nil
}

// OpenPostgres opens and migrates the database at databaseURL, then empties its tables.
func OpenPostgres(ctx context.Context, databaseURL string) (*sql.DB, error) {
	database, err := db.OpenPostgres(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(database, db.Postgres); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	if err := TruncateTables(ctx, database); err != nil {
		_ = database.Close()
		return nil, err
	}
	return database, nil
}

// TruncateTables empties the report and pending code tables for a clean test state.
func TruncateTables(ctx context.Context, database *sql.DB) error {
	_, err := database.ExecContext(ctx, "TRUNCATE TABLE reports, pending_codes")
	if err != nil {
		return fmt.Errorf("truncate tables: %w", err)
	}
	return nil
}
