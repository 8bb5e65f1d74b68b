package db

import (
	"database/sql"
	"fmt"
	"log"
	"sync"

	"github.com/potholewatch/server/internal/db/migrations"
	"github.com/pressly/goose/v3"
)

// Dialect names the SQL flavour behind a *sql.DB
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// goose keeps its dialect and base FS in package globals
var migrateMu sync.Mutex

// Migrate runs the embedded goose migrations against database
func Migrate(database *sql.DB, dialect Dialect) error {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	gooseDialect := "postgres"
	if dialect == SQLite {
		gooseDialect = "sqlite3"
	}

	goose.SetBaseFS(migrations.FS)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect(gooseDialect); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	log.Printf("Running %s migrations", dialect)
	if err := goose.Up(database, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
