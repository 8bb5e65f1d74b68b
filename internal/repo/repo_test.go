package repo

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/potholewatch/server/internal/db"
	"github.com/stretchr/testify/require"
)

// backend pairs a name with constructors for both repos sharing one store.
type backend struct {
	name    string
	reports func(t *testing.T) ReportRepo
	codes   func(t *testing.T) CodeRepo
}

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err, "open sqlite")
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.Migrate(database, db.SQLite), "migrate sqlite")
	return database
}

func openPostgres(t *testing.T) *sql.DB {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set; skipping postgres test")
	}
	database, err := db.OpenPostgres(context.Background(), url)
	require.NoError(t, err, "open postgres")
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.Migrate(database, db.Postgres), "migrate postgres")
	_, err = database.Exec(`TRUNCATE TABLE reports, pending_codes`)
	require.NoError(t, err, "truncate tables")
	return database
}

func backends() []backend {
	return []backend{
		{
			name:    "memory",
			reports: func(t *testing.T) ReportRepo { return NewMemoryReportRepo() },
			codes: func(t *testing.T) CodeRepo {
				r := NewMemoryCodeRepo(0)
				t.Cleanup(func() { r.Close() })
				return r
			},
		},
		{
			name:    "sqlite",
			reports: func(t *testing.T) ReportRepo { return NewSQLReportRepo(openSQLite(t), db.SQLite) },
			codes:   func(t *testing.T) CodeRepo { return NewSQLCodeRepo(openSQLite(t), db.SQLite) },
		},
		{
			name:    "postgres",
			reports: func(t *testing.T) ReportRepo { return NewSQLReportRepo(openPostgres(t), db.Postgres) },
			codes:   func(t *testing.T) CodeRepo { return NewSQLCodeRepo(openPostgres(t), db.Postgres) },
		},
	}
}
