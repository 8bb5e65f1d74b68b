package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/potholewatch/server/internal/db"
	"github.com/potholewatch/server/internal/model"
)

// CodeRepo holds at most one pending one-time code per identifier.
type CodeRepo interface {
	// Put stores code, replacing any pending code for the same identifier.
	Put(ctx context.Context, code model.PendingCode) error
	// Consume removes the pending code for identifier if its hash equals codeHash
	// and it has not expired at now. Concurrent callers with the same matching hash
	// see exactly one success; the rest get ErrCodeMismatch.
	Consume(ctx context.Context, identifier, codeHash string, now time.Time) error
	// Sweep drops codes that expired before now.
	Sweep(ctx context.Context, now time.Time) (int64, error)
	Close() error
}

type sqlCodeRepo struct {
	db      *sql.DB
	dialect db.Dialect
}

// NewSQLCodeRepo creates a CodeRepo over the pending_codes table
func NewSQLCodeRepo(database *sql.DB, dialect db.Dialect) CodeRepo {
	return &sqlCodeRepo{db: database, dialect: dialect}
}

// Put upserts on the identifier primary key so the newest code always wins.
func (r *sqlCodeRepo) Put(ctx context.Context, code model.PendingCode) error {
	query := rebind(r.dialect, `
		INSERT INTO pending_codes (identifier, code_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (identifier) DO UPDATE
		SET code_hash = excluded.code_hash,
		    expires_at = excluded.expires_at,
		    created_at = excluded.created_at
	`)
	_, err := r.db.ExecContext(ctx, query,
		code.Identifier,
		code.CodeHash,
		toMillis(code.ExpiresAt),
		toMillis(code.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("%w: upsert pending code: %w", ErrStorage, err)
	}
	return nil
}

// Consume is a single conditional DELETE; the row lock makes it a compare-and-remove.
func (r *sqlCodeRepo) Consume(ctx context.Context, identifier, codeHash string, now time.Time) error {
	query := rebind(r.dialect, `
		DELETE FROM pending_codes
		WHERE identifier = $1
		  AND code_hash = $2
		  AND (expires_at = 0 OR expires_at >= $3)
	`)
	result, err := r.db.ExecContext(ctx, query, identifier, codeHash, toMillis(now))
	if err != nil {
		return fmt.Errorf("%w: consume pending code: %w", ErrStorage, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: consume pending code: %w", ErrStorage, err)
	}
	if n == 0 {
		return ErrCodeMismatch
	}
	return nil
}

// Sweep deletes expired codes and returns how many were removed.
func (r *sqlCodeRepo) Sweep(ctx context.Context, now time.Time) (int64, error) {
	query := rebind(r.dialect, `
		DELETE FROM pending_codes
		WHERE expires_at <> 0 AND expires_at < $1
	`)
	result, err := r.db.ExecContext(ctx, query, toMillis(now))
	if err != nil {
		return 0, fmt.Errorf("%w: sweep pending codes: %w", ErrStorage, err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// Close is a no-op; the *sql.DB is owned by the caller that opened it.
func (r *sqlCodeRepo) Close() error {
	return nil
}
