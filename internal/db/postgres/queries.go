package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/reputation-ledger/internal/common"
)

const uniqueViolation = "23505"

// ExecMigrationSQL runs one migration inside a transaction and records its
// version. It reports false when the version was already applied.
func ExecMigrationSQL(ctx context.Context, pool *pgxpool.Pool, version int, sql string) (bool, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	// Serializes concurrent instances starting at the same time.
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(7426001)"); err != nil {
		return false, fmt.Errorf("migration lock: %w", err)
	}

	var exists bool
	err = tx.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)", version,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check migration: %w", err)
	}
	if exists {
		return false, nil
	}

	if _, err := tx.Exec(ctx, sql); err != nil {
		return false, fmt.Errorf("exec migration %d: %w", version, err)
	}
	if _, err := tx.Exec(ctx,
		"INSERT INTO schema_migrations (version) VALUES ($1)", version,
	); err != nil {
		return false, fmt.Errorf("record migration version: %w", err)
	}

	return true, tx.Commit(ctx)
}

// IsUniqueViolation reports whether err is a unique violation, optionally
// restricted to one constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// Unavailable wraps a driver failure so callers can match common.ErrUnavailable
// while the original error stays in the chain.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, common.ErrUnavailable, err)
}
