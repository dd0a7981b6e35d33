package achievement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/reputation-ledger/internal/db/postgres"
)

// Repository stores progress in achievement_progress and the processed
// marks in achievement_marks.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const progressColumns = `user_id, type, current_progress, max_progress, unlocked_at, rarity, COALESCE(token_id, ''), updated_at`

func scanProgress(row pgx.Row) (*Progress, error) {
	var p Progress
	if err := row.Scan(&p.UserID, &p.Type, &p.CurrentProgress, &p.MaxProgress,
		&p.UnlockedAt, &p.Rarity, &p.TokenID, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// Advance locks the progress row, so concurrent consumers of different
// transactions for one user serialize here.
func (r *Repository) Advance(ctx context.Context, userID int64, txID uuid.UUID, def Definition, step Step, now time.Time) (*Progress, Result, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, Result{}, postgres.Unavailable("begin advance", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO achievement_progress (user_id, type, current_progress, max_progress, rarity, updated_at)
		VALUES ($1, $2, 0, $3, $4, $5)
		ON CONFLICT (user_id, type) DO NOTHING
	`, userID, def.Type, def.MaxProgress, def.Rarity, now); err != nil {
		return nil, Result{}, postgres.Unavailable("ensure progress", err)
	}

	p, err := scanProgress(tx.QueryRow(ctx, `
		SELECT `+progressColumns+` FROM achievement_progress
		WHERE user_id = $1 AND type = $2
		FOR UPDATE
	`, userID, def.Type))
	if err != nil {
		return nil, Result{}, postgres.Unavailable("lock progress", err)
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO achievement_marks (transaction_id, achievement_type, user_id)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`, txID, def.Type, userID)
	if err != nil {
		return nil, Result{}, postgres.Unavailable("mark transaction", err)
	}
	if tag.RowsAffected() == 0 {
		return p, Result{}, nil
	}

	res := Result{Applied: true}
	p.CurrentProgress = Advance(p.CurrentProgress, p.MaxProgress, step)
	p.UpdatedAt = now
	if p.UnlockedAt == nil && p.CurrentProgress >= p.MaxProgress {
		at := now
		p.UnlockedAt = &at
		res.Unlocked = true
	}

	if _, err := tx.Exec(ctx, `
		UPDATE achievement_progress
		SET current_progress = $3, unlocked_at = $4, updated_at = $5
		WHERE user_id = $1 AND type = $2
	`, userID, def.Type, p.CurrentProgress, p.UnlockedAt, now); err != nil {
		return nil, Result{}, postgres.Unavailable("update progress", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, Result{}, postgres.Unavailable("commit advance", err)
	}
	return p, res, nil
}

func (r *Repository) List(ctx context.Context, userID int64) ([]*Progress, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+progressColumns+` FROM achievement_progress
		WHERE user_id = $1
		ORDER BY type
	`, userID)
	if err != nil {
		return nil, postgres.Unavailable("list progress", err)
	}
	defer rows.Close()

	var out []*Progress
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repository) SetToken(ctx context.Context, userID int64, achievementType, tokenID string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE achievement_progress SET token_id = $3
		WHERE user_id = $1 AND type = $2 AND token_id IS NULL
	`, userID, achievementType, tokenID)
	if err != nil {
		return postgres.Unavailable("set token", err)
	}
	return nil
}
