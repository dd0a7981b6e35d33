package endorsement

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/reputation-ledger/internal/common"
	"serotonyl.ru/reputation-ledger/internal/db/postgres"
)

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const columns = `id, endorser_id, endorsed_id, skill, level, COALESCE(comment, ''), weight, amount, transaction_id, created_at`

func scanEndorsement(row pgx.Row) (*Endorsement, error) {
	var e Endorsement
	if err := row.Scan(&e.ID, &e.EndorserID, &e.EndorsedID, &e.Skill, &e.Level,
		&e.Comment, &e.Weight, &e.Amount, &e.TransactionID, &e.CreatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

// Create takes a transaction-scoped advisory lock on (endorsed, skill) so
// concurrent endorsements of the same skill see each other's credit.
func (r *Repository) Create(ctx context.Context, e *Endorsement, skillCap float64) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return postgres.Unavailable("begin endorsement", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
		fmt.Sprintf("endorsement:%d:%s", e.EndorsedID, e.Skill),
	); err != nil {
		return postgres.Unavailable("lock skill", err)
	}

	var credited float64
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM endorsements WHERE endorsed_id = $1 AND skill = $2`,
		e.EndorsedID, e.Skill,
	).Scan(&credited); err != nil {
		return postgres.Unavailable("sum credited", err)
	}
	e.Amount = math.Max(0, math.Min(e.Amount, skillCap-credited))

	_, err = tx.Exec(ctx, `
		INSERT INTO endorsements (id, endorser_id, endorsed_id, skill, level, comment, weight, amount, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9)
	`, e.ID, e.EndorserID, e.EndorsedID, e.Skill, e.Level, e.Comment, e.Weight, e.Amount, e.CreatedAt)
	if postgres.IsUniqueViolation(err, "endorsements_once_per_skill") {
		return common.ErrDuplicateEndorsement
	}
	if err != nil {
		return postgres.Unavailable("insert endorsement", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return postgres.Unavailable("commit endorsement", err)
	}
	return nil
}

func (r *Repository) SetTransaction(ctx context.Context, id, txID uuid.UUID) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE endorsements SET transaction_id = $2 WHERE id = $1`, id, txID)
	if err != nil {
		return postgres.Unavailable("set endorsement transaction", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *Repository) ListUncredited(ctx context.Context, limit int) ([]*Endorsement, error) {
	return r.list(ctx, `
		SELECT `+columns+` FROM endorsements
		WHERE amount > 0 AND transaction_id IS NULL
		ORDER BY created_at ASC
		LIMIT $1
	`, limit)
}

func (r *Repository) ListReceived(ctx context.Context, userID int64) ([]*Endorsement, error) {
	return r.list(ctx, `
		SELECT `+columns+` FROM endorsements
		WHERE endorsed_id = $1
		ORDER BY created_at DESC
	`, userID)
}

func (r *Repository) ListGiven(ctx context.Context, userID int64) ([]*Endorsement, error) {
	return r.list(ctx, `
		SELECT `+columns+` FROM endorsements
		WHERE endorser_id = $1
		ORDER BY created_at DESC
	`, userID)
}

func (r *Repository) list(ctx context.Context, query string, arg any) ([]*Endorsement, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, postgres.Unavailable("list endorsements", err)
	}
	defer rows.Close()

	var out []*Endorsement
	for rows.Next() {
		e, err := scanEndorsement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan endorsement: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
