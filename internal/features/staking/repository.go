package staking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/reputation-ledger/internal/common"
	"serotonyl.ru/reputation-ledger/internal/db/postgres"
)

// Repository stores stakes in the stakes table.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const columns = `id, user_id, stake_type, amount, locked_until, status, settlement_tx_id, created_at, settled_at`

func scanStake(row pgx.Row) (*Stake, error) {
	var s Stake
	err := row.Scan(&s.ID, &s.UserID, &s.StakeType, &s.Amount, &s.LockedUntil,
		&s.Status, &s.SettlementTxID, &s.CreatedAt, &s.SettledAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repository) Create(ctx context.Context, s *Stake) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO stakes (id, user_id, stake_type, amount, locked_until, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, s.ID, s.UserID, s.StakeType, s.Amount, s.LockedUntil, s.Status, s.CreatedAt)
	if err != nil {
		return postgres.Unavailable("insert stake", err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*Stake, error) {
	s, err := scanStake(r.db.QueryRow(ctx, `SELECT `+columns+` FROM stakes WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, postgres.Unavailable("get stake", err)
	}
	return s, nil
}

func (r *Repository) ListByUser(ctx context.Context, userID int64) ([]*Stake, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+columns+` FROM stakes
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, postgres.Unavailable("list stakes", err)
	}
	return collect(rows)
}

func (r *Repository) ListMatured(ctx context.Context, now time.Time, limit int) ([]*Stake, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+columns+` FROM stakes
		WHERE status = 'active' AND locked_until <= $1
		ORDER BY locked_until ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, postgres.Unavailable("list matured stakes", err)
	}
	return collect(rows)
}

// Settle is guarded by the status predicate: a concurrent sweep that lost
// the race updates zero rows.
func (r *Repository) Settle(ctx context.Context, id uuid.UUID, status Status, txID uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE stakes
		SET status = $2, settlement_tx_id = $3, settled_at = $4
		WHERE id = $1 AND status = 'active'
	`, id, status, txID, at)
	if err != nil {
		return false, postgres.Unavailable("settle stake", err)
	}
	return tag.RowsAffected() == 1, nil
}

func collect(rows pgx.Rows) ([]*Stake, error) {
	defer rows.Close()
	var out []*Stake
	for rows.Next() {
		s, err := scanStake(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stake: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
