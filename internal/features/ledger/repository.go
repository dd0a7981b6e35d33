package ledger

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
	"serotonyl.ru/reputation-ledger/internal/features/scoring"
)

// Repository is the PostgreSQL Store over reputation_scores,
// reputation_transactions and transaction_outbox.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates the ledger repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const scoreColumns = `
	user_id, total_score, level, rank,
	matching_score, contribution_score, collaboration_score, community_score,
	verification_level, trust_score, total_transactions,
	successful_matches, failed_matches, penalty_count,
	COALESCE(wallet_address, ''), version, created_at, updated_at`

const txColumns = `
	id, user_id, type, category, amount, reason, ref, status, tx_hash, created_at, confirmed_at`

func scanScore(row pgx.Row) (*Score, error) {
	var s Score
	err := row.Scan(
		&s.UserID, &s.TotalScore, &s.Level, &s.Rank,
		&s.Matching, &s.Contribution, &s.Collaboration, &s.Community,
		&s.VerificationLevel, &s.TrustScore, &s.TotalTransactions,
		&s.SuccessfulMatches, &s.FailedMatches, &s.PenaltyCount,
		&s.WalletAddress, &s.Version, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func scanTransaction(row pgx.Row) (*Transaction, error) {
	var (
		t      Transaction
		ref    *string
		txHash *string
	)
	err := row.Scan(
		&t.ID, &t.UserID, &t.Type, &t.Category, &t.Amount, &t.Reason,
		&ref, &t.Status, &txHash, &t.CreatedAt, &t.ConfirmedAt,
	)
	if err != nil {
		return nil, err
	}
	if ref != nil {
		t.Ref = *ref
	}
	if txHash != nil {
		t.TxHash = *txHash
	}
	return &t, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *Repository) CreateScore(ctx context.Context, s *Score) (bool, error) {
	query := `
		INSERT INTO reputation_scores (
			user_id, total_score, level, rank,
			matching_score, contribution_score, collaboration_score, community_score,
			verification_level, trust_score, total_transactions,
			successful_matches, failed_matches, penalty_count,
			wallet_address, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (user_id) DO NOTHING
	`
	tag, err := r.db.Exec(ctx, query,
		s.UserID, s.TotalScore, s.Level, s.Rank,
		s.Matching, s.Contribution, s.Collaboration, s.Community,
		s.VerificationLevel, s.TrustScore, s.TotalTransactions,
		s.SuccessfulMatches, s.FailedMatches, s.PenaltyCount,
		nullable(s.WalletAddress), s.Version, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return false, postgres.Unavailable("create score", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) GetScore(ctx context.Context, userID int64) (*Score, error) {
	query := `SELECT ` + scoreColumns + ` FROM reputation_scores WHERE user_id = $1`
	s, err := scanScore(r.db.QueryRow(ctx, query, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrUserNotFound
	}
	if err != nil {
		return nil, postgres.Unavailable("get score", err)
	}
	return s, nil
}

// Commit swaps the score on its version, then inserts the transaction and
// its outbox row. The version check comes first so a racing writer fails
// before it touches the transaction table.
func (r *Repository) Commit(ctx context.Context, m Mutation) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return postgres.Unavailable("begin commit", err)
	}
	defer tx.Rollback(ctx)

	s := m.Score
	tag, err := tx.Exec(ctx, `
		UPDATE reputation_scores SET
			total_score = $3, level = $4, rank = $5,
			matching_score = $6, contribution_score = $7,
			collaboration_score = $8, community_score = $9,
			trust_score = $10, total_transactions = $11,
			successful_matches = $12, failed_matches = $13, penalty_count = $14,
			version = $15, updated_at = $16
		WHERE user_id = $1 AND version = $2
	`,
		s.UserID, m.ExpectedVersion, s.TotalScore, s.Level, s.Rank,
		s.Matching, s.Contribution, s.Collaboration, s.Community,
		s.TrustScore, s.TotalTransactions,
		s.SuccessfulMatches, s.FailedMatches, s.PenaltyCount,
		s.Version, s.UpdatedAt,
	)
	if err != nil {
		return postgres.Unavailable("update score", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrVersionConflict
	}

	t := m.Tx
	_, err = tx.Exec(ctx, `
		INSERT INTO reputation_transactions
			(id, user_id, type, category, amount, reason, ref, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, t.ID, t.UserID, t.Type, t.Category, t.Amount, t.Reason, nullable(t.Ref), t.Status, t.CreatedAt)
	if postgres.IsUniqueViolation(err, "reputation_transactions_ref_key") {
		return errDuplicateRef
	}
	if err != nil {
		return postgres.Unavailable("insert transaction", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO transaction_outbox (transaction_id, user_id, payload, created_at) VALUES ($1, $2, $3, $4)`,
		t.ID, t.UserID, m.Event, t.CreatedAt,
	); err != nil {
		return postgres.Unavailable("insert outbox", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return postgres.Unavailable("commit", err)
	}
	return nil
}

func (r *Repository) FindByRef(ctx context.Context, ref string) (*Transaction, error) {
	query := `SELECT ` + txColumns + ` FROM reputation_transactions WHERE ref = $1`
	t, err := scanTransaction(r.db.QueryRow(ctx, query, ref))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, postgres.Unavailable("find transaction by ref", err)
	}
	return t, nil
}

func (r *Repository) ListTransactions(ctx context.Context, userID int64, before time.Time, beforeID string, limit int) ([]*Transaction, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if before.IsZero() {
		rows, err = r.db.Query(ctx, `
			SELECT `+txColumns+` FROM reputation_transactions
			WHERE user_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		`, userID, limit)
	} else {
		id, perr := uuid.Parse(beforeID)
		if perr != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrInvalidCursor, perr)
		}
		rows, err = r.db.Query(ctx, `
			SELECT `+txColumns+` FROM reputation_transactions
			WHERE user_id = $1 AND (created_at, id) < ($2, $3)
			ORDER BY created_at DESC, id DESC
			LIMIT $4
		`, userID, before, id, limit)
	}
	if err != nil {
		return nil, postgres.Unavailable("list transactions", err)
	}
	return collectTransactions(rows)
}

func collectTransactions(rows pgx.Rows) ([]*Transaction, error) {
	defer rows.Close()
	var out []*Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.Unavailable("read transactions", err)
	}
	return out, nil
}

func (r *Repository) CountSince(ctx context.Context, userID int64, txType TxType, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM reputation_transactions
		WHERE user_id = $1 AND type = $2 AND created_at >= $3
	`, userID, txType, since).Scan(&n)
	if err != nil {
		return 0, postgres.Unavailable("count transactions", err)
	}
	return n, nil
}

func (r *Repository) SumByCategory(ctx context.Context, userID int64) (map[scoring.Category]float64, error) {
	rows, err := r.db.Query(ctx, `
		SELECT category, SUM(amount) FROM reputation_transactions
		WHERE user_id = $1
		GROUP BY category
	`, userID)
	if err != nil {
		return nil, postgres.Unavailable("sum transactions", err)
	}
	defer rows.Close()

	sums := make(map[scoring.Category]float64)
	for rows.Next() {
		var (
			cat scoring.Category
			sum float64
		)
		if err := rows.Scan(&cat, &sum); err != nil {
			return nil, fmt.Errorf("scan sum: %w", err)
		}
		sums[cat] = sum
	}
	return sums, rows.Err()
}

func (r *Repository) TopScores(ctx context.Context, limit int) ([]*Score, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+scoreColumns+` FROM reputation_scores
		ORDER BY total_score DESC, user_id ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, postgres.Unavailable("top scores", err)
	}
	defer rows.Close()

	var out []*Score
	for rows.Next() {
		s, err := scanScore(rows)
		if err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// PendingTransactions returns pending rows strictly after the (after, afterID)
// position, oldest first. A zero time starts from the beginning.
func (r *Repository) PendingTransactions(ctx context.Context, after time.Time, afterID uuid.UUID, limit int) ([]*Transaction, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+txColumns+` FROM reputation_transactions
		WHERE status = 'pending' AND (created_at, id) > ($1, $2)
		ORDER BY created_at ASC, id ASC
		LIMIT $3
	`, after, afterID, limit)
	if err != nil {
		return nil, postgres.Unavailable("pending transactions", err)
	}
	return collectTransactions(rows)
}

// ConfirmTransaction only moves pending rows, so a replayed confirmation
// keeps the first hash.
func (r *Repository) ConfirmTransaction(ctx context.Context, id uuid.UUID, txHash string, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE reputation_transactions
		SET status = 'confirmed', tx_hash = $2, confirmed_at = $3
		WHERE id = $1 AND status = 'pending'
	`, id, txHash, at)
	if err != nil {
		return false, postgres.Unavailable("confirm transaction", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) PendingOutbox(ctx context.Context, limit int) ([]OutboxEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, transaction_id, user_id, payload, created_at
		FROM transaction_outbox
		WHERE published_at IS NULL
		ORDER BY id ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, postgres.Unavailable("pending outbox", err)
	}
	defer rows.Close()

	var out []OutboxEntry
	for rows.Next() {
		var e OutboxEntry
		if err := rows.Scan(&e.ID, &e.TransactionID, &e.UserID, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Repository) MarkOutboxPublished(ctx context.Context, ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx,
		`UPDATE transaction_outbox SET published_at = $2 WHERE id = ANY($1) AND published_at IS NULL`,
		ids, at,
	)
	if err != nil {
		return postgres.Unavailable("mark outbox published", err)
	}
	return nil
}
