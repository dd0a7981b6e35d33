package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"serotonyl.ru/reputation-ledger/internal/features/scoring"
)

// errDuplicateRef is returned by Commit when another transaction already
// holds the idempotency ref.
var errDuplicateRef = errors.New("duplicate transaction ref")

// Store persists scores, transactions and the outbox. Commit must apply the
// whole Mutation or nothing, and fail with common.ErrVersionConflict when the
// stored score version differs from Mutation.ExpectedVersion.
type Store interface {
	CreateScore(ctx context.Context, score *Score) (bool, error)
	GetScore(ctx context.Context, userID int64) (*Score, error)
	Commit(ctx context.Context, m Mutation) error

	FindByRef(ctx context.Context, ref string) (*Transaction, error)
	ListTransactions(ctx context.Context, userID int64, before time.Time, beforeID string, limit int) ([]*Transaction, error)
	CountSince(ctx context.Context, userID int64, txType TxType, since time.Time) (int, error)
	SumByCategory(ctx context.Context, userID int64) (map[scoring.Category]float64, error)
	TopScores(ctx context.Context, limit int) ([]*Score, error)

	PendingTransactions(ctx context.Context, after time.Time, afterID uuid.UUID, limit int) ([]*Transaction, error)
	ConfirmTransaction(ctx context.Context, id uuid.UUID, txHash string, at time.Time) (bool, error)

	PendingOutbox(ctx context.Context, limit int) ([]OutboxEntry, error)
	MarkOutboxPublished(ctx context.Context, ids []int64, at time.Time) error
}
