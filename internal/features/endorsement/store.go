package endorsement

import (
	"context"

	"github.com/google/uuid"
)

// Store persists endorsements. Create caps e.Amount so the credited total
// for (endorsed, skill) never passes skillCap, and fails with
// common.ErrDuplicateEndorsement when the triple already exists.
type Store interface {
	Create(ctx context.Context, e *Endorsement, skillCap float64) error
	SetTransaction(ctx context.Context, id, txID uuid.UUID) error
	ListUncredited(ctx context.Context, limit int) ([]*Endorsement, error)
	ListReceived(ctx context.Context, userID int64) ([]*Endorsement, error)
	ListGiven(ctx context.Context, userID int64) ([]*Endorsement, error)
}
