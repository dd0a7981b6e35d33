package staking

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists stakes. Settle only moves an active stake and reports
// whether it did.
type Store interface {
	Create(ctx context.Context, s *Stake) error
	Get(ctx context.Context, id uuid.UUID) (*Stake, error)
	ListByUser(ctx context.Context, userID int64) ([]*Stake, error)
	ListMatured(ctx context.Context, now time.Time, limit int) ([]*Stake, error)
	Settle(ctx context.Context, id uuid.UUID, status Status, txID uuid.UUID, at time.Time) (bool, error)
}
