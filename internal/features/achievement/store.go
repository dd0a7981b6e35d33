package achievement

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists progress rows and the per-(transaction, type) marks that
// make Advance idempotent.
type Store interface {
	// Advance applies step to the user's row for def unless txID was already
	// counted for def.Type. Mark and progress change commit together.
	Advance(ctx context.Context, userID int64, txID uuid.UUID, def Definition, step Step, now time.Time) (*Progress, Result, error)
	List(ctx context.Context, userID int64) ([]*Progress, error)
	SetToken(ctx context.Context, userID int64, achievementType, tokenID string) error
}
