// Package endorsement records weighted peer attestations of skills and
// credits the endorsed user's community score through the ledger.
package endorsement

import (
	"time"

	"github.com/google/uuid"
)

const (
	MinLevel = 1
	MaxLevel = 5
)

// Endorsement is immutable once stored. Weight is the endorser's rank
// multiplier at creation; Amount is what was actually credited after the
// per-skill cap.
type Endorsement struct {
	ID            uuid.UUID  `json:"id"`
	EndorserID    int64      `json:"endorserId"`
	EndorsedID    int64      `json:"endorsedId"`
	Skill         string     `json:"skill"`
	Level         int        `json:"level"`
	Comment       string     `json:"comment,omitempty"`
	Weight        float64    `json:"weight"`
	Amount        float64    `json:"amount"`
	TransactionID *uuid.UUID `json:"transactionId,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// CreateRequest is the input of CreateEndorsement.
type CreateRequest struct {
	EndorserID int64  `json:"endorserId"`
	EndorsedID int64  `json:"endorsedId"`
	Skill      string `json:"skill"`
	Level      int    `json:"level"`
	Comment    string `json:"comment,omitempty"`
}

func transactionRef(id uuid.UUID) string {
	return "endorsement:" + id.String()
}
