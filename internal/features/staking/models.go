// Package staking locks reputation behind a commitment for a fixed period
// and settles it into a reward or a slash through the ledger.
package staking

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"serotonyl.ru/reputation-ledger/internal/common"
	"serotonyl.ru/reputation-ledger/internal/features/scoring"
)

const (
	MinDurationDays = 1
	MaxDurationDays = 365
)

type Type string

const (
	TypeMatchGuarantee    Type = "match_guarantee"
	TypeProjectCommitment Type = "project_commitment"
	TypeQualityPledge     Type = "quality_pledge"
)

func (t Type) Valid() bool {
	return t == TypeMatchGuarantee || t == TypeProjectCommitment || t == TypeQualityPledge
}

// Category is the score component the settlement transaction touches.
func (t Type) Category() scoring.Category {
	switch t {
	case TypeMatchGuarantee:
		return scoring.CategoryMatching
	case TypeProjectCommitment:
		return scoring.CategoryContribution
	default:
		return scoring.CategoryCollaboration
	}
}

type Status string

const (
	StatusActive   Status = "active"
	StatusReleased Status = "released"
	StatusSlashed  Status = "slashed"
)

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusReleased || s == StatusSlashed
}

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

func ParseOutcome(s string) (Outcome, error) {
	switch o := Outcome(s); o {
	case OutcomeSuccess, OutcomeFailure:
		return o, nil
	}
	return "", fmt.Errorf("%w: %q", common.ErrUnknownOutcome, s)
}

type Stake struct {
	ID             uuid.UUID  `json:"id"`
	UserID         int64      `json:"userId"`
	StakeType      Type       `json:"stakeType"`
	Amount         float64    `json:"amount"`
	LockedUntil    time.Time  `json:"lockedUntil"`
	Status         Status     `json:"status"`
	SettlementTxID *uuid.UUID `json:"settlementTxId,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	SettledAt      *time.Time `json:"settledAt,omitempty"`
}

type CreateRequest struct {
	UserID       int64   `json:"userId"`
	StakeType    Type    `json:"stakeType"`
	Amount       float64 `json:"amount"`
	DurationDays int     `json:"durationDays"`
}

// settlementRef is shared by both outcomes, so only one settlement
// transaction can ever exist per stake.
func settlementRef(id uuid.UUID) string {
	return "stake:" + id.String() + ":settlement"
}
