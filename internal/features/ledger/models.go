// Package ledger is the single source of truth for reputation: an
// append-only transaction log plus one mutable score snapshot per user.
// Every score change goes through AppendTransaction.
package ledger

import (
	"time"

	"github.com/google/uuid"

	"serotonyl.ru/reputation-ledger/internal/features/scoring"
)

// TxType is the fixed set of transaction kinds.
type TxType string

const (
	TypeMatchSuccess  TxType = "match_success"
	TypeMatchFailure  TxType = "match_failure"
	TypeContribution  TxType = "contribution"
	TypePeerReview    TxType = "peer_review"
	TypeCommunityVote TxType = "community_vote"
	TypePenalty       TxType = "penalty"
	TypeStakeReward   TxType = "stake_reward"
	TypeStakeSlash    TxType = "stake_slash"
)

// Valid reports whether t is part of the enum.
func (t TxType) Valid() bool {
	switch t {
	case TypeMatchSuccess, TypeMatchFailure, TypeContribution, TypePeerReview,
		TypeCommunityVote, TypePenalty, TypeStakeReward, TypeStakeSlash:
		return true
	}
	return false
}

// Debit reports whether amounts of this type must be negative.
func (t TxType) Debit() bool {
	return t == TypeMatchFailure || t == TypePenalty || t == TypeStakeSlash
}

// DefaultCategory is the component a type credits when the caller does not
// name one. Stake and penalty transactions may target any component.
func (t TxType) DefaultCategory() scoring.Category {
	switch t {
	case TypeMatchSuccess, TypeMatchFailure:
		return scoring.CategoryMatching
	case TypeContribution:
		return scoring.CategoryContribution
	case TypePeerReview:
		return scoring.CategoryCollaboration
	default:
		return scoring.CategoryCommunity
	}
}

// flexibleCategory is true for types whose category is chosen by the caller.
func (t TxType) flexibleCategory() bool {
	return t == TypePenalty || t == TypeStakeReward || t == TypeStakeSlash
}

// Status is the anchoring state of a transaction.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
)

// Transaction is one immutable ledger entry. Only Status, TxHash and
// ConfirmedAt change, and only through the anchor worker.
type Transaction struct {
	ID          uuid.UUID        `json:"id"`
	UserID      int64            `json:"userId"`
	Type        TxType           `json:"type"`
	Category    scoring.Category `json:"category"`
	Amount      float64          `json:"amount"`
	Reason      string           `json:"reason"`
	Ref         string           `json:"ref,omitempty"`
	Status      Status           `json:"status"`
	TxHash      string           `json:"txHash,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	ConfirmedAt *time.Time       `json:"confirmedAt,omitempty"`
}

// Score is the per-user snapshot. Derived fields are rewritten on every
// append from the components and counters.
type Score struct {
	UserID int64 `json:"userId"`
	scoring.Components
	TotalScore        float64      `json:"totalScore"`
	Level             int          `json:"level"`
	Rank              scoring.Rank `json:"rank"`
	VerificationLevel int          `json:"verificationLevel"`
	TrustScore        float64      `json:"trustScore"`
	TotalTransactions int          `json:"totalTransactions"`
	SuccessfulMatches int          `json:"successfulMatches"`
	FailedMatches     int          `json:"failedMatches"`
	PenaltyCount      int          `json:"penaltyCount"`
	WalletAddress     string       `json:"walletAddress,omitempty"`
	Version           int64        `json:"version"`
	CreatedAt         time.Time    `json:"createdAt"`
	UpdatedAt         time.Time    `json:"updatedAt"`
}

// Counters extracts the trust inputs of the snapshot.
func (s Score) Counters() scoring.Counters {
	return scoring.Counters{
		SuccessfulMatches: s.SuccessfulMatches,
		FailedMatches:     s.FailedMatches,
		Penalties:         s.PenaltyCount,
	}
}

// AppendRequest describes one transaction to commit. Ref, when set, makes
// the append idempotent: a second request with the same Ref returns the
// first transaction.
type AppendRequest struct {
	UserID   int64
	Type     TxType
	Category scoring.Category
	Amount   float64
	Reason   string
	Ref      string
}

// Mutation is the unit of work a Store commits atomically.
type Mutation struct {
	Tx              *Transaction
	Score           *Score
	ExpectedVersion int64
	Event           []byte
}

// Committed is the stream event emitted for every committed transaction.
// Score is the snapshot right after the commit.
type Committed struct {
	Transaction Transaction `json:"transaction"`
	Score       Score       `json:"score"`
}

// OutboxEntry is a committed event waiting to be relayed.
type OutboxEntry struct {
	ID            int64
	TransactionID uuid.UUID
	UserID        int64
	Payload       []byte
	CreatedAt     time.Time
}

// Page selects a slice of a user's history.
type Page struct {
	Cursor string
	Limit  int
}

// TransactionPage is one page of history, newest first. NextCursor is empty
// on the last page.
type TransactionPage struct {
	Items      []*Transaction `json:"items"`
	NextCursor string         `json:"nextCursor,omitempty"`
}

// Audit compares each component with the sum of its transactions.
type Audit struct {
	UserID     int64                        `json:"userId"`
	Components scoring.Components           `json:"components"`
	Sums       map[scoring.Category]float64 `json:"sums"`
	Consistent bool                         `json:"consistent"`
}
