package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"serotonyl.ru/reputation-ledger/internal/common"
	"serotonyl.ru/reputation-ledger/internal/features/scoring"
)

// Inbound events submitted by collaborators. EventID, when present, becomes
// the transaction ref so redelivered events are applied once.

type UserRegistered struct {
	EventID           string `json:"eventId,omitempty"`
	UserID            int64  `json:"userId"`
	WalletAddress     string `json:"walletAddress,omitempty"`
	VerificationLevel int    `json:"verificationLevel,omitempty"`
}

type MatchOutcome struct {
	EventID string `json:"eventId,omitempty"`
	UserID  int64  `json:"userId"`
	Success bool   `json:"success"`
}

type ContributionRecorded struct {
	EventID string  `json:"eventId,omitempty"`
	UserID  int64   `json:"userId"`
	Weight  float64 `json:"weight"`
}

type PeerReviewSubmitted struct {
	EventID string  `json:"eventId,omitempty"`
	UserID  int64   `json:"userId"`
	Weight  float64 `json:"weight"`
}

type GovernanceVoteCast struct {
	EventID    string `json:"eventId,omitempty"`
	UserID     int64  `json:"userId"`
	ProposalID string `json:"proposalId,omitempty"`
}

type AdminPenalty struct {
	EventID  string           `json:"eventId,omitempty"`
	UserID   int64            `json:"userId"`
	Amount   float64          `json:"amount"`
	Reason   string           `json:"reason"`
	Category scoring.Category `json:"category,omitempty"`
}

func eventRef(id string) string {
	if id == "" {
		return ""
	}
	return "event:" + id
}

// RecordMatchOutcome credits or debits the matching component.
func (s *Service) RecordMatchOutcome(ctx context.Context, ev MatchOutcome) (*Transaction, error) {
	req := AppendRequest{UserID: ev.UserID, Ref: eventRef(ev.EventID)}
	if ev.Success {
		req.Type = TypeMatchSuccess
		req.Amount = s.policy.MatchSuccessPoints
		req.Reason = "successful match"
	} else {
		req.Type = TypeMatchFailure
		req.Amount = -s.policy.MatchFailurePoints
		req.Reason = "failed match"
	}
	return s.AppendTransaction(ctx, req)
}

// RecordContribution credits the contribution component by the event weight.
func (s *Service) RecordContribution(ctx context.Context, ev ContributionRecorded) (*Transaction, error) {
	return s.AppendTransaction(ctx, AppendRequest{
		UserID: ev.UserID,
		Type:   TypeContribution,
		Amount: ev.Weight,
		Reason: "contribution recorded",
		Ref:    eventRef(ev.EventID),
	})
}

// RecordPeerReview credits the collaboration component.
func (s *Service) RecordPeerReview(ctx context.Context, ev PeerReviewSubmitted) (*Transaction, error) {
	return s.AppendTransaction(ctx, AppendRequest{
		UserID: ev.UserID,
		Type:   TypePeerReview,
		Amount: ev.Weight,
		Reason: "peer review submitted",
		Ref:    eventRef(ev.EventID),
	})
}

// RecordGovernanceVote credits the community component with the fixed vote points.
func (s *Service) RecordGovernanceVote(ctx context.Context, ev GovernanceVoteCast) (*Transaction, error) {
	reason := "governance vote"
	if ev.ProposalID != "" {
		reason += " on " + ev.ProposalID
	}
	return s.AppendTransaction(ctx, AppendRequest{
		UserID: ev.UserID,
		Type:   TypeCommunityVote,
		Amount: s.policy.GovernanceVotePoints,
		Reason: reason,
		Ref:    eventRef(ev.EventID),
	})
}

// ApplyPenalty debits |amount| from the named component, community by default.
func (s *Service) ApplyPenalty(ctx context.Context, ev AdminPenalty) (*Transaction, error) {
	if ev.Amount == 0 {
		return nil, common.ErrInvalidAmount
	}
	return s.AppendTransaction(ctx, AppendRequest{
		UserID:   ev.UserID,
		Type:     TypePenalty,
		Category: ev.Category,
		Amount:   -math.Abs(ev.Amount),
		Reason:   ev.Reason,
		Ref:      eventRef(ev.EventID),
	})
}

// Envelope wraps an inbound event on the message stream.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Envelope types accepted by HandleEnvelope.
const (
	EventUserRegistered       = "user_registered"
	EventMatchOutcome         = "match_outcome"
	EventContributionRecorded = "contribution_recorded"
	EventPeerReviewSubmitted  = "peer_review_submitted"
	EventGovernanceVoteCast   = "governance_vote_cast"
	EventAdminPenalty         = "admin_penalty"
)

// HandleEnvelope decodes and applies one streamed event.
func (s *Service) HandleEnvelope(ctx context.Context, env Envelope) error {
	var err error
	switch env.Type {
	case EventUserRegistered:
		var ev UserRegistered
		if err = json.Unmarshal(env.Payload, &ev); err == nil {
			_, err = s.RegisterUser(ctx, ev)
		}
	case EventMatchOutcome:
		var ev MatchOutcome
		if err = json.Unmarshal(env.Payload, &ev); err == nil {
			_, err = s.RecordMatchOutcome(ctx, ev)
		}
	case EventContributionRecorded:
		var ev ContributionRecorded
		if err = json.Unmarshal(env.Payload, &ev); err == nil {
			_, err = s.RecordContribution(ctx, ev)
		}
	case EventPeerReviewSubmitted:
		var ev PeerReviewSubmitted
		if err = json.Unmarshal(env.Payload, &ev); err == nil {
			_, err = s.RecordPeerReview(ctx, ev)
		}
	case EventGovernanceVoteCast:
		var ev GovernanceVoteCast
		if err = json.Unmarshal(env.Payload, &ev); err == nil {
			_, err = s.RecordGovernanceVote(ctx, ev)
		}
	case EventAdminPenalty:
		var ev AdminPenalty
		if err = json.Unmarshal(env.Payload, &ev); err == nil {
			_, err = s.ApplyPenalty(ctx, ev)
		}
	default:
		return fmt.Errorf("unknown event type %q", env.Type)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", env.Type, err)
	}
	return nil
}
