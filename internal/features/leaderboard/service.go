// Package leaderboard is a read-only projection over score snapshots.
package leaderboard

import (
	"context"

	"serotonyl.ru/reputation-ledger/internal/features/ledger"
	"serotonyl.ru/reputation-ledger/internal/features/scoring"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

type Ledger interface {
	TopScores(ctx context.Context, limit int) ([]*ledger.Score, error)
	GetScore(ctx context.Context, userID int64) (*ledger.Score, error)
	Policy() scoring.Policy
}

// Entry is one leaderboard row with its rank tier metadata.
type Entry struct {
	Position   int     `json:"position"`
	UserID     int64   `json:"userId"`
	TotalScore float64 `json:"totalScore"`
	Level      int     `json:"level"`
	TrustScore float64 `json:"trustScore"`
	scoring.TierProgress
}

// RankProgress is the rank view of one user.
type RankProgress struct {
	UserID     int64   `json:"userId"`
	TotalScore float64 `json:"totalScore"`
	Level      int     `json:"level"`
	scoring.TierProgress
}

type Service struct {
	ledger Ledger
}

func NewService(l Ledger) *Service {
	return &Service{ledger: l}
}

// GetLeaderboard returns the top users by total score, ties broken by
// ascending user id. limit is clamped to [1, MaxLimit].
func (s *Service) GetLeaderboard(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	scores, err := s.ledger.TopScores(ctx, limit)
	if err != nil {
		return nil, err
	}

	policy := s.ledger.Policy()
	out := make([]Entry, 0, len(scores))
	for i, sc := range scores {
		out = append(out, Entry{
			Position:     i + 1,
			UserID:       sc.UserID,
			TotalScore:   sc.TotalScore,
			Level:        sc.Level,
			TrustScore:   sc.TrustScore,
			TierProgress: policy.Progress(sc.TotalScore),
		})
	}
	return out, nil
}

func (s *Service) GetRankProgress(ctx context.Context, userID int64) (*RankProgress, error) {
	sc, err := s.ledger.GetScore(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &RankProgress{
		UserID:       sc.UserID,
		TotalScore:   sc.TotalScore,
		Level:        sc.Level,
		TierProgress: s.ledger.Policy().Progress(sc.TotalScore),
	}, nil
}
