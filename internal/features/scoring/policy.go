package scoring

import (
	"fmt"
	"math"
	"sort"
	"time"

	"serotonyl.ru/reputation-ledger/internal/common"
)

// Policy carries every weighting constant of the ledger. It is built once
// from configuration and validated before any service uses it.
type Policy struct {
	Weights     Weights
	Thresholds  []Threshold
	Multipliers map[Rank]float64
	LevelStep   float64

	TrustBase         float64
	TrustSuccessBonus float64
	TrustPenaltyDecay float64

	MatchSuccessPoints   float64
	MatchFailurePoints   float64
	GovernanceVotePoints float64

	StakeCapRatio    float64
	StakeRewardRatio float64
	EndorsementCap   float64

	// InactivityDecayRate is the daily fraction shaved off positive
	// components after InactivityGrace. Zero disables decay.
	InactivityDecayRate float64
	InactivityGrace     time.Duration
}

// DefaultPolicy returns the production defaults.
func DefaultPolicy() Policy {
	return Policy{
		Weights: Weights{Matching: 0.4, Contribution: 0.3, Collaboration: 0.2, Community: 0.1},
		Thresholds: []Threshold{
			{MinScore: 0, Rank: RankNewcomer},
			{MinScore: 100, Rank: RankContributor},
			{MinScore: 500, Rank: RankExpert},
			{MinScore: 1500, Rank: RankLeader},
			{MinScore: 5000, Rank: RankVisionary},
		},
		Multipliers: map[Rank]float64{
			RankNewcomer:    0.5,
			RankContributor: 1,
			RankExpert:      1.5,
			RankLeader:      2,
			RankVisionary:   3,
		},
		LevelStep:            100,
		TrustBase:            0.5,
		TrustSuccessBonus:    0.5,
		TrustPenaltyDecay:    0.1,
		MatchSuccessPoints:   50,
		MatchFailurePoints:   10,
		GovernanceVotePoints: 5,
		StakeCapRatio:        0.2,
		StakeRewardRatio:     0.1,
		EndorsementCap:       50,
		InactivityGrace:      30 * 24 * time.Hour,
	}
}

// Validate checks the invariants the score math relies on.
func (p Policy) Validate() error {
	if math.Abs(p.Weights.sum()-1) > 1e-9 {
		return fmt.Errorf("score weights must sum to 1, got %v", p.Weights.sum())
	}
	for _, w := range []float64{p.Weights.Matching, p.Weights.Contribution, p.Weights.Collaboration, p.Weights.Community} {
		if w < 0 {
			return fmt.Errorf("score weights must be non-negative")
		}
	}
	if len(p.Thresholds) != len(Ranks) {
		return fmt.Errorf("rank table needs %d thresholds, got %d", len(Ranks), len(p.Thresholds))
	}
	if p.Thresholds[0].MinScore != 0 {
		return fmt.Errorf("lowest rank threshold must be 0")
	}
	for i, t := range p.Thresholds {
		if t.Rank != Ranks[i] {
			return fmt.Errorf("rank table position %d must be %s, got %s", i, Ranks[i], t.Rank)
		}
		if i > 0 && t.MinScore <= p.Thresholds[i-1].MinScore {
			return fmt.Errorf("rank thresholds must be strictly ascending")
		}
	}
	for _, r := range Ranks {
		if m, ok := p.Multipliers[r]; !ok || m <= 0 {
			return fmt.Errorf("rank multiplier for %s must be positive", r)
		}
	}
	if p.LevelStep <= 0 {
		return fmt.Errorf("level step must be positive")
	}
	if p.StakeCapRatio <= 0 || p.StakeCapRatio > 1 {
		return fmt.Errorf("stake cap ratio must be in (0, 1]")
	}
	if p.StakeRewardRatio <= 0 || p.StakeRewardRatio > 1 {
		return fmt.Errorf("stake reward ratio must be in (0, 1]")
	}
	if p.MatchSuccessPoints <= 0 || p.MatchFailurePoints <= 0 || p.GovernanceVotePoints <= 0 {
		return fmt.Errorf("event point values must be positive")
	}
	if p.EndorsementCap <= 0 {
		return fmt.Errorf("endorsement cap must be positive")
	}
	if p.InactivityDecayRate < 0 || p.InactivityDecayRate >= 1 {
		return fmt.Errorf("inactivity decay rate must be in [0, 1)")
	}
	return nil
}

// Total is the weighted sum of the components.
func (p Policy) Total(c Components) float64 {
	return p.Weights.Matching*c.Matching +
		p.Weights.Contribution*c.Contribution +
		p.Weights.Collaboration*c.Collaboration +
		p.Weights.Community*c.Community
}

// Rank returns the tier of the highest threshold not above total.
// Totals below every threshold fall into the lowest tier.
func (p Policy) Rank(total float64) Rank {
	i := sort.Search(len(p.Thresholds), func(i int) bool {
		return p.Thresholds[i].MinScore > total
	})
	if i == 0 {
		return p.Thresholds[0].Rank
	}
	return p.Thresholds[i-1].Rank
}

// Level is floor(total/step)+1, never below 1.
func (p Policy) Level(total float64) int {
	level := int(math.Floor(total/p.LevelStep)) + 1
	if level < 1 {
		return 1
	}
	return level
}

// Trust combines the base trust, a bonus for the match success rate and a
// per-penalty decay, clamped to [0, 1].
func (p Policy) Trust(c Counters) float64 {
	attempts := c.SuccessfulMatches + c.FailedMatches
	if attempts < 1 {
		attempts = 1
	}
	rate := float64(c.SuccessfulMatches) / float64(attempts)
	v := p.TrustBase + p.TrustSuccessBonus*rate - p.TrustPenaltyDecay*float64(c.Penalties)
	return common.Clamp01(v)
}

// Multiplier is the endorsement weight of an endorser at rank r.
func (p Policy) Multiplier(r Rank) float64 {
	return p.Multipliers[r]
}

// Derive recomputes every derived field from the components and counters.
func (p Policy) Derive(c Components, n Counters) Derived {
	total := p.Total(c)
	return Derived{
		Total: total,
		Level: p.Level(total),
		Rank:  p.Rank(total),
		Trust: p.Trust(n),
	}
}

// Progress reports the next tier and how far total is through the current one.
func (p Policy) Progress(total float64) TierProgress {
	rank := p.Rank(total)
	idx := 0
	for i, t := range p.Thresholds {
		if t.Rank == rank {
			idx = i
		}
	}
	if idx == len(p.Thresholds)-1 {
		return TierProgress{Rank: rank, Progress: 1}
	}
	lo := p.Thresholds[idx].MinScore
	hi := p.Thresholds[idx+1].MinScore
	progress := (total - lo) / (hi - lo)
	return TierProgress{
		Rank:         rank,
		NextRank:     p.Thresholds[idx+1].Rank,
		PointsToNext: hi - total,
		Progress:     common.Clamp01(progress),
	}
}
