package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicyIsValid(t *testing.T) {
	require.NoError(t, DefaultPolicy().Validate())
}

func TestValidateRejectsBadPolicies(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *Policy)
	}{
		{"weights do not sum to one", func(p *Policy) { p.Weights.Community = 0.2 }},
		{"negative weight", func(p *Policy) { p.Weights = Weights{Matching: 1.2, Contribution: -0.2} }},
		{"thresholds not ascending", func(p *Policy) { p.Thresholds[2].MinScore = 50 }},
		{"first threshold not zero", func(p *Policy) { p.Thresholds[0].MinScore = 10 }},
		{"ranks out of order", func(p *Policy) { p.Thresholds[1].Rank = RankExpert }},
		{"missing multiplier", func(p *Policy) { delete(p.Multipliers, RankLeader) }},
		{"zero level step", func(p *Policy) { p.LevelStep = 0 }},
		{"cap ratio above one", func(p *Policy) { p.StakeCapRatio = 1.5 }},
		{"zero reward ratio", func(p *Policy) { p.StakeRewardRatio = 0 }},
		{"negative reward ratio", func(p *Policy) { p.StakeRewardRatio = -0.1 }},
		{"decay rate of one", func(p *Policy) { p.InactivityDecayRate = 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultPolicy()
			p.Thresholds = append([]Threshold(nil), p.Thresholds...)
			tt.mutate(&p)
			assert.Error(t, p.Validate())
		})
	}
}

func TestTotalIsWeightedSum(t *testing.T) {
	p := DefaultPolicy()
	c := Components{Matching: 50, Contribution: 10, Collaboration: 5, Community: 8}

	assert.InDelta(t, 0.4*50+0.3*10+0.2*5+0.1*8, p.Total(c), 1e-9)
	assert.InDelta(t, 20.0, p.Total(Components{}.Add(CategoryMatching, 50)), 1e-9)
}

func TestRankLookup(t *testing.T) {
	p := DefaultPolicy()
	tests := []struct {
		total float64
		want  Rank
	}{
		{-40, RankNewcomer},
		{0, RankNewcomer},
		{99.99, RankNewcomer},
		{100, RankContributor},
		{499, RankContributor},
		{500, RankExpert},
		{1500, RankLeader},
		{4999.5, RankLeader},
		{5000, RankVisionary},
		{1e9, RankVisionary},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Rank(tt.total), "total %v", tt.total)
	}
}

func TestLevel(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 1, p.Level(0))
	assert.Equal(t, 1, p.Level(99.9))
	assert.Equal(t, 2, p.Level(100))
	assert.Equal(t, 7, p.Level(650))
	assert.Equal(t, 1, p.Level(-250), "negative totals stay at level one")
}

func TestTrust(t *testing.T) {
	p := DefaultPolicy()

	assert.InDelta(t, 0.5, p.Trust(Counters{}), 1e-9, "no history keeps the base")
	assert.InDelta(t, 1.0, p.Trust(Counters{SuccessfulMatches: 4}), 1e-9)
	assert.InDelta(t, 0.75, p.Trust(Counters{SuccessfulMatches: 1, FailedMatches: 1}), 1e-9)
	assert.InDelta(t, 0.55, p.Trust(Counters{SuccessfulMatches: 1, FailedMatches: 1, Penalties: 2}), 1e-9)
	assert.Equal(t, 0.0, p.Trust(Counters{FailedMatches: 3, Penalties: 20}), "clamped at zero")
}

func TestDerive(t *testing.T) {
	p := DefaultPolicy()
	d := p.Derive(Components{Matching: 1500}, Counters{SuccessfulMatches: 30})

	assert.InDelta(t, 600.0, d.Total, 1e-9)
	assert.Equal(t, RankExpert, d.Rank)
	assert.Equal(t, 7, d.Level)
	assert.InDelta(t, 1.0, d.Trust, 1e-9)
}

func TestProgress(t *testing.T) {
	p := DefaultPolicy()

	got := p.Progress(300)
	assert.Equal(t, RankContributor, got.Rank)
	assert.Equal(t, RankExpert, got.NextRank)
	assert.InDelta(t, 200.0, got.PointsToNext, 1e-9)
	assert.InDelta(t, 0.5, got.Progress, 1e-9)

	top := p.Progress(9000)
	assert.Equal(t, RankVisionary, top.Rank)
	assert.Empty(t, top.NextRank)
	assert.Equal(t, 1.0, top.Progress)

	neg := p.Progress(-10)
	assert.Equal(t, RankNewcomer, neg.Rank)
	assert.Equal(t, 0.0, neg.Progress)
}

func TestDecay(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	c := Components{Matching: 100, Community: -20}

	p := DefaultPolicy()
	assert.Equal(t, c, p.Decay(c, now.Add(-400*24*time.Hour), now), "disabled by default")

	p.InactivityDecayRate = 0.1
	p.InactivityGrace = 10 * 24 * time.Hour
	assert.Equal(t, c, p.Decay(c, now.Add(-5*24*time.Hour), now), "within grace")

	got := p.Decay(c, now.Add(-12*24*time.Hour), now)
	assert.InDelta(t, 81.0, got.Matching, 1e-9)
	assert.Equal(t, -20.0, got.Community, "penalties never decay")
}
