package leaderboard_test

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Ledger

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"serotonyl.ru/reputation-ledger/internal/common"
	"serotonyl.ru/reputation-ledger/internal/features/leaderboard"
	"serotonyl.ru/reputation-ledger/internal/features/leaderboard/mocks"
	"serotonyl.ru/reputation-ledger/internal/features/ledger"
	"serotonyl.ru/reputation-ledger/internal/features/scoring"
)

func seededLedger(t *testing.T) *ledger.Service {
	t.Helper()
	ctx := context.Background()
	l := ledger.NewService(ledger.NewMemoryStore(), scoring.DefaultPolicy(), ledger.Options{})
	// Users 3 and 1 tie on 20 points, user 2 leads, user 4 has nothing.
	for _, id := range []int64{4, 3, 2, 1} {
		_, err := l.RegisterUser(ctx, ledger.UserRegistered{UserID: id})
		require.NoError(t, err)
	}
	for _, id := range []int64{3, 1, 2, 2} {
		_, err := l.RecordMatchOutcome(ctx, ledger.MatchOutcome{UserID: id, Success: true})
		require.NoError(t, err)
	}
	return l
}

func TestLeaderboardOrderIsDeterministic(t *testing.T) {
	svc := leaderboard.NewService(seededLedger(t))

	first, err := svc.GetLeaderboard(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, first, 4)

	var ids []int64
	for i, e := range first {
		ids = append(ids, e.UserID)
		assert.Equal(t, i+1, e.Position)
	}
	assert.Equal(t, []int64{2, 1, 3, 4}, ids)
	assert.InDelta(t, 40.0, first[0].TotalScore, 1e-9)

	for i := 0; i < 5; i++ {
		again, err := svc.GetLeaderboard(context.Background(), 10)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestLeaderboardCarriesTierProgress(t *testing.T) {
	svc := leaderboard.NewService(seededLedger(t))

	entries, err := svc.GetLeaderboard(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, scoring.RankNewcomer, e.Rank)
	assert.Equal(t, scoring.RankContributor, e.NextRank)
	assert.InDelta(t, 60.0, e.PointsToNext, 1e-9)
	assert.InDelta(t, 0.4, e.Progress, 1e-9)
}

func TestGetRankProgress(t *testing.T) {
	svc := leaderboard.NewService(seededLedger(t))

	p, err := svc.GetRankProgress(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, scoring.RankNewcomer, p.Rank)
	assert.InDelta(t, 100.0, p.PointsToNext, 1e-9)
	assert.Zero(t, p.Progress)

	_, err = svc.GetRankProgress(context.Background(), 99)
	assert.ErrorIs(t, err, common.ErrUserNotFound)
}

func TestLeaderboardLimitIsClamped(t *testing.T) {
	cases := []struct {
		requested int
		want      int
	}{
		{0, leaderboard.DefaultLimit},
		{-3, leaderboard.DefaultLimit},
		{25, 25},
		{1000, leaderboard.MaxLimit},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprint(tc.requested), func(t *testing.T) {
			ctrl := gomock.NewController(t)
			l := mocks.NewMockLedger(ctrl)
			l.EXPECT().TopScores(gomock.Any(), tc.want).Return(nil, nil)
			l.EXPECT().Policy().Return(scoring.DefaultPolicy())

			entries, err := leaderboard.NewService(l).GetLeaderboard(context.Background(), tc.requested)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestLeaderboardPropagatesStoreFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	l := mocks.NewMockLedger(ctrl)
	l.EXPECT().TopScores(gomock.Any(), leaderboard.DefaultLimit).
		Return(nil, fmt.Errorf("top scores: %w", common.ErrUnavailable))

	_, err := leaderboard.NewService(l).GetLeaderboard(context.Background(), 0)
	assert.ErrorIs(t, err, common.ErrUnavailable)
}
