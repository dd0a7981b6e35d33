//go:build integration

package staking_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/reputation-ledger/internal/common"
	"serotonyl.ru/reputation-ledger/internal/features/endorsement"
	"serotonyl.ru/reputation-ledger/internal/features/ledger"
	"serotonyl.ru/reputation-ledger/internal/features/scoring"
	"serotonyl.ru/reputation-ledger/internal/features/staking"
	"serotonyl.ru/reputation-ledger/internal/testutil/containers"
)

func TestStakeAndEndorsementRepositories(t *testing.T) {
	pool := containers.NewPostgres(t)
	ctx := context.Background()

	l := ledger.NewService(ledger.NewRepository(pool), scoring.DefaultPolicy(), ledger.Options{MaxRetries: 200, AppendTimeout: 30 * time.Second})
	stakes := staking.NewService(staking.NewRepository(pool), l, nil)
	endorsements := endorsement.NewService(endorsement.NewRepository(pool), l)

	for _, id := range []int64{1, 2, 3, 4, 5, 6, 7} {
		_, err := l.RegisterUser(ctx, ledger.UserRegistered{UserID: id})
		require.NoError(t, err)
	}
	_, err := l.RecordContribution(ctx, ledger.ContributionRecorded{UserID: 1, Weight: 2000})
	require.NoError(t, err)

	t.Run("conflicting settlements agree", func(t *testing.T) {
		st, err := stakes.CreateStake(ctx, staking.CreateRequest{UserID: 1, StakeType: staking.TypeMatchGuarantee, Amount: 100, DurationDays: 30})
		require.NoError(t, err)

		var wg sync.WaitGroup
		results := make(chan *staking.Stake, 4)
		for i := 0; i < 4; i++ {
			outcome := staking.OutcomeSuccess
			if i%2 == 1 {
				outcome = staking.OutcomeFailure
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				got, err := stakes.SettleStake(ctx, st.ID, outcome)
				assert.NoError(t, err)
				results <- got
			}()
		}
		wg.Wait()
		close(results)

		var first *staking.Stake
		for got := range results {
			require.NotNil(t, got)
			if first == nil {
				first = got
				continue
			}
			assert.Equal(t, first.Status, got.Status)
			assert.Equal(t, first.SettlementTxID, got.SettlementTxID)
		}
		assert.True(t, first.Status.Terminal())

		audit, err := l.Audit(ctx, 1)
		require.NoError(t, err)
		assert.True(t, audit.Consistent)
	})

	t.Run("cap holds under concurrent endorsements", func(t *testing.T) {
		// Five newcomers at level 5 credit 2.5 each, under the default cap.
		var wg sync.WaitGroup
		for endorser := int64(3); endorser <= 7; endorser++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := endorsements.CreateEndorsement(ctx, endorsement.CreateRequest{
					EndorserID: endorser, EndorsedID: 2, Skill: "solidity", Level: 5,
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		received, err := endorsements.ListReceived(ctx, 2)
		require.NoError(t, err)
		require.Len(t, received, 5)
		var sum float64
		for _, e := range received {
			sum += e.Amount
			assert.NotNil(t, e.TransactionID)
		}
		assert.InDelta(t, 12.5, sum, 1e-9)

		_, err = endorsements.CreateEndorsement(ctx, endorsement.CreateRequest{
			EndorserID: 3, EndorsedID: 2, Skill: "Solidity", Level: 1,
		})
		assert.ErrorIs(t, err, common.ErrDuplicateEndorsement)
	})
}
