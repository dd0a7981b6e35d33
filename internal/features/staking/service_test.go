package staking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"serotonyl.ru/reputation-ledger/internal/common"
	"serotonyl.ru/reputation-ledger/internal/features/ledger"
	"serotonyl.ru/reputation-ledger/internal/features/scoring"
)

type ServiceSuite struct {
	suite.Suite
	ctx     context.Context
	ledger  *ledger.Service
	store   *MemoryStore
	service *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.ledger = ledger.NewService(ledger.NewMemoryStore(), scoring.DefaultPolicy(), ledger.Options{
		MaxRetries:    500,
		AppendTimeout: 20 * time.Second,
	})
	s.store = NewMemoryStore()
	s.service = NewService(s.store, s.ledger, nil)
}

// seedUser registers a user with a total score of 600 (2000 contribution
// points at weight 0.3).
func (s *ServiceSuite) seedUser(userID int64) {
	_, err := s.ledger.RegisterUser(s.ctx, ledger.UserRegistered{UserID: userID})
	s.Require().NoError(err)
	_, err = s.ledger.RecordContribution(s.ctx, ledger.ContributionRecorded{UserID: userID, Weight: 2000})
	s.Require().NoError(err)
	score, err := s.ledger.GetScore(s.ctx, userID)
	s.Require().NoError(err)
	s.Require().InDelta(600.0, score.TotalScore, 1e-9)
}

func (s *ServiceSuite) stake(userID int64, typ Type, amount float64) *Stake {
	st, err := s.service.CreateStake(s.ctx, CreateRequest{UserID: userID, StakeType: typ, Amount: amount, DurationDays: 30})
	s.Require().NoError(err)
	return st
}

func (s *ServiceSuite) countTx(userID int64, txType ledger.TxType) int {
	n, err := s.ledger.CountSince(s.ctx, userID, txType, time.Time{})
	s.Require().NoError(err)
	return n
}

func (s *ServiceSuite) TestCapScenario() {
	s.seedUser(1)

	st, err := s.service.CreateStake(s.ctx, CreateRequest{UserID: 1, StakeType: TypeMatchGuarantee, Amount: 100, DurationDays: 7})
	s.Require().NoError(err)
	s.Equal(StatusActive, st.Status)
	s.Equal(st.CreatedAt.AddDate(0, 0, 7), st.LockedUntil)

	_, err = s.service.CreateStake(s.ctx, CreateRequest{UserID: 1, StakeType: TypeMatchGuarantee, Amount: 150, DurationDays: 7})
	s.ErrorIs(err, common.ErrStakeExceedsCap)

	_, err = s.service.CreateStake(s.ctx, CreateRequest{UserID: 1, StakeType: TypeMatchGuarantee, Amount: 120, DurationDays: 7})
	s.NoError(err, "the cap itself is allowed")
}

func (s *ServiceSuite) TestCreateValidation() {
	s.seedUser(1)

	cases := []struct {
		name string
		req  CreateRequest
		want error
	}{
		{"zero amount", CreateRequest{UserID: 1, StakeType: TypeQualityPledge, Amount: 0, DurationDays: 7}, common.ErrInvalidAmount},
		{"negative amount", CreateRequest{UserID: 1, StakeType: TypeQualityPledge, Amount: -5, DurationDays: 7}, common.ErrInvalidAmount},
		{"zero days", CreateRequest{UserID: 1, StakeType: TypeQualityPledge, Amount: 10, DurationDays: 0}, common.ErrInvalidDuration},
		{"over a year", CreateRequest{UserID: 1, StakeType: TypeQualityPledge, Amount: 10, DurationDays: 366}, common.ErrInvalidDuration},
		{"unknown type", CreateRequest{UserID: 1, StakeType: "bet", Amount: 10, DurationDays: 7}, common.ErrUnknownStakeType},
		{"unknown user", CreateRequest{UserID: 9, StakeType: TypeQualityPledge, Amount: 10, DurationDays: 7}, common.ErrUserNotFound},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			_, err := s.service.CreateStake(s.ctx, tc.req)
			s.ErrorIs(err, tc.want)
		})
	}

	list, err := s.service.ListStakes(s.ctx, 1)
	s.Require().NoError(err)
	s.Empty(list)
}

func (s *ServiceSuite) TestReleaseRewardsTenPercent() {
	s.seedUser(1)
	st := s.stake(1, TypeProjectCommitment, 100)

	settled, err := s.service.SettleStake(s.ctx, st.ID, OutcomeSuccess)
	s.Require().NoError(err)
	s.Equal(StatusReleased, settled.Status)
	s.Require().NotNil(settled.SettlementTxID)
	s.NotNil(settled.SettledAt)

	score, err := s.ledger.GetScore(s.ctx, 1)
	s.Require().NoError(err)
	s.InDelta(2000.0+10.0, score.Contribution, 1e-9)
	s.Equal(1, s.countTx(1, ledger.TypeStakeReward))
}

func (s *ServiceSuite) TestSettleTwiceIsNoop() {
	s.seedUser(1)
	st := s.stake(1, TypeMatchGuarantee, 100)

	first, err := s.service.SettleStake(s.ctx, st.ID, OutcomeFailure)
	s.Require().NoError(err)
	s.Equal(StatusSlashed, first.Status)

	second, err := s.service.SettleStake(s.ctx, st.ID, OutcomeSuccess)
	s.Require().NoError(err)
	s.Equal(first, second)

	s.Equal(1, s.countTx(1, ledger.TypeStakeSlash))
	s.Zero(s.countTx(1, ledger.TypeStakeReward))

	score, err := s.ledger.GetScore(s.ctx, 1)
	s.Require().NoError(err)
	s.InDelta(-100.0, score.Matching, 1e-9)
}

func (s *ServiceSuite) TestSettlementAmountIsInComponentPoints() {
	s.seedUser(1)
	weights := s.ledger.Policy().Weights

	slashed := s.stake(1, TypeMatchGuarantee, 100)
	_, err := s.service.SettleStake(s.ctx, slashed.ID, OutcomeFailure)
	s.Require().NoError(err)

	score, err := s.ledger.GetScore(s.ctx, 1)
	s.Require().NoError(err)
	s.InDelta(-100.0, score.Matching, 1e-9)
	s.InDelta(600.0-weights.Matching*100, score.TotalScore, 1e-9)

	released := s.stake(1, TypeProjectCommitment, 100)
	_, err = s.service.SettleStake(s.ctx, released.ID, OutcomeSuccess)
	s.Require().NoError(err)

	score, err = s.ledger.GetScore(s.ctx, 1)
	s.Require().NoError(err)
	s.InDelta(2010.0, score.Contribution, 1e-9)
	s.InDelta(600.0-weights.Matching*100+weights.Contribution*10, score.TotalScore, 1e-9)
}

func (s *ServiceSuite) TestSettleValidation() {
	_, err := s.service.SettleStake(s.ctx, uuid.New(), OutcomeSuccess)
	s.ErrorIs(err, common.ErrNotFound)

	_, err = s.service.SettleStake(s.ctx, uuid.New(), "maybe")
	s.ErrorIs(err, common.ErrUnknownOutcome)
}

func (s *ServiceSuite) TestConcurrentSweepsSlashOnce() {
	s.seedUser(1)
	st := s.stake(1, TypeMatchGuarantee, 100)
	_, err := s.ledger.RecordMatchOutcome(s.ctx, ledger.MatchOutcome{UserID: 1, Success: false})
	s.Require().NoError(err)

	after := st.LockedUntil.Add(time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.service.SweepMatured(s.ctx, after, 10)
			s.NoError(err)
		}()
	}
	wg.Wait()

	got, err := s.service.GetStake(s.ctx, st.ID)
	s.Require().NoError(err)
	s.Equal(StatusSlashed, got.Status)
	s.Equal(1, s.countTx(1, ledger.TypeStakeSlash))
}

func (s *ServiceSuite) TestConcurrentConflictingSettlementsAgree() {
	s.seedUser(1)
	st := s.stake(1, TypeQualityPledge, 100)

	results := make([]*Stake, 2)
	var wg sync.WaitGroup
	for i, outcome := range []Outcome{OutcomeSuccess, OutcomeFailure} {
		wg.Add(1)
		go func(i int, outcome Outcome) {
			defer wg.Done()
			got, err := s.service.SettleStake(s.ctx, st.ID, outcome)
			s.NoError(err)
			results[i] = got
		}(i, outcome)
	}
	wg.Wait()

	s.Require().NotNil(results[0])
	s.Require().NotNil(results[1])
	s.Equal(results[0].Status, results[1].Status)
	s.Equal(1, s.countTx(1, ledger.TypeStakeReward)+s.countTx(1, ledger.TypeStakeSlash))
}

func (s *ServiceSuite) TestSettleFollowsOutcomeAlreadyInLedger() {
	s.seedUser(1)
	st := s.stake(1, TypeMatchGuarantee, 50)

	// A slash committed to the ledger, but the stake row was never moved.
	slash, err := s.ledger.AppendTransaction(s.ctx, ledger.AppendRequest{
		UserID:   1,
		Type:     ledger.TypeStakeSlash,
		Category: TypeMatchGuarantee.Category(),
		Amount:   -50,
		Ref:      settlementRef(st.ID),
	})
	s.Require().NoError(err)

	got, err := s.service.SettleStake(s.ctx, st.ID, OutcomeSuccess)
	s.Require().NoError(err)
	s.Equal(StatusSlashed, got.Status)
	s.Require().NotNil(got.SettlementTxID)
	s.Equal(slash.ID, *got.SettlementTxID)
	s.Zero(s.countTx(1, ledger.TypeStakeReward))
	s.Equal(1, s.countTx(1, ledger.TypeStakeSlash))
}

func (s *ServiceSuite) TestSweepResolvesOutcomes() {
	s.seedUser(1)
	guarantee := s.stake(1, TypeMatchGuarantee, 10)
	pledge := s.stake(1, TypeQualityPledge, 10)
	project := s.stake(1, TypeProjectCommitment, 10)

	_, err := s.ledger.ApplyPenalty(s.ctx, ledger.AdminPenalty{UserID: 1, Amount: 5, Reason: "spam"})
	s.Require().NoError(err)

	n, err := s.service.SweepMatured(s.ctx, project.LockedUntil, 10)
	s.Require().NoError(err)
	s.Equal(3, n)

	want := map[uuid.UUID]Status{
		guarantee.ID: StatusReleased, // no match failures
		pledge.ID:    StatusSlashed,  // penalty during the lock
		project.ID:   StatusSlashed,  // no contribution during the lock
	}
	for id, status := range want {
		got, err := s.service.GetStake(s.ctx, id)
		s.Require().NoError(err)
		s.Equal(status, got.Status, got.StakeType)
	}

	n, err = s.service.SweepMatured(s.ctx, project.LockedUntil, 10)
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *ServiceSuite) TestSweepSkipsLockedStakes() {
	s.seedUser(1)
	st := s.stake(1, TypeMatchGuarantee, 10)

	n, err := s.service.SweepMatured(s.ctx, st.LockedUntil.Add(-time.Second), 10)
	s.Require().NoError(err)
	s.Zero(n)

	got, err := s.service.GetStake(s.ctx, st.ID)
	s.Require().NoError(err)
	s.Equal(StatusActive, got.Status)
}
