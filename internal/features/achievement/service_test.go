package achievement_test

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Notifier,Minter

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"serotonyl.ru/reputation-ledger/internal/common"
	"serotonyl.ru/reputation-ledger/internal/features/achievement"
	"serotonyl.ru/reputation-ledger/internal/features/achievement/mocks"
	"serotonyl.ru/reputation-ledger/internal/features/ledger"
	"serotonyl.ru/reputation-ledger/internal/features/scoring"
	"serotonyl.ru/reputation-ledger/internal/stream"
)

type ServiceSuite struct {
	suite.Suite
	ctx      context.Context
	ctrl     *gomock.Controller
	store    *achievement.MemoryStore
	ledger   *ledger.Service
	notifier *mocks.MockNotifier
	service  *achievement.Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.ctrl = gomock.NewController(s.T())
	s.store = achievement.NewMemoryStore()
	s.notifier = mocks.NewMockNotifier(s.ctrl)
	s.ledger = ledger.NewService(ledger.NewMemoryStore(), scoring.DefaultPolicy(), ledger.Options{})
	for _, id := range []int64{1, 2, 3, 4, 5, 6, 77} {
		_, err := s.ledger.RegisterUser(s.ctx, ledger.UserRegistered{UserID: id})
		s.Require().NoError(err)
	}
	s.service = achievement.NewService(s.store, s.ledger, achievement.DefaultCatalog(), s.notifier, nil, nil)
}

func committed(userID int64, txType ledger.TxType, total float64) ledger.Committed {
	ev := ledger.Committed{Transaction: ledger.Transaction{
		ID:     uuid.New(),
		UserID: userID,
		Type:   txType,
	}}
	ev.Score.UserID = userID
	ev.Score.TotalScore = total
	return ev
}

func (s *ServiceSuite) progress(userID int64, typ string) achievement.Progress {
	list, err := s.service.UserAchievements(s.ctx, userID)
	s.Require().NoError(err)
	for _, ua := range list {
		if ua.Type == typ {
			return ua.Progress
		}
	}
	s.FailNow("achievement not in catalog", typ)
	return achievement.Progress{}
}

func (s *ServiceSuite) TestFirstMatchUnlocksOnce() {
	s.notifier.EXPECT().
		NotifyUnlocked(gomock.Any(), int64(1), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ int64, def achievement.Definition, p achievement.Progress) error {
			s.Equal("first_match", def.Type)
			s.NotNil(p.UnlockedAt)
			return nil
		}).
		Times(1)

	ev := committed(1, ledger.TypeMatchSuccess, 20)
	s.Require().NoError(s.service.Process(s.ctx, ev))
	s.service.Wait()

	first := s.progress(1, "first_match")
	s.Require().NotNil(first.UnlockedAt)
	s.Equal(1, first.CurrentProgress)

	s.Require().NoError(s.service.Process(s.ctx, ev), "replay")
	s.service.Wait()

	again := s.progress(1, "first_match")
	s.Equal(*first.UnlockedAt, *again.UnlockedAt)
	s.Equal(1, s.progress(1, "match_maker").CurrentProgress, "replayed transaction is not counted twice")
}

func (s *ServiceSuite) TestCounterProgressAndUnlock() {
	s.notifier.EXPECT().NotifyUnlocked(gomock.Any(), int64(2), gomock.Any(), gomock.Any()).Return(nil).Times(2)

	for i := 0; i < 12; i++ {
		s.Require().NoError(s.service.Process(s.ctx, committed(2, ledger.TypeMatchSuccess, float64(i))))
		if i == 8 {
			p := s.progress(2, "match_maker")
			s.Equal(9, p.CurrentProgress)
			s.Nil(p.UnlockedAt)
		}
	}
	s.service.Wait()

	p := s.progress(2, "match_maker")
	s.Equal(10, p.CurrentProgress, "progress stops at max")
	s.NotNil(p.UnlockedAt)
	s.Equal(achievement.RarityRare, p.Rarity)
}

func (s *ServiceSuite) TestMilestoneFollowsTotalScore() {
	s.notifier.EXPECT().NotifyUnlocked(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	s.Require().NoError(s.service.Process(s.ctx, committed(3, ledger.TypeContribution, 320.4)))
	s.Equal(320, s.progress(3, "rising_expert").CurrentProgress)

	s.Require().NoError(s.service.Process(s.ctx, committed(3, ledger.TypePenalty, 250)))
	s.Equal(320, s.progress(3, "rising_expert").CurrentProgress, "a lower total never reduces progress")

	s.Require().NoError(s.service.Process(s.ctx, committed(3, ledger.TypeContribution, 612)))
	s.service.Wait()
	p := s.progress(3, "rising_expert")
	s.Equal(500, p.CurrentProgress)
	s.NotNil(p.UnlockedAt)
	s.Nil(s.progress(3, "visionary").UnlockedAt)
}

func (s *ServiceSuite) TestNotificationFailureKeepsUnlock() {
	s.notifier.EXPECT().NotifyUnlocked(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(errors.New("telegram down"))

	s.Require().NoError(s.service.Process(s.ctx, committed(4, ledger.TypeContribution, 3)))
	s.service.Wait()

	s.NotNil(s.progress(4, "first_contribution").UnlockedAt)
}

func (s *ServiceSuite) TestMintedTokenIsStored() {
	minter := mocks.NewMockMinter(s.ctrl)
	minter.EXPECT().Mint(gomock.Any(), int64(5), gomock.Any()).Return("0xfeed", nil).Times(1)
	svc := achievement.NewService(s.store, s.ledger, achievement.DefaultCatalog(), nil, minter, nil)

	s.Require().NoError(svc.Process(s.ctx, committed(5, ledger.TypePeerReview, 1)))
	s.Empty(s.progress(5, "peer_reviewer").TokenID, "not unlocked yet")

	for i := 0; i < 4; i++ {
		s.Require().NoError(svc.Process(s.ctx, committed(5, ledger.TypePeerReview, 1)))
	}
	s.Equal("0xfeed", s.progress(5, "peer_reviewer").TokenID)
}

func (s *ServiceSuite) TestUserAchievementsListsWholeCatalog() {
	list, err := s.service.UserAchievements(s.ctx, 77)
	s.Require().NoError(err)
	s.Len(list, len(achievement.DefaultCatalog()))
	for _, ua := range list {
		s.Zero(ua.Progress.CurrentProgress)
		s.Nil(ua.Progress.UnlockedAt)
		s.Equal(ua.MaxProgress, ua.Progress.MaxProgress)
	}
}

func (s *ServiceSuite) TestUserAchievementsRequiresAccount() {
	list, err := s.service.UserAchievements(s.ctx, 999)
	s.ErrorIs(err, common.ErrUserNotFound)
	s.Nil(list)
}

func (s *ServiceSuite) TestHandleMessage() {
	s.notifier.EXPECT().NotifyUnlocked(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	body, err := json.Marshal(committed(6, ledger.TypeContribution, 0.3))
	s.Require().NoError(err)
	s.Require().NoError(s.service.HandleMessage(s.ctx, stream.Message{Value: body}))
	s.service.Wait()
	s.NotNil(s.progress(6, "first_contribution").UnlockedAt)

	s.Error(s.service.HandleMessage(s.ctx, stream.Message{Value: []byte("{")}))
}

func TestKeccakMinterIsDeterministic(t *testing.T) {
	def := achievement.DefaultCatalog()[0]
	var m achievement.KeccakMinter

	a, err := m.Mint(context.Background(), 1, def)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := m.Mint(context.Background(), 1, def)
	c, _ := m.Mint(context.Background(), 2, def)

	if a != b || a == c || len(a) != 66 {
		t.Fatalf("unexpected token ids %q %q %q", a, b, c)
	}
}
