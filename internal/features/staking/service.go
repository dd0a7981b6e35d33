package staking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/reputation-ledger/internal/common"
	"serotonyl.ru/reputation-ledger/internal/features/ledger"
	"serotonyl.ru/reputation-ledger/internal/features/scoring"
	"serotonyl.ru/reputation-ledger/internal/metrics"
)

// Ledger is the part of the ledger service staking needs.
type Ledger interface {
	GetScore(ctx context.Context, userID int64) (*ledger.Score, error)
	AppendTransaction(ctx context.Context, req ledger.AppendRequest) (*ledger.Transaction, error)
	TransactionByRef(ctx context.Context, ref string) (*ledger.Transaction, error)
	CountSince(ctx context.Context, userID int64, txType ledger.TxType, since time.Time) (int, error)
	Policy() scoring.Policy
}

type Service struct {
	store   Store
	ledger  Ledger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewService(store Store, l Ledger, m *metrics.Metrics) *Service {
	return &Service{store: store, ledger: l, metrics: m, now: common.NowUTC}
}

// CreateStake opens an active stake. The amount may not exceed the cap
// share of the user's current total score.
func (s *Service) CreateStake(ctx context.Context, req CreateRequest) (*Stake, error) {
	if !req.StakeType.Valid() {
		return nil, fmt.Errorf("%w: %q", common.ErrUnknownStakeType, req.StakeType)
	}
	if req.Amount <= 0 || math.IsNaN(req.Amount) || math.IsInf(req.Amount, 0) {
		return nil, common.ErrInvalidAmount
	}
	if req.DurationDays < MinDurationDays || req.DurationDays > MaxDurationDays {
		return nil, fmt.Errorf("%w: %d", common.ErrInvalidDuration, req.DurationDays)
	}

	score, err := s.ledger.GetScore(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	limit := s.ledger.Policy().StakeCapRatio * score.TotalScore
	if req.Amount > limit+common.Epsilon {
		return nil, fmt.Errorf("%w: %s > %s", common.ErrStakeExceedsCap,
			common.FormatPoints(req.Amount), common.FormatPoints(limit))
	}

	now := s.now()
	st := &Stake{
		ID:          uuid.New(),
		UserID:      req.UserID,
		StakeType:   req.StakeType,
		Amount:      req.Amount,
		LockedUntil: now.AddDate(0, 0, req.DurationDays),
		Status:      StatusActive,
		CreatedAt:   now,
	}
	if err := s.store.Create(ctx, st); err != nil {
		return nil, err
	}
	s.metrics.IncStakeCreated(string(st.StakeType))

	log.WithFields(log.Fields{
		"user_id":      st.UserID,
		"stake_id":     st.ID,
		"stake_type":   st.StakeType,
		"amount":       st.Amount,
		"locked_until": st.LockedUntil,
	}).Info("Stake created")
	return st, nil
}

// SettleStake moves an active stake to its terminal status. Settling a
// terminal stake returns it unchanged. When callers race, the settlement
// transaction that committed first decides the status.
//
// Reward and slash amounts are component points in the stake type's
// category, so the total moves by the category weight times the amount.
func (s *Service) SettleStake(ctx context.Context, id uuid.UUID, outcome Outcome) (*Stake, error) {
	if _, err := ParseOutcome(string(outcome)); err != nil {
		return nil, err
	}
	st, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if st.Status.Terminal() {
		return st, nil
	}

	req := ledger.AppendRequest{
		UserID:   st.UserID,
		Category: st.StakeType.Category(),
		Ref:      settlementRef(st.ID),
	}
	if outcome == OutcomeSuccess {
		req.Type = ledger.TypeStakeReward
		req.Amount = s.ledger.Policy().StakeRewardRatio * st.Amount
		req.Reason = fmt.Sprintf("Stake %s released", st.StakeType)
	} else {
		req.Type = ledger.TypeStakeSlash
		req.Amount = -st.Amount
		req.Reason = fmt.Sprintf("Stake %s slashed", st.StakeType)
	}

	tx, err := s.ledger.AppendTransaction(ctx, req)
	if errors.Is(err, common.ErrRefConflict) {
		// A settlement with the other outcome committed first.
		tx, err = s.ledger.TransactionByRef(ctx, req.Ref)
	}
	if err != nil {
		return nil, fmt.Errorf("settle stake %s: %w", st.ID, err)
	}

	status := StatusReleased
	if tx.Type == ledger.TypeStakeSlash {
		status = StatusSlashed
	}
	moved, err := s.store.Settle(ctx, st.ID, status, tx.ID, s.now())
	if err != nil {
		return nil, err
	}
	if moved {
		s.metrics.IncStakeSettled(string(status))
		log.WithFields(log.Fields{
			"user_id":  st.UserID,
			"stake_id": st.ID,
			"status":   status,
			"amount":   tx.Amount,
		}).Info("Stake settled")
	}
	return s.store.Get(ctx, st.ID)
}

// SweepMatured settles up to limit active stakes whose lock has expired,
// resolving each outcome from the user's ledger activity since the stake
// was opened.
func (s *Service) SweepMatured(ctx context.Context, now time.Time, limit int) (int, error) {
	matured, err := s.store.ListMatured(ctx, now, limit)
	if err != nil {
		return 0, err
	}

	settled := 0
	for _, st := range matured {
		if err := ctx.Err(); err != nil {
			return settled, err
		}
		outcome, err := s.resolveOutcome(ctx, st)
		if err == nil {
			_, err = s.SettleStake(ctx, st.ID, outcome)
		}
		if err != nil {
			if errors.Is(err, common.ErrUnavailable) {
				return settled, err
			}
			log.WithError(err).WithField("stake_id", st.ID).Warn("Stake settlement failed")
			continue
		}
		settled++
	}
	return settled, nil
}

func (s *Service) resolveOutcome(ctx context.Context, st *Stake) (Outcome, error) {
	var (
		txType      ledger.TxType
		failOnEvent bool
	)
	switch st.StakeType {
	case TypeMatchGuarantee:
		txType, failOnEvent = ledger.TypeMatchFailure, true
	case TypeQualityPledge:
		txType, failOnEvent = ledger.TypePenalty, true
	case TypeProjectCommitment:
		txType, failOnEvent = ledger.TypeContribution, false
	default:
		return "", fmt.Errorf("%w: %q", common.ErrUnknownStakeType, st.StakeType)
	}

	n, err := s.ledger.CountSince(ctx, st.UserID, txType, st.CreatedAt)
	if err != nil {
		return "", err
	}
	if (n > 0) == failOnEvent {
		return OutcomeFailure, nil
	}
	return OutcomeSuccess, nil
}

func (s *Service) GetStake(ctx context.Context, id uuid.UUID) (*Stake, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) ListStakes(ctx context.Context, userID int64) ([]*Stake, error) {
	if _, err := s.ledger.GetScore(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.ListByUser(ctx, userID)
}
