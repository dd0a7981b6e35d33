package endorsement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/reputation-ledger/internal/common"
	"serotonyl.ru/reputation-ledger/internal/features/ledger"
	"serotonyl.ru/reputation-ledger/internal/features/scoring"
)

const maxSkillLength = 64

// Ledger is the part of the ledger service endorsements need.
type Ledger interface {
	GetScore(ctx context.Context, userID int64) (*ledger.Score, error)
	AppendTransaction(ctx context.Context, req ledger.AppendRequest) (*ledger.Transaction, error)
	Policy() scoring.Policy
}

type Service struct {
	store  Store
	ledger Ledger
	now    func() time.Time
}

func NewService(store Store, l Ledger) *Service {
	return &Service{store: store, ledger: l, now: common.NowUTC}
}

// CreateEndorsement stores the endorsement and credits the endorsed user's
// community component. The weight is the endorser's rank multiplier at the
// moment of the call.
func (s *Service) CreateEndorsement(ctx context.Context, req CreateRequest) (*Endorsement, error) {
	if req.EndorserID == req.EndorsedID {
		return nil, common.ErrSelfEndorsementNotAllowed
	}
	if req.Level < MinLevel || req.Level > MaxLevel {
		return nil, fmt.Errorf("%w: %d", common.ErrInvalidLevel, req.Level)
	}
	skill := strings.ToLower(strings.TrimSpace(req.Skill))
	if skill == "" || len(skill) > maxSkillLength {
		return nil, common.ErrInvalidSkill
	}

	endorser, err := s.ledger.GetScore(ctx, req.EndorserID)
	if err != nil {
		return nil, fmt.Errorf("endorser: %w", err)
	}
	if _, err := s.ledger.GetScore(ctx, req.EndorsedID); err != nil {
		return nil, fmt.Errorf("endorsed: %w", err)
	}

	policy := s.ledger.Policy()
	weight := policy.Multiplier(endorser.Rank)
	e := &Endorsement{
		ID:         uuid.New(),
		EndorserID: req.EndorserID,
		EndorsedID: req.EndorsedID,
		Skill:      skill,
		Level:      req.Level,
		Comment:    strings.TrimSpace(req.Comment),
		Weight:     weight,
		Amount:     common.Round2(float64(req.Level) * weight),
		CreatedAt:  s.now(),
	}
	if err := s.store.Create(ctx, e, policy.EndorsementCap); err != nil {
		return nil, err
	}

	if e.Amount > 0 {
		if err := s.credit(ctx, e); err != nil {
			// The row is stored; RetryUncredited finishes the credit later.
			log.WithError(err).WithField("endorsement_id", e.ID).Warn("Endorsement credit deferred")
		}
	}

	log.WithFields(log.Fields{
		"endorser_id": e.EndorserID,
		"endorsed_id": e.EndorsedID,
		"skill":       e.Skill,
		"amount":      e.Amount,
	}).Info("Endorsement created")
	return e, nil
}

func (s *Service) credit(ctx context.Context, e *Endorsement) error {
	tx, err := s.ledger.AppendTransaction(ctx, ledger.AppendRequest{
		UserID:   e.EndorsedID,
		Type:     ledger.TypeCommunityVote,
		Category: scoring.CategoryCommunity,
		Amount:   e.Amount,
		Reason:   fmt.Sprintf("Endorsement of %s (level %d)", e.Skill, e.Level),
		Ref:      transactionRef(e.ID),
	})
	if err != nil {
		return err
	}
	if err := s.store.SetTransaction(ctx, e.ID, tx.ID); err != nil {
		return err
	}
	id := tx.ID
	e.TransactionID = &id
	return nil
}

// RetryUncredited appends the missing transaction for endorsements whose
// credit failed. The ref keeps a retry from crediting twice.
func (s *Service) RetryUncredited(ctx context.Context, limit int) (int, error) {
	pending, err := s.store.ListUncredited(ctx, limit)
	if err != nil {
		return 0, err
	}
	done := 0
	for _, e := range pending {
		if err := s.credit(ctx, e); err != nil {
			if errors.Is(err, common.ErrUnavailable) {
				return done, err
			}
			log.WithError(err).WithField("endorsement_id", e.ID).Warn("Endorsement credit retry failed")
			continue
		}
		done++
	}
	return done, nil
}

func (s *Service) ListReceived(ctx context.Context, userID int64) ([]*Endorsement, error) {
	if _, err := s.ledger.GetScore(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.ListReceived(ctx, userID)
}

func (s *Service) ListGiven(ctx context.Context, userID int64) ([]*Endorsement, error) {
	if _, err := s.ledger.GetScore(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.ListGiven(ctx, userID)
}
