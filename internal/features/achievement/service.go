package achievement

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/reputation-ledger/internal/common"
	"serotonyl.ru/reputation-ledger/internal/features/ledger"
	"serotonyl.ru/reputation-ledger/internal/metrics"
	"serotonyl.ru/reputation-ledger/internal/stream"
)

// Notifier announces an unlock to the user. Failures are logged only.
type Notifier interface {
	NotifyUnlocked(ctx context.Context, userID int64, def Definition, p Progress) error
}

// Ledger answers whether a user has a reputation account.
type Ledger interface {
	GetScore(ctx context.Context, userID int64) (*ledger.Score, error)
}

// Minter issues a token id for an unlocked achievement.
type Minter interface {
	Mint(ctx context.Context, userID int64, def Definition) (string, error)
}

const notifyTimeout = 10 * time.Second

// Service evaluates committed transactions against the catalog.
type Service struct {
	store    Store
	ledger   Ledger
	catalog  []Definition
	notifier Notifier
	minter   Minter
	metrics  *metrics.Metrics
	now      func() time.Time

	inflight sync.WaitGroup
}

// NewService creates the engine. notifier and minter may be nil.
func NewService(store Store, l Ledger, catalog []Definition, notifier Notifier, minter Minter, m *metrics.Metrics) *Service {
	return &Service{
		store:    store,
		ledger:   l,
		catalog:  catalog,
		notifier: notifier,
		minter:   minter,
		metrics:  m,
		now:      common.NowUTC,
	}
}

// Catalog returns every definition.
func (s *Service) Catalog() []Definition {
	out := make([]Definition, len(s.catalog))
	copy(out, s.catalog)
	return out
}

// UserAchievements lists the whole catalog with the user's progress;
// untouched entries report zero progress. Unknown users fail with
// common.ErrUserNotFound.
func (s *Service) UserAchievements(ctx context.Context, userID int64) ([]UserAchievement, error) {
	if _, err := s.ledger.GetScore(ctx, userID); err != nil {
		return nil, err
	}
	rows, err := s.store.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	byType := make(map[string]*Progress, len(rows))
	for _, p := range rows {
		byType[p.Type] = p
	}

	out := make([]UserAchievement, 0, len(s.catalog))
	for _, d := range s.catalog {
		ua := UserAchievement{Definition: d, Progress: Progress{
			UserID:      userID,
			Type:        d.Type,
			MaxProgress: d.MaxProgress,
			Rarity:      d.Rarity,
		}}
		if p, ok := byType[d.Type]; ok {
			ua.Progress = *p
		}
		out = append(out, ua)
	}
	return out, nil
}

// HandleMessage is the stream.Handler for committed-transaction events.
func (s *Service) HandleMessage(ctx context.Context, msg stream.Message) error {
	var ev ledger.Committed
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		return fmt.Errorf("decode committed event: %w", err)
	}
	return s.Process(ctx, ev)
}

// Process applies one committed transaction to every matching definition.
// Replaying the same transaction changes nothing.
func (s *Service) Process(ctx context.Context, ev ledger.Committed) error {
	userID := ev.Transaction.UserID
	rows, err := s.store.List(ctx, userID)
	if err != nil {
		return err
	}
	unlocked := make(map[string]bool, len(rows))
	for _, p := range rows {
		unlocked[p.Type] = p.Unlocked()
	}

	for _, def := range s.catalog {
		if unlocked[def.Type] {
			continue
		}
		step := def.StepFor(ev)
		if step.IsZero() {
			continue
		}
		p, res, err := s.store.Advance(ctx, userID, ev.Transaction.ID, def, step, s.now())
		if err != nil {
			return fmt.Errorf("advance %s: %w", def.Type, err)
		}
		if res.Unlocked {
			s.onUnlock(ctx, def, p)
		}
	}
	return nil
}

func (s *Service) onUnlock(ctx context.Context, def Definition, p *Progress) {
	s.metrics.IncAchievementUnlocked(def.Type)
	log.WithFields(log.Fields{
		"user_id":     p.UserID,
		"achievement": def.Type,
		"rarity":      def.Rarity,
	}).Info("Achievement unlocked")

	if s.minter != nil {
		token, err := s.minter.Mint(ctx, p.UserID, def)
		if err == nil {
			err = s.store.SetToken(ctx, p.UserID, def.Type, token)
		}
		if err != nil {
			log.WithError(err).WithField("achievement", def.Type).Warn("Token mint failed")
		} else {
			p.TokenID = token
		}
	}

	if s.notifier == nil {
		return
	}
	snapshot := *p
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		nctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := s.notifier.NotifyUnlocked(nctx, snapshot.UserID, def, snapshot); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"user_id":     snapshot.UserID,
				"achievement": def.Type,
			}).Warn("Unlock notification failed")
		}
	}()
}

// Wait blocks until every pending notification finished.
func (s *Service) Wait() {
	s.inflight.Wait()
}
