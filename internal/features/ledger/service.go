package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"serotonyl.ru/reputation-ledger/internal/common"
	"serotonyl.ru/reputation-ledger/internal/features/scoring"
	"serotonyl.ru/reputation-ledger/internal/metrics"
)

var tracer = otel.Tracer("serotonyl.ru/reputation-ledger/ledger")

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Options tune the append path.
type Options struct {
	MaxRetries    int
	AppendTimeout time.Duration
	Metrics       *metrics.Metrics
	Now           func() time.Time
}

// Service applies transactions to the store and answers score queries.
type Service struct {
	store      Store
	policy     scoring.Policy
	maxRetries int
	timeout    time.Duration
	metrics    *metrics.Metrics
	now        func() time.Time
}

// NewService creates the ledger service. Zero options fall back to five
// retries, a three second timeout and the wall clock.
func NewService(store Store, policy scoring.Policy, opts Options) *Service {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 5
	}
	if opts.AppendTimeout <= 0 {
		opts.AppendTimeout = 3 * time.Second
	}
	if opts.Now == nil {
		opts.Now = common.NowUTC
	}
	return &Service{
		store:      store,
		policy:     policy,
		maxRetries: opts.MaxRetries,
		timeout:    opts.AppendTimeout,
		metrics:    opts.Metrics,
		now:        opts.Now,
	}
}

// Policy returns the scoring policy the service derives scores with.
func (s *Service) Policy() scoring.Policy {
	return s.policy
}

// RegisterUser creates the zeroed snapshot for a new user. Registering an
// existing user returns the stored snapshot unchanged.
func (s *Service) RegisterUser(ctx context.Context, ev UserRegistered) (*Score, error) {
	if ev.UserID <= 0 {
		return nil, common.ErrInvalidUserID
	}
	now := s.now()
	score := &Score{
		UserID:            ev.UserID,
		VerificationLevel: ev.VerificationLevel,
		WalletAddress:     ev.WalletAddress,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	s.derive(score)

	created, err := s.store.CreateScore(ctx, score)
	if err != nil {
		return nil, err
	}
	if !created {
		return s.store.GetScore(ctx, ev.UserID)
	}
	log.WithField("user_id", ev.UserID).Info("Reputation account created")
	return score, nil
}

// AppendTransaction validates req and commits it together with the
// recomputed snapshot. Version conflicts are retried; when every attempt
// conflicts the caller gets common.ErrConcurrencyExhausted.
func (s *Service) AppendTransaction(ctx context.Context, req AppendRequest) (*Transaction, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "ledger.AppendTransaction", trace.WithAttributes(
		attribute.Int64("user.id", req.UserID),
		attribute.String("tx.type", string(req.Type)),
	))
	defer span.End()

	if err := s.normalize(&req); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		tx, err := s.tryAppend(ctx, req)
		if err == nil {
			s.metrics.ObserveAppend(string(tx.Type), start)
			span.SetAttributes(attribute.String("tx.id", tx.ID.String()), attribute.Int("attempts", attempt))
			return tx, nil
		}
		if !errors.Is(err, common.ErrVersionConflict) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}

		s.metrics.IncAppendConflict()
		log.WithFields(log.Fields{
			"user_id": req.UserID,
			"attempt": attempt,
		}).Debug("Score version conflict, retrying append")

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("append transaction: %w", ctx.Err())
		case <-time.After(time.Duration(attempt) * 2 * time.Millisecond):
		}
	}

	span.SetStatus(codes.Error, common.ErrConcurrencyExhausted.Error())
	return nil, common.ErrConcurrencyExhausted
}

func (s *Service) tryAppend(ctx context.Context, req AppendRequest) (*Transaction, error) {
	if req.Ref != "" {
		existing, err := s.store.FindByRef(ctx, req.Ref)
		if err == nil {
			return replayed(existing, req)
		}
		if !errors.Is(err, common.ErrNotFound) {
			return nil, err
		}
	}

	cur, err := s.store.GetScore(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	tx := &Transaction{
		ID:        uuid.New(),
		UserID:    req.UserID,
		Type:      req.Type,
		Category:  req.Category,
		Amount:    req.Amount,
		Reason:    req.Reason,
		Ref:       req.Ref,
		Status:    StatusPending,
		CreatedAt: now,
	}
	next := s.apply(*cur, tx)

	event, err := json.Marshal(Committed{Transaction: *tx, Score: next})
	if err != nil {
		return nil, fmt.Errorf("encode committed event: %w", err)
	}

	err = s.store.Commit(ctx, Mutation{Tx: tx, Score: &next, ExpectedVersion: cur.Version, Event: event})
	if errors.Is(err, errDuplicateRef) {
		existing, err := s.store.FindByRef(ctx, req.Ref)
		if err != nil {
			return nil, err
		}
		return replayed(existing, req)
	}
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// replayed returns the transaction already stored under req.Ref, provided it
// was written for the same user and type.
func replayed(existing *Transaction, req AppendRequest) (*Transaction, error) {
	if existing.UserID != req.UserID || existing.Type != req.Type {
		return nil, fmt.Errorf("%w: %s is %s for user %d", common.ErrRefConflict, req.Ref, existing.Type, existing.UserID)
	}
	return existing, nil
}

// normalize fills the default category and rejects malformed requests.
func (s *Service) normalize(req *AppendRequest) error {
	if !req.Type.Valid() {
		return fmt.Errorf("%w: %q", common.ErrUnknownTransactionType, req.Type)
	}
	if req.Category == "" {
		req.Category = req.Type.DefaultCategory()
	}
	if !req.Category.Valid() {
		return fmt.Errorf("%w: %q", common.ErrUnknownCategory, req.Category)
	}
	if !req.Type.flexibleCategory() && req.Category != req.Type.DefaultCategory() {
		return fmt.Errorf("%w: %s must credit %s", common.ErrUnknownCategory, req.Type, req.Type.DefaultCategory())
	}
	if req.Amount == 0 || math.IsNaN(req.Amount) || math.IsInf(req.Amount, 0) {
		return common.ErrInvalidAmount
	}
	if req.Type.Debit() != (req.Amount < 0) {
		return fmt.Errorf("%w: %s amount has the wrong sign", common.ErrInvalidAmount, req.Type)
	}
	return nil
}

// apply returns the snapshot after tx. The input is not modified.
func (s *Service) apply(cur Score, tx *Transaction) Score {
	next := cur
	next.Components = cur.Components.Add(tx.Category, tx.Amount)
	next.TotalTransactions++
	switch tx.Type {
	case TypeMatchSuccess:
		next.SuccessfulMatches++
	case TypeMatchFailure:
		next.FailedMatches++
	case TypePenalty:
		next.PenaltyCount++
	}
	next.Version = cur.Version + 1
	next.UpdatedAt = tx.CreatedAt
	s.derive(&next)
	return next
}

func (s *Service) derive(score *Score) {
	d := s.policy.Derive(score.Components, score.Counters())
	score.TotalScore = d.Total
	score.Level = d.Level
	score.Rank = d.Rank
	score.TrustScore = d.Trust
}

// GetScore returns the latest snapshot. When inactivity decay is enabled the
// returned view is decayed and re-derived; the stored snapshot is untouched.
func (s *Service) GetScore(ctx context.Context, userID int64) (*Score, error) {
	score, err := s.store.GetScore(ctx, userID)
	if err != nil {
		return nil, err
	}
	if s.policy.InactivityDecayRate > 0 {
		score.Components = s.policy.Decay(score.Components, score.UpdatedAt, s.now())
		s.derive(score)
	}
	return score, nil
}

// ListTransactions pages through a user's history, newest first.
func (s *Service) ListTransactions(ctx context.Context, userID int64, page Page) (*TransactionPage, error) {
	if _, err := s.store.GetScore(ctx, userID); err != nil {
		return nil, err
	}
	limit := page.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	before, beforeID, err := common.DecodeCursor(page.Cursor)
	if err != nil {
		return nil, err
	}

	items, err := s.store.ListTransactions(ctx, userID, before, beforeID, limit+1)
	if err != nil {
		return nil, err
	}
	out := &TransactionPage{Items: items}
	if len(items) > limit {
		out.Items = items[:limit]
		last := out.Items[limit-1]
		out.NextCursor = common.EncodeCursor(last.CreatedAt, last.ID.String())
	}
	if out.Items == nil {
		out.Items = []*Transaction{}
	}
	return out, nil
}

// TransactionByRef returns the transaction stored under an idempotency ref.
func (s *Service) TransactionByRef(ctx context.Context, ref string) (*Transaction, error) {
	return s.store.FindByRef(ctx, ref)
}

// CountSince counts a user's transactions of one type created at or after since.
func (s *Service) CountSince(ctx context.Context, userID int64, txType TxType, since time.Time) (int, error) {
	return s.store.CountSince(ctx, userID, txType, since)
}

// Audit recomputes each component from the transaction log.
func (s *Service) Audit(ctx context.Context, userID int64) (*Audit, error) {
	score, err := s.store.GetScore(ctx, userID)
	if err != nil {
		return nil, err
	}
	sums, err := s.store.SumByCategory(ctx, userID)
	if err != nil {
		return nil, err
	}
	a := &Audit{UserID: userID, Components: score.Components, Sums: sums, Consistent: true}
	for _, cat := range scoring.Categories {
		if math.Abs(sums[cat]-score.Components.Get(cat)) > 1e-6 {
			a.Consistent = false
		}
	}
	return a, nil
}

// TopScores returns snapshots ordered by total desc, user id asc.
func (s *Service) TopScores(ctx context.Context, limit int) ([]*Score, error) {
	return s.store.TopScores(ctx, limit)
}
