package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"serotonyl.ru/reputation-ledger/internal/common"
	"serotonyl.ru/reputation-ledger/internal/features/scoring"
)

// MemoryStore keeps the ledger in process memory. It is used by tests and
// by STORAGE_DRIVER=memory for local runs.
type MemoryStore struct {
	mu     sync.RWMutex
	scores map[int64]*Score
	txs    []*Transaction
	byID   map[uuid.UUID]*Transaction
	byRef  map[string]*Transaction
	outbox []*memoryOutbox
	nextID int64
}

type memoryOutbox struct {
	entry     OutboxEntry
	published bool
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		scores: make(map[int64]*Score),
		byID:   make(map[uuid.UUID]*Transaction),
		byRef:  make(map[string]*Transaction),
	}
}

func (m *MemoryStore) CreateScore(_ context.Context, score *Score) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.scores[score.UserID]; ok {
		return false, nil
	}
	cp := *score
	m.scores[score.UserID] = &cp
	return true, nil
}

func (m *MemoryStore) GetScore(_ context.Context, userID int64) (*Score, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.scores[userID]
	if !ok {
		return nil, common.ErrUserNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) Commit(_ context.Context, mut Mutation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.scores[mut.Score.UserID]
	if !ok {
		return common.ErrUserNotFound
	}
	if cur.Version != mut.ExpectedVersion {
		return common.ErrVersionConflict
	}
	if mut.Tx.Ref != "" {
		if _, dup := m.byRef[mut.Tx.Ref]; dup {
			return errDuplicateRef
		}
	}

	tx := *mut.Tx
	m.txs = append(m.txs, &tx)
	m.byID[tx.ID] = &tx
	if tx.Ref != "" {
		m.byRef[tx.Ref] = &tx
	}
	next := *mut.Score
	m.scores[next.UserID] = &next

	m.nextID++
	m.outbox = append(m.outbox, &memoryOutbox{entry: OutboxEntry{
		ID:            m.nextID,
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		Payload:       append([]byte(nil), mut.Event...),
		CreatedAt:     tx.CreatedAt,
	}})
	return nil
}

func (m *MemoryStore) FindByRef(_ context.Context, ref string) (*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.byRef[ref]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *tx
	return &cp, nil
}

func (m *MemoryStore) ListTransactions(_ context.Context, userID int64, before time.Time, beforeID string, limit int) ([]*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Transaction
	for _, tx := range m.txs {
		if tx.UserID != userID {
			continue
		}
		if !before.IsZero() && !olderThan(tx, before, beforeID) {
			continue
		}
		cp := *tx
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() > out[j].ID.String()
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func olderThan(tx *Transaction, before time.Time, beforeID string) bool {
	if tx.CreatedAt.Before(before) {
		return true
	}
	return tx.CreatedAt.Equal(before) && tx.ID.String() < beforeID
}

func (m *MemoryStore) CountSince(_ context.Context, userID int64, txType TxType, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, tx := range m.txs {
		if tx.UserID == userID && tx.Type == txType && !tx.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) SumByCategory(_ context.Context, userID int64) (map[scoring.Category]float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sums := make(map[scoring.Category]float64)
	for _, tx := range m.txs {
		if tx.UserID == userID {
			sums[tx.Category] += tx.Amount
		}
	}
	return sums, nil
}

func (m *MemoryStore) TopScores(_ context.Context, limit int) ([]*Score, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Score, 0, len(m.scores))
	for _, s := range m.scores {
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalScore != out[j].TotalScore {
			return out[i].TotalScore > out[j].TotalScore
		}
		return out[i].UserID < out[j].UserID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) PendingTransactions(_ context.Context, after time.Time, afterID uuid.UUID, limit int) ([]*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Transaction
	for _, tx := range m.txs {
		if tx.Status != StatusPending {
			continue
		}
		if !after.IsZero() && !newerThan(tx, after, afterID) {
			continue
		}
		cp := *tx
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func newerThan(tx *Transaction, after time.Time, afterID uuid.UUID) bool {
	if tx.CreatedAt.After(after) {
		return true
	}
	return tx.CreatedAt.Equal(after) && tx.ID.String() > afterID.String()
}

func (m *MemoryStore) ConfirmTransaction(_ context.Context, id uuid.UUID, txHash string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.byID[id]
	if !ok {
		return false, common.ErrNotFound
	}
	if tx.Status != StatusPending {
		return false, nil
	}
	tx.Status = StatusConfirmed
	tx.TxHash = txHash
	confirmed := at
	tx.ConfirmedAt = &confirmed
	return true, nil
}

func (m *MemoryStore) PendingOutbox(_ context.Context, limit int) ([]OutboxEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []OutboxEntry
	for _, o := range m.outbox {
		if o.published {
			continue
		}
		out = append(out, o.entry)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) MarkOutboxPublished(_ context.Context, ids []int64, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	for _, o := range m.outbox {
		if _, ok := set[o.entry.ID]; ok {
			o.published = true
		}
	}
	return nil
}
