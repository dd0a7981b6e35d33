package endorsement

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"

	"serotonyl.ru/reputation-ledger/internal/common"
)

type tripleKey struct {
	endorser int64
	endorsed int64
	skill    string
}

type skillKey struct {
	endorsed int64
	skill    string
}

type MemoryStore struct {
	mu       sync.Mutex
	items    []*Endorsement
	triples  map[tripleKey]struct{}
	credited map[skillKey]float64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		triples:  make(map[tripleKey]struct{}),
		credited: make(map[skillKey]float64),
	}
}

func (m *MemoryStore) Create(_ context.Context, e *Endorsement, skillCap float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tk := tripleKey{e.EndorserID, e.EndorsedID, e.Skill}
	if _, dup := m.triples[tk]; dup {
		return common.ErrDuplicateEndorsement
	}
	sk := skillKey{e.EndorsedID, e.Skill}
	e.Amount = math.Max(0, math.Min(e.Amount, skillCap-m.credited[sk]))

	m.triples[tk] = struct{}{}
	m.credited[sk] += e.Amount
	cp := *e
	m.items = append(m.items, &cp)
	return nil
}

func (m *MemoryStore) SetTransaction(_ context.Context, id, txID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.items {
		if e.ID == id {
			t := txID
			e.TransactionID = &t
			return nil
		}
	}
	return common.ErrNotFound
}

func (m *MemoryStore) ListUncredited(_ context.Context, limit int) ([]*Endorsement, error) {
	return m.filter(func(e *Endorsement) bool { return e.Amount > 0 && e.TransactionID == nil }, limit), nil
}

func (m *MemoryStore) ListReceived(_ context.Context, userID int64) ([]*Endorsement, error) {
	return m.filter(func(e *Endorsement) bool { return e.EndorsedID == userID }, 0), nil
}

func (m *MemoryStore) ListGiven(_ context.Context, userID int64) ([]*Endorsement, error) {
	return m.filter(func(e *Endorsement) bool { return e.EndorserID == userID }, 0), nil
}

func (m *MemoryStore) filter(keep func(*Endorsement) bool, limit int) []*Endorsement {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Endorsement
	for _, e := range m.items {
		if keep(e) {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
