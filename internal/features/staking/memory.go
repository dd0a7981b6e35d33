package staking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"serotonyl.ru/reputation-ledger/internal/common"
)

type MemoryStore struct {
	mu     sync.Mutex
	stakes map[uuid.UUID]*Stake
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{stakes: make(map[uuid.UUID]*Stake)}
}

func (m *MemoryStore) Create(_ context.Context, s *Stake) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.stakes[s.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id uuid.UUID) (*Stake, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stakes[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) ListByUser(_ context.Context, userID int64) ([]*Stake, error) {
	out := m.collect(func(s *Stake) bool { return s.UserID == userID })
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) ListMatured(_ context.Context, now time.Time, limit int) ([]*Stake, error) {
	out := m.collect(func(s *Stake) bool { return s.Status == StatusActive && !s.LockedUntil.After(now) })
	sort.Slice(out, func(i, j int) bool { return out[i].LockedUntil.Before(out[j].LockedUntil) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Settle(_ context.Context, id uuid.UUID, status Status, txID uuid.UUID, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stakes[id]
	if !ok {
		return false, common.ErrNotFound
	}
	if s.Status != StatusActive {
		return false, nil
	}
	s.Status = status
	s.SettlementTxID = &txID
	s.SettledAt = &at
	return true, nil
}

func (m *MemoryStore) collect(keep func(*Stake) bool) []*Stake {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Stake
	for _, s := range m.stakes {
		if keep(s) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out
}
