package achievement

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type progressKey struct {
	userID int64
	typ    string
}

type markKey struct {
	txID uuid.UUID
	typ  string
}

// MemoryStore is the in-process Store.
type MemoryStore struct {
	mu       sync.Mutex
	progress map[progressKey]*Progress
	marks    map[markKey]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		progress: make(map[progressKey]*Progress),
		marks:    make(map[markKey]struct{}),
	}
}

func (m *MemoryStore) Advance(_ context.Context, userID int64, txID uuid.UUID, def Definition, step Step, now time.Time) (*Progress, Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := progressKey{userID, def.Type}
	p, ok := m.progress[key]
	if !ok {
		p = &Progress{UserID: userID, Type: def.Type, MaxProgress: def.MaxProgress, Rarity: def.Rarity, UpdatedAt: now}
		m.progress[key] = p
	}

	mark := markKey{txID, def.Type}
	if _, seen := m.marks[mark]; seen {
		cp := *p
		return &cp, Result{}, nil
	}
	m.marks[mark] = struct{}{}

	res := Result{Applied: true}
	p.CurrentProgress = Advance(p.CurrentProgress, p.MaxProgress, step)
	p.UpdatedAt = now
	if p.UnlockedAt == nil && p.CurrentProgress >= p.MaxProgress {
		at := now
		p.UnlockedAt = &at
		res.Unlocked = true
	}
	cp := *p
	return &cp, res, nil
}

func (m *MemoryStore) List(_ context.Context, userID int64) ([]*Progress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Progress
	for k, p := range m.progress {
		if k.userID == userID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out, nil
}

func (m *MemoryStore) SetToken(_ context.Context, userID int64, achievementType, tokenID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.progress[progressKey{userID, achievementType}]; ok && p.TokenID == "" {
		p.TokenID = tokenID
	}
	return nil
}
