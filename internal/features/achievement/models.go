// Package achievement tracks progress toward a fixed catalog of
// achievements by evaluating every committed ledger transaction.
package achievement

import (
	"math"
	"time"

	"serotonyl.ru/reputation-ledger/internal/features/ledger"
)

// Rarity grades how hard an achievement is to earn.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityUncommon  Rarity = "uncommon"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// Kind selects how a definition reads progress from a transaction.
type Kind string

const (
	// KindCounter adds one per transaction of the definition's type.
	KindCounter Kind = "counter"
	// KindMilestone raises progress to the total score after the commit.
	KindMilestone Kind = "milestone"
)

// Definition is one catalog entry.
type Definition struct {
	Type        string        `json:"type"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Rarity      Rarity        `json:"rarity"`
	Kind        Kind          `json:"kind"`
	TxType      ledger.TxType `json:"txType,omitempty"`
	MaxProgress int           `json:"maxProgress"`
}

// Step is the effect of one transaction on a progress row: add Increment,
// then raise to at least Floor.
type Step struct {
	Increment int
	Floor     int
}

// IsZero reports whether the step cannot move progress.
func (s Step) IsZero() bool {
	return s.Increment <= 0 && s.Floor <= 0
}

// StepFor evaluates the definition against one committed transaction.
func (d Definition) StepFor(ev ledger.Committed) Step {
	switch d.Kind {
	case KindCounter:
		if ev.Transaction.Type == d.TxType {
			return Step{Increment: 1}
		}
	case KindMilestone:
		if total := ev.Score.TotalScore; total > 0 {
			return Step{Floor: int(math.Floor(total))}
		}
	}
	return Step{}
}

// Advance applies a step to the current value, never decreasing it and
// never passing max.
func Advance(current, max int, s Step) int {
	next := current
	if s.Increment > 0 {
		next += s.Increment
	}
	if s.Floor > next {
		next = s.Floor
	}
	if next > max {
		next = max
	}
	if next < current {
		return current
	}
	return next
}

// Progress is a user's state for one achievement type.
type Progress struct {
	UserID          int64      `json:"userId"`
	Type            string     `json:"type"`
	CurrentProgress int        `json:"currentProgress"`
	MaxProgress     int        `json:"maxProgress"`
	UnlockedAt      *time.Time `json:"unlockedAt,omitempty"`
	Rarity          Rarity     `json:"rarity"`
	TokenID         string     `json:"tokenId,omitempty"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// Unlocked reports whether the achievement has been earned.
func (p *Progress) Unlocked() bool {
	return p.UnlockedAt != nil
}

// Result describes what one Advance call did.
type Result struct {
	// Applied is false when the transaction was already counted for this type.
	Applied bool
	// Unlocked is true only for the call that set UnlockedAt.
	Unlocked bool
}

// UserAchievement joins a catalog entry with the user's progress.
type UserAchievement struct {
	Definition
	Progress Progress `json:"progress"`
}
