// Package scoring holds the pure score math: weighted totals, levels, ranks,
// trust and the optional inactivity decay. Nothing here touches storage.
package scoring

import "fmt"

// Rank is the coarse trust tier derived from the total score.
type Rank string

const (
	RankNewcomer    Rank = "newcomer"
	RankContributor Rank = "contributor"
	RankExpert      Rank = "expert"
	RankLeader      Rank = "leader"
	RankVisionary   Rank = "visionary"
)

// Ranks lists every tier from lowest to highest.
var Ranks = []Rank{RankNewcomer, RankContributor, RankExpert, RankLeader, RankVisionary}

// ParseRank validates a rank label.
func ParseRank(s string) (Rank, error) {
	for _, r := range Ranks {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown rank %q", s)
}

// Category names one of the four score components.
type Category string

const (
	CategoryMatching      Category = "matching"
	CategoryContribution  Category = "contribution"
	CategoryCollaboration Category = "collaboration"
	CategoryCommunity     Category = "community"
)

// Categories lists the components in weight-vector order.
var Categories = []Category{CategoryMatching, CategoryContribution, CategoryCollaboration, CategoryCommunity}

// Valid reports whether c is one of the four components.
func (c Category) Valid() bool {
	switch c {
	case CategoryMatching, CategoryContribution, CategoryCollaboration, CategoryCommunity:
		return true
	}
	return false
}

// Components are the accumulated per-category scores.
type Components struct {
	Matching      float64 `json:"matchingScore"`
	Contribution  float64 `json:"contributionScore"`
	Collaboration float64 `json:"collaborationScore"`
	Community     float64 `json:"communityScore"`
}

// Get returns the component for c. Unknown categories read as zero.
func (c Components) Get(cat Category) float64 {
	switch cat {
	case CategoryMatching:
		return c.Matching
	case CategoryContribution:
		return c.Contribution
	case CategoryCollaboration:
		return c.Collaboration
	case CategoryCommunity:
		return c.Community
	}
	return 0
}

// Add returns a copy with delta applied to cat.
func (c Components) Add(cat Category, delta float64) Components {
	switch cat {
	case CategoryMatching:
		c.Matching += delta
	case CategoryContribution:
		c.Contribution += delta
	case CategoryCollaboration:
		c.Collaboration += delta
	case CategoryCommunity:
		c.Community += delta
	}
	return c
}

// Weights is the fixed weight vector applied to Components. It must sum to 1.
type Weights struct {
	Matching      float64
	Contribution  float64
	Collaboration float64
	Community     float64
}

func (w Weights) sum() float64 {
	return w.Matching + w.Contribution + w.Collaboration + w.Community
}

// Threshold maps the lowest total score of a tier to its rank.
type Threshold struct {
	MinScore float64
	Rank     Rank
}

// Counters are the activity tallies that feed the trust score.
type Counters struct {
	SuccessfulMatches int
	FailedMatches     int
	Penalties         int
}

// Derived is everything recomputed from the components on every mutation.
type Derived struct {
	Total float64
	Level int
	Rank  Rank
	Trust float64
}

// TierProgress describes where a total sits within the rank table.
type TierProgress struct {
	Rank         Rank    `json:"rank"`
	NextRank     Rank    `json:"nextRank,omitempty"`
	PointsToNext float64 `json:"pointsToNext"`
	Progress     float64 `json:"progress"`
}
