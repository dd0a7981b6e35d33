package achievement

import "serotonyl.ru/reputation-ledger/internal/features/ledger"

func counter(typ, title, description string, rarity Rarity, txType ledger.TxType, max int) Definition {
	return Definition{
		Type:        typ,
		Title:       title,
		Description: description,
		Rarity:      rarity,
		Kind:        KindCounter,
		TxType:      txType,
		MaxProgress: max,
	}
}

func milestone(typ, title, description string, rarity Rarity, total int) Definition {
	return Definition{
		Type:        typ,
		Title:       title,
		Description: description,
		Rarity:      rarity,
		Kind:        KindMilestone,
		MaxProgress: total,
	}
}

// DefaultCatalog is the fixed set of achievements.
func DefaultCatalog() []Definition {
	return []Definition{
		counter("first_match", "First Match", "Complete your first successful match",
			RarityCommon, ledger.TypeMatchSuccess, 1),
		counter("match_maker", "Match Maker", "Complete 10 successful matches",
			RarityRare, ledger.TypeMatchSuccess, 10),
		counter("first_contribution", "First Contribution", "Have a contribution recorded",
			RarityCommon, ledger.TypeContribution, 1),
		counter("prolific_contributor", "Prolific Contributor", "Have 25 contributions recorded",
			RarityEpic, ledger.TypeContribution, 25),
		counter("peer_reviewer", "Peer Reviewer", "Submit 5 peer reviews",
			RarityUncommon, ledger.TypePeerReview, 5),
		counter("community_pillar", "Community Pillar", "Receive 20 community votes or endorsements",
			RarityRare, ledger.TypeCommunityVote, 20),
		counter("trusted_staker", "Trusted Staker", "Have 3 stakes released with a reward",
			RarityEpic, ledger.TypeStakeReward, 3),
		milestone("rising_expert", "Rising Expert", "Reach a total score of 500", RarityRare, 500),
		milestone("visionary", "Visionary", "Reach a total score of 5000", RarityLegendary, 5000),
	}
}
