package postgres

// Migrations is the ledger schema in apply order. Versions are never
// renumbered; new steps go at the end.
var Migrations = []Migration{
	{1, migration001Scores},
	{2, migration002Transactions},
	{3, migration003Outbox},
	{4, migration004Achievements},
	{5, migration005Endorsements},
	{6, migration006Stakes},
}

var migration001Scores = `
CREATE TABLE IF NOT EXISTS reputation_scores (
    user_id BIGINT PRIMARY KEY,
    total_score DOUBLE PRECISION NOT NULL DEFAULT 0,
    level INTEGER NOT NULL DEFAULT 1,
    rank VARCHAR(32) NOT NULL DEFAULT 'newcomer',
    matching_score DOUBLE PRECISION NOT NULL DEFAULT 0,
    contribution_score DOUBLE PRECISION NOT NULL DEFAULT 0,
    collaboration_score DOUBLE PRECISION NOT NULL DEFAULT 0,
    community_score DOUBLE PRECISION NOT NULL DEFAULT 0,
    verification_level INTEGER NOT NULL DEFAULT 0,
    trust_score DOUBLE PRECISION NOT NULL DEFAULT 0.5,
    total_transactions INTEGER NOT NULL DEFAULT 0,
    successful_matches INTEGER NOT NULL DEFAULT 0,
    failed_matches INTEGER NOT NULL DEFAULT 0,
    penalty_count INTEGER NOT NULL DEFAULT 0,
    wallet_address VARCHAR(128),
    version BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_reputation_scores_leaderboard
    ON reputation_scores(total_score DESC, user_id ASC);
`

var migration002Transactions = `
CREATE TABLE IF NOT EXISTS reputation_transactions (
    id UUID PRIMARY KEY,
    user_id BIGINT NOT NULL REFERENCES reputation_scores(user_id),
    type VARCHAR(32) NOT NULL,
    category VARCHAR(32) NOT NULL,
    amount DOUBLE PRECISION NOT NULL,
    reason TEXT NOT NULL DEFAULT '',
    ref VARCHAR(255),
    status VARCHAR(16) NOT NULL DEFAULT 'pending',
    tx_hash VARCHAR(128),
    created_at TIMESTAMPTZ NOT NULL,
    confirmed_at TIMESTAMPTZ,
    CONSTRAINT reputation_transactions_ref_key UNIQUE (ref)
);
CREATE INDEX IF NOT EXISTS idx_reputation_transactions_user_created
    ON reputation_transactions(user_id, created_at DESC, id DESC);
CREATE INDEX IF NOT EXISTS idx_reputation_transactions_pending
    ON reputation_transactions(created_at, id) WHERE status = 'pending';
`

var migration003Outbox = `
CREATE TABLE IF NOT EXISTS transaction_outbox (
    id BIGSERIAL PRIMARY KEY,
    transaction_id UUID NOT NULL REFERENCES reputation_transactions(id),
    user_id BIGINT NOT NULL,
    payload JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    published_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_transaction_outbox_unpublished
    ON transaction_outbox(id) WHERE published_at IS NULL;
`

var migration004Achievements = `
CREATE TABLE IF NOT EXISTS achievement_progress (
    user_id BIGINT NOT NULL REFERENCES reputation_scores(user_id),
    type VARCHAR(64) NOT NULL,
    current_progress INTEGER NOT NULL DEFAULT 0,
    max_progress INTEGER NOT NULL,
    unlocked_at TIMESTAMPTZ,
    rarity VARCHAR(16) NOT NULL,
    token_id VARCHAR(128),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (user_id, type)
);
CREATE TABLE IF NOT EXISTS achievement_marks (
    transaction_id UUID NOT NULL,
    achievement_type VARCHAR(64) NOT NULL,
    user_id BIGINT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (transaction_id, achievement_type)
);
`

var migration005Endorsements = `
CREATE TABLE IF NOT EXISTS endorsements (
    id UUID PRIMARY KEY,
    endorser_id BIGINT NOT NULL REFERENCES reputation_scores(user_id),
    endorsed_id BIGINT NOT NULL REFERENCES reputation_scores(user_id),
    skill VARCHAR(64) NOT NULL,
    level SMALLINT NOT NULL CHECK (level BETWEEN 1 AND 5),
    comment TEXT,
    weight DOUBLE PRECISION NOT NULL,
    amount DOUBLE PRECISION NOT NULL,
    transaction_id UUID REFERENCES reputation_transactions(id),
    created_at TIMESTAMPTZ NOT NULL,
    CONSTRAINT endorsements_no_self CHECK (endorser_id <> endorsed_id),
    CONSTRAINT endorsements_once_per_skill UNIQUE (endorser_id, endorsed_id, skill)
);
CREATE INDEX IF NOT EXISTS idx_endorsements_endorsed ON endorsements(endorsed_id, skill);
CREATE INDEX IF NOT EXISTS idx_endorsements_endorser ON endorsements(endorser_id);
CREATE INDEX IF NOT EXISTS idx_endorsements_uncredited
    ON endorsements(created_at) WHERE amount > 0 AND transaction_id IS NULL;
`

var migration006Stakes = `
CREATE TABLE IF NOT EXISTS stakes (
    id UUID PRIMARY KEY,
    user_id BIGINT NOT NULL REFERENCES reputation_scores(user_id),
    stake_type VARCHAR(32) NOT NULL,
    amount DOUBLE PRECISION NOT NULL CHECK (amount > 0),
    locked_until TIMESTAMPTZ NOT NULL,
    status VARCHAR(16) NOT NULL DEFAULT 'active',
    settlement_tx_id UUID REFERENCES reputation_transactions(id),
    created_at TIMESTAMPTZ NOT NULL,
    settled_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_stakes_user ON stakes(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_stakes_matured ON stakes(locked_until) WHERE status = 'active';
`
