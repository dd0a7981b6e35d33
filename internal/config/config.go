// Package config loads the ledger configuration from environment variables.
// envconfig maps variables onto the Config fields; list-valued settings are
// read raw and parsed by Load.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"serotonyl.ru/reputation-ledger/internal/features/scoring"
)

// Config holds every setting of the service.
type Config struct {
	// --- Database ---
	StorageDriver string `envconfig:"STORAGE_DRIVER" default:"postgres"`
	DBHost        string `envconfig:"DB_HOST" default:"postgres"`
	DBPort        int    `envconfig:"DB_PORT" default:"5432"`
	DBUser        string `envconfig:"DB_USER" default:"ledger"`
	DBPassword    string `envconfig:"DB_PASSWORD"`
	DBName        string `envconfig:"DB_NAME" default:"reputation_ledger"`
	DBSSLMode     string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns    int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns    int32  `envconfig:"DB_MIN_CONNS" default:"5"`

	// --- Application ---
	AppEnv       string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel  string `envconfig:"APP_LOG_LEVEL" default:"debug"`
	AppLogFormat string `envconfig:"APP_LOG_FORMAT" default:"text"`
	AppTimezone  string `envconfig:"APP_TIMEZONE" default:"UTC"`

	// --- HTTP ---
	HTTPAddr          string        `envconfig:"HTTP_ADDR" default:":8080"`
	HTTPReadTimeout   time.Duration `envconfig:"HTTP_READ_HEADER_TIMEOUT" default:"5s"`
	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"60"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`

	// --- Ledger ---
	LedgerAppendTimeout time.Duration `envconfig:"LEDGER_APPEND_TIMEOUT" default:"3s"`
	LedgerMaxRetries    int           `envconfig:"LEDGER_MAX_RETRIES" default:"5"`

	// --- Scoring policy ---
	ScoreWeightsRaw      string    `envconfig:"SCORE_WEIGHTS" default:"0.4,0.3,0.2,0.1"`
	ScoreWeights         []float64 `envconfig:"-"`
	RankThresholdsRaw    string    `envconfig:"RANK_THRESHOLDS" default:"0,100,500,1500,5000"`
	RankThresholds       []float64 `envconfig:"-"`
	RankMultipliersRaw   string    `envconfig:"RANK_MULTIPLIERS" default:"0.5,1,1.5,2,3"`
	RankMultipliers      []float64 `envconfig:"-"`
	LevelStep            float64   `envconfig:"LEVEL_STEP" default:"100"`
	TrustBase            float64   `envconfig:"TRUST_BASE" default:"0.5"`
	TrustSuccessBonus    float64   `envconfig:"TRUST_SUCCESS_BONUS" default:"0.5"`
	TrustPenaltyDecay    float64   `envconfig:"TRUST_PENALTY_DECAY" default:"0.1"`
	MatchSuccessPoints   float64   `envconfig:"MATCH_SUCCESS_POINTS" default:"50"`
	MatchFailurePoints   float64   `envconfig:"MATCH_FAILURE_POINTS" default:"10"`
	GovernanceVotePoints float64   `envconfig:"GOVERNANCE_VOTE_POINTS" default:"5"`
	EndorsementSkillCap  float64   `envconfig:"ENDORSEMENT_SKILL_CAP" default:"50"`
	InactivityDecayRate  float64   `envconfig:"INACTIVITY_DECAY_RATE" default:"0"`

	// Decay starts once an account has been idle longer than this.
	InactivityGrace time.Duration `envconfig:"INACTIVITY_GRACE" default:"720h"`

	// --- Staking ---
	StakeCapRatio      float64 `envconfig:"STAKE_CAP_RATIO" default:"0.2"`
	StakeRewardRatio   float64 `envconfig:"STAKE_REWARD_RATIO" default:"0.1"`
	StakeSweepSchedule string  `envconfig:"STAKE_SWEEP_SCHEDULE" default:"@every 1m"`
	StakeSweepBatch    int     `envconfig:"STAKE_SWEEP_BATCH" default:"100"`

	// --- Endorsements ---
	EndorsementRepairSchedule string `envconfig:"ENDORSEMENT_REPAIR_SCHEDULE" default:"@every 5m"`
	EndorsementRepairBatch    int    `envconfig:"ENDORSEMENT_REPAIR_BATCH" default:"100"`

	// --- Anchoring ---
	AnchorEnabled     bool          `envconfig:"ANCHOR_ENABLED" default:"true"`
	AnchorPublisher   string        `envconfig:"ANCHOR_PUBLISHER" default:"local"`
	AnchorEndpoint    string        `envconfig:"ANCHOR_ENDPOINT"`
	AnchorHTTPTimeout time.Duration `envconfig:"ANCHOR_HTTP_TIMEOUT" default:"10s"`
	AnchorSchedule    string        `envconfig:"ANCHOR_SCHEDULE" default:"@every 30s"`
	AnchorBatchSize   int           `envconfig:"ANCHOR_BATCH_SIZE" default:"100"`

	// --- Transaction stream ---
	RelaySchedule          string   `envconfig:"RELAY_SCHEDULE" default:"@every 5s"`
	RelayBatchSize         int      `envconfig:"RELAY_BATCH_SIZE" default:"200"`
	KafkaBrokersRaw        string   `envconfig:"KAFKA_BROKERS"`
	KafkaBrokers           []string `envconfig:"-"`
	KafkaTransactionsTopic string   `envconfig:"KAFKA_TRANSACTIONS_TOPIC" default:"ledger.transactions"`
	KafkaEventsTopic       string   `envconfig:"KAFKA_EVENTS_TOPIC" default:"ledger.events"`
	KafkaGroupID           string   `envconfig:"KAFKA_GROUP_ID" default:"reputation-ledger"`

	// --- Redis ---
	RedisURL    string        `envconfig:"REDIS_URL"`
	JobLeaseTTL time.Duration `envconfig:"JOB_LEASE_TTL" default:"50s"`

	// --- Achievements ---
	AchievementMintTokens bool   `envconfig:"ACHIEVEMENT_MINT_TOKENS" default:"false"`
	TelegramBotToken      string `envconfig:"TELEGRAM_BOT_TOKEN"`

	// --- Tracing ---
	OTelEndpoint string `envconfig:"OTEL_ENDPOINT"`
}

// DatabaseDSN returns the PostgreSQL connection string.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// ScoringPolicy assembles the score policy from the parsed lists.
// Call it only on a Config returned by Load.
func (c *Config) ScoringPolicy() scoring.Policy {
	p := scoring.Policy{
		Weights: scoring.Weights{
			Matching:      c.ScoreWeights[0],
			Contribution:  c.ScoreWeights[1],
			Collaboration: c.ScoreWeights[2],
			Community:     c.ScoreWeights[3],
		},
		Multipliers:          make(map[scoring.Rank]float64, len(scoring.Ranks)),
		LevelStep:            c.LevelStep,
		TrustBase:            c.TrustBase,
		TrustSuccessBonus:    c.TrustSuccessBonus,
		TrustPenaltyDecay:    c.TrustPenaltyDecay,
		MatchSuccessPoints:   c.MatchSuccessPoints,
		MatchFailurePoints:   c.MatchFailurePoints,
		GovernanceVotePoints: c.GovernanceVotePoints,
		StakeCapRatio:        c.StakeCapRatio,
		StakeRewardRatio:     c.StakeRewardRatio,
		EndorsementCap:       c.EndorsementSkillCap,
		InactivityDecayRate:  c.InactivityDecayRate,
		InactivityGrace:      c.InactivityGrace,
	}
	for i, r := range scoring.Ranks {
		p.Thresholds = append(p.Thresholds, scoring.Threshold{MinScore: c.RankThresholds[i], Rank: r})
		p.Multipliers[r] = c.RankMultipliers[i]
	}
	return p
}

// Validate checks settings that envconfig cannot express.
func (c *Config) Validate() error {
	switch c.StorageDriver {
	case "postgres":
		if c.DBPassword == "" {
			return fmt.Errorf("DB_PASSWORD is required for the postgres driver")
		}
	case "memory":
	default:
		return fmt.Errorf("STORAGE_DRIVER must be postgres or memory, got %q", c.StorageDriver)
	}
	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("invalid DB_MIN_CONNS/DB_MAX_CONNS")
	}
	if len(c.ScoreWeights) != len(scoring.Categories) {
		return fmt.Errorf("SCORE_WEIGHTS needs %d values, got %d", len(scoring.Categories), len(c.ScoreWeights))
	}
	if len(c.RankThresholds) != len(scoring.Ranks) {
		return fmt.Errorf("RANK_THRESHOLDS needs %d values, got %d", len(scoring.Ranks), len(c.RankThresholds))
	}
	if len(c.RankMultipliers) != len(scoring.Ranks) {
		return fmt.Errorf("RANK_MULTIPLIERS needs %d values, got %d", len(scoring.Ranks), len(c.RankMultipliers))
	}
	if c.LedgerMaxRetries <= 0 {
		return fmt.Errorf("LEDGER_MAX_RETRIES must be > 0")
	}
	if c.LedgerAppendTimeout <= 0 {
		return fmt.Errorf("LEDGER_APPEND_TIMEOUT must be > 0")
	}
	if c.RateLimitRequests <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be > 0")
	}
	if c.AnchorEnabled {
		switch c.AnchorPublisher {
		case "local":
		case "http":
			if c.AnchorEndpoint == "" {
				return fmt.Errorf("ANCHOR_ENDPOINT is required for the http anchor publisher")
			}
		default:
			return fmt.Errorf("ANCHOR_PUBLISHER must be local or http, got %q", c.AnchorPublisher)
		}
	}
	if c.AnchorBatchSize <= 0 || c.RelayBatchSize <= 0 || c.StakeSweepBatch <= 0 || c.EndorsementRepairBatch <= 0 {
		return fmt.Errorf("batch sizes must be > 0")
	}
	if err := c.ScoringPolicy().Validate(); err != nil {
		return fmt.Errorf("scoring policy: %w", err)
	}
	return nil
}

// Load reads the environment and returns a validated Config.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	var err error
	if cfg.ScoreWeights, err = parseFloatCSV(cfg.ScoreWeightsRaw); err != nil {
		return nil, fmt.Errorf("SCORE_WEIGHTS parse: %w", err)
	}
	if cfg.RankThresholds, err = parseFloatCSV(cfg.RankThresholdsRaw); err != nil {
		return nil, fmt.Errorf("RANK_THRESHOLDS parse: %w", err)
	}
	if cfg.RankMultipliers, err = parseFloatCSV(cfg.RankMultipliersRaw); err != nil {
		return nil, fmt.Errorf("RANK_MULTIPLIERS parse: %w", err)
	}
	cfg.KafkaBrokers = parseStringCSV(cfg.KafkaBrokersRaw)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parseFloatCSV(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func parseStringCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
