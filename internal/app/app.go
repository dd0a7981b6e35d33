// Package app wires every component of the ledger together.
// app.go is the assembly point: it opens the stores, builds the services and
// handlers, connects the transaction stream and schedules background jobs.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"serotonyl.ru/reputation-ledger/internal/anchor"
	"serotonyl.ru/reputation-ledger/internal/bot"
	"serotonyl.ru/reputation-ledger/internal/config"
	"serotonyl.ru/reputation-ledger/internal/db/postgres"
	"serotonyl.ru/reputation-ledger/internal/db/redis"
	"serotonyl.ru/reputation-ledger/internal/features/achievement"
	"serotonyl.ru/reputation-ledger/internal/features/endorsement"
	"serotonyl.ru/reputation-ledger/internal/features/leaderboard"
	"serotonyl.ru/reputation-ledger/internal/features/ledger"
	"serotonyl.ru/reputation-ledger/internal/features/staking"
	"serotonyl.ru/reputation-ledger/internal/jobs"
	"serotonyl.ru/reputation-ledger/internal/metrics"
	"serotonyl.ru/reputation-ledger/internal/server"
	"serotonyl.ru/reputation-ledger/internal/stream"
)

// App holds the running components.
type App struct {
	Server       *server.Server
	Scheduler    *jobs.Scheduler
	Achievements *achievement.Service
	DB           *pgxpool.Pool
	Redis        *goredis.Client

	producer *stream.KafkaProducer
	consumer *stream.KafkaConsumer
}

type stores struct {
	ledger       ledger.Store
	achievements achievement.Store
	endorsements endorsement.Store
	stakes       staking.Store
}

// New builds the application. Initialization order matters: later steps
// depend on earlier ones.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{}

	// === 1. Storage ===
	st, err := a.openStores(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	// === 2. Redis ===
	a.Redis, err = redis.New(ctx, cfg.RedisURL)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}

	// === 3. Metrics ===
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// === 4. Services ===
	ledgerService := ledger.NewService(st.ledger, cfg.ScoringPolicy(), ledger.Options{
		MaxRetries:    cfg.LedgerMaxRetries,
		AppendTimeout: cfg.LedgerAppendTimeout,
		Metrics:       m,
	})

	notifier, err := bot.NewNotifier(cfg.TelegramBotToken)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("telegram notifier: %w", err)
	}
	var achievementNotifier achievement.Notifier
	if notifier != nil {
		achievementNotifier = notifier
	}
	var minter achievement.Minter
	if cfg.AchievementMintTokens {
		minter = achievement.KeccakMinter{}
	}
	a.Achievements = achievement.NewService(st.achievements, ledgerService, achievement.DefaultCatalog(), achievementNotifier, minter, m)

	endorsementService := endorsement.NewService(st.endorsements, ledgerService)
	stakingService := staking.NewService(st.stakes, ledgerService, m)
	leaderboardService := leaderboard.NewService(ledgerService)

	// === 5. Transaction stream ===
	var publisher stream.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		a.producer, err = stream.NewKafkaProducer(cfg.KafkaBrokers)
		if err != nil {
			a.Close()
			return nil, err
		}
		publisher = a.producer

		a.consumer, err = stream.NewKafkaConsumer(
			cfg.KafkaBrokers, cfg.KafkaGroupID,
			[]string{cfg.KafkaEventsTopic, cfg.KafkaTransactionsTopic},
			dispatch(cfg, ledgerService, a.Achievements),
		)
		if err != nil {
			a.Close()
			return nil, err
		}
		log.WithField("brokers", cfg.KafkaBrokers).Info("Transaction stream on Kafka")
	} else {
		bus := stream.NewBus()
		bus.Subscribe(cfg.KafkaTransactionsTopic, a.Achievements.HandleMessage)
		publisher = bus
		log.Info("Transaction stream in process")
	}
	relay := stream.NewRelay(st.ledger, publisher, cfg.KafkaTransactionsTopic, cfg.RelayBatchSize, m)

	// === 6. Scheduled jobs ===
	var locker jobs.Locker
	if a.Redis != nil {
		locker = jobs.NewRedisLocker(a.Redis)
	}
	a.Scheduler = jobs.NewScheduler(cfg.AppTimezone, locker, cfg.JobLeaseTTL, m)

	schedule := []jobs.Job{
		{
			Name:     "outbox_relay",
			Schedule: cfg.RelaySchedule,
			Run: func(ctx context.Context) error {
				_, err := relay.RunOnce(ctx)
				return err
			},
		},
		{
			Name:     "stake_sweep",
			Schedule: cfg.StakeSweepSchedule,
			Run: func(ctx context.Context) error {
				_, err := stakingService.SweepMatured(ctx, time.Now().UTC(), cfg.StakeSweepBatch)
				return err
			},
		},
		{
			Name:     "endorsement_repair",
			Schedule: cfg.EndorsementRepairSchedule,
			Run: func(ctx context.Context) error {
				_, err := endorsementService.RetryUncredited(ctx, cfg.EndorsementRepairBatch)
				return err
			},
		},
	}
	if cfg.AnchorEnabled {
		worker := anchor.NewWorker(st.ledger, anchorPublisher(cfg), cfg.AnchorBatchSize, m)
		schedule = append(schedule, jobs.Job{
			Name:     "anchor",
			Schedule: cfg.AnchorSchedule,
			Run: func(ctx context.Context) error {
				_, err := worker.RunOnce(ctx)
				return err
			},
		})
	}
	for _, job := range schedule {
		if err := a.Scheduler.Add(ctx, job); err != nil {
			a.Close()
			return nil, err
		}
	}

	// === 7. HTTP server ===
	checks := map[string]server.Pinger{}
	if a.DB != nil {
		checks["postgres"] = a.DB
	}
	if a.Redis != nil {
		checks["redis"] = server.PingFunc(func(ctx context.Context) error {
			return a.Redis.Ping(ctx).Err()
		})
	}
	a.Server = server.New(server.Options{
		Addr:         cfg.HTTPAddr,
		ReadTimeout:  cfg.HTTPReadTimeout,
		RateLimit:    cfg.RateLimitRequests,
		RateWindow:   cfg.RateLimitWindow,
		Gatherer:     reg,
		HealthChecks: checks,
	},
		ledger.NewHandler(ledgerService),
		achievement.NewHandler(a.Achievements),
		endorsement.NewHandler(endorsementService),
		staking.NewHandler(stakingService),
		leaderboard.NewHandler(leaderboardService),
	)

	return a, nil
}

// openStores picks the storage driver. The postgres driver also applies
// pending migrations.
func (a *App) openStores(ctx context.Context, cfg *config.Config) (stores, error) {
	if cfg.StorageDriver == "memory" {
		log.Warn("Using in-memory storage, state is lost on restart")
		return stores{
			ledger:       ledger.NewMemoryStore(),
			achievements: achievement.NewMemoryStore(),
			endorsements: endorsement.NewMemoryStore(),
			stakes:       staking.NewMemoryStore(),
		}, nil
	}

	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return stores{}, fmt.Errorf("connect to database: %w", err)
	}
	a.DB = pool

	if err := postgres.RunMigrations(ctx, pool, postgres.Migrations); err != nil {
		return stores{}, fmt.Errorf("migrations: %w", err)
	}

	return stores{
		ledger:       ledger.NewRepository(pool),
		achievements: achievement.NewRepository(pool),
		endorsements: endorsement.NewRepository(pool),
		stakes:       staking.NewRepository(pool),
	}, nil
}

func anchorPublisher(cfg *config.Config) anchor.Publisher {
	if cfg.AnchorPublisher == "http" {
		return anchor.NewHTTPPublisher(cfg.AnchorEndpoint, cfg.AnchorHTTPTimeout)
	}
	return anchor.LocalPublisher{}
}

// dispatch routes consumed records: inbound domain events go to the ledger,
// committed transactions to the achievement engine.
func dispatch(cfg *config.Config, l *ledger.Service, achievements *achievement.Service) stream.Handler {
	return func(ctx context.Context, msg stream.Message) error {
		switch msg.Topic {
		case cfg.KafkaTransactionsTopic:
			return achievements.HandleMessage(ctx, msg)
		case cfg.KafkaEventsTopic:
			var env ledger.Envelope
			if err := json.Unmarshal(msg.Value, &env); err != nil {
				return fmt.Errorf("decode envelope: %w", err)
			}
			return l.HandleEnvelope(ctx, env)
		default:
			return fmt.Errorf("unexpected topic %q", msg.Topic)
		}
	}
}

// Run serves HTTP, consumes the stream and runs scheduled jobs until ctx is
// cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	a.Scheduler.Start()
	defer a.Scheduler.Stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.Server.Run(ctx)
	})
	if a.consumer != nil {
		g.Go(func() error {
			return a.consumer.Run(ctx)
		})
	}
	return g.Wait()
}

// Close releases connections once Run has returned. Pending unlock
// notifications are allowed to finish first.
func (a *App) Close() {
	if a.Achievements != nil {
		a.Achievements.Wait()
	}
	if a.producer != nil {
		a.producer.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			log.WithError(err).Warn("Closing Redis failed")
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
