// Package jobs runs the ledger's background work on cron schedules: the
// stake sweep, the anchor worker, the outbox relay and endorsement repair.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/reputation-ledger/internal/metrics"
)

// Job is one scheduled unit of work. Run must be idempotent: ticks may
// overlap across instances and a crashed run is simply repeated.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) error
}

// Locker grants a short exclusive lease per job tick across instances.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

type Scheduler struct {
	cron     *cron.Cron
	location *time.Location
	locker   Locker
	leaseTTL time.Duration
	metrics  *metrics.Metrics
	jobs     []Job
}

// NewScheduler creates a scheduler in the given time zone. locker may be
// nil, in which case every instance runs every tick.
func NewScheduler(timezone string, locker Locker, leaseTTL time.Duration, m *metrics.Metrics) *Scheduler {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		log.WithError(err).WithField("timezone", timezone).Warn("Unknown timezone, using UTC")
		loc = time.UTC
	}

	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	return &Scheduler{
		cron:     c,
		location: loc,
		locker:   locker,
		leaseTTL: leaseTTL,
		metrics:  m,
	}
}

// Add registers a job. It fails on an unparsable schedule.
func (s *Scheduler) Add(ctx context.Context, job Job) error {
	if _, err := s.cron.AddFunc(job.Schedule, func() { s.run(ctx, job) }); err != nil {
		return fmt.Errorf("schedule %s (%q): %w", job.Name, job.Schedule, err)
	}
	s.jobs = append(s.jobs, job)
	return nil
}

func (s *Scheduler) run(ctx context.Context, job Job) {
	if ctx.Err() != nil {
		return
	}
	if s.locker != nil {
		release, ok, err := s.locker.Acquire(ctx, "ledger:job:"+job.Name, s.leaseTTL)
		if err != nil {
			// A broken lock store must not stop the jobs; they are idempotent.
			log.WithError(err).WithField("job", job.Name).Warn("[CRON] Lease unavailable, running anyway")
		} else if !ok {
			log.WithField("job", job.Name).Debug("[CRON] Another instance holds the lease")
			return
		} else {
			defer release()
		}
	}

	start := time.Now()
	err := job.Run(ctx)
	s.metrics.IncJobRun(job.Name, err)

	entry := log.WithFields(log.Fields{
		"job":      job.Name,
		"duration": time.Since(start).Round(time.Millisecond),
	})
	if err != nil {
		entry.WithError(err).Error("[CRON] Job failed")
		return
	}
	entry.Debug("[CRON] Job finished")
}

// Start launches the cron loop.
func (s *Scheduler) Start() {
	s.cron.Start()
	names := make([]string, 0, len(s.jobs))
	for _, j := range s.jobs {
		names = append(names, j.Name)
	}
	log.WithFields(log.Fields{
		"jobs":     names,
		"timezone": s.location.String(),
	}).Info("Scheduler started")
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Scheduler stopped")
}
