// Package metrics exposes the Prometheus collectors of the ledger.
// A nil *Metrics is valid and records nothing, which keeps tests free of
// global registry state.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups every collector the services report to.
type Metrics struct {
	TransactionsAppended *prometheus.CounterVec
	AppendConflicts      prometheus.Counter
	AppendDuration       prometheus.Histogram
	AchievementsUnlocked *prometheus.CounterVec
	StakesCreated        *prometheus.CounterVec
	StakesSettled        *prometheus.CounterVec
	AnchorResults        *prometheus.CounterVec
	OutboxPublished      prometheus.Counter
	JobRuns              *prometheus.CounterVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TransactionsAppended: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_transactions_appended_total",
			Help: "Transactions committed to the ledger, by type",
		}, []string{"type"}),
		AppendConflicts: f.NewCounter(prometheus.CounterOpts{
			Name: "ledger_append_version_conflicts_total",
			Help: "Score version conflicts that forced an append retry",
		}),
		AppendDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ledger_append_duration_seconds",
			Help:    "Duration of AppendTransaction including retries",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		AchievementsUnlocked: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_achievements_unlocked_total",
			Help: "Achievements unlocked, by achievement type",
		}, []string{"achievement"}),
		StakesCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_stakes_created_total",
			Help: "Stakes opened, by stake type",
		}, []string{"stake_type"}),
		StakesSettled: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_stakes_settled_total",
			Help: "Stakes moved to a terminal status",
		}, []string{"status"}),
		AnchorResults: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_anchor_results_total",
			Help: "Anchor publish attempts, by result",
		}, []string{"result"}),
		OutboxPublished: f.NewCounter(prometheus.CounterOpts{
			Name: "ledger_outbox_published_total",
			Help: "Committed transaction events relayed to the stream",
		}),
		JobRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_job_runs_total",
			Help: "Scheduled job executions, by job and result",
		}, []string{"job", "result"}),
	}
}

func (m *Metrics) ObserveAppend(txType string, start time.Time) {
	if m == nil {
		return
	}
	m.TransactionsAppended.WithLabelValues(txType).Inc()
	m.AppendDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncAppendConflict() {
	if m == nil {
		return
	}
	m.AppendConflicts.Inc()
}

func (m *Metrics) IncAchievementUnlocked(achievement string) {
	if m == nil {
		return
	}
	m.AchievementsUnlocked.WithLabelValues(achievement).Inc()
}

func (m *Metrics) IncStakeCreated(stakeType string) {
	if m == nil {
		return
	}
	m.StakesCreated.WithLabelValues(stakeType).Inc()
}

func (m *Metrics) IncStakeSettled(status string) {
	if m == nil {
		return
	}
	m.StakesSettled.WithLabelValues(status).Inc()
}

// IncAnchor records one anchor attempt; result is "confirmed" or "failed".
func (m *Metrics) IncAnchor(result string) {
	if m == nil {
		return
	}
	m.AnchorResults.WithLabelValues(result).Inc()
}

func (m *Metrics) AddOutboxPublished(n int) {
	if m == nil {
		return
	}
	m.OutboxPublished.Add(float64(n))
}

func (m *Metrics) IncJobRun(job string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.JobRuns.WithLabelValues(job, result).Inc()
}
