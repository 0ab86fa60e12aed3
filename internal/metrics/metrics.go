// Package metrics provides the centralized Prometheus metrics registry for
// the backtest orchestration service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Global registry instance
var (
	registry *prometheus.Registry
	once     sync.Once
)

// Counter metrics
var (
	RunsCreatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "backtest_pilot",
		Name:      "runs_created_total",
		Help:      "Total number of backtest runs created",
	}, []string{"type", "orchestrated"})
	RunsCompletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "backtest_pilot",
		Name:      "runs_completed_total",
		Help:      "Total number of backtest runs completed",
	})
	RunsFailedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "backtest_pilot",
		Name:      "runs_failed_total",
		Help:      "Total number of backtest runs failed",
	})
	RunsResumedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "backtest_pilot",
		Name:      "runs_resumed_total",
		Help:      "Total number of run resumes, split by checkpoint reuse",
	}, []string{"checkpoint"})
	WatchdogKillsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "backtest_pilot",
		Name:      "watchdog_kills_total",
		Help:      "Total number of stale runs force-failed by the watchdog",
	}, []string{"type"})
	PromotionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "backtest_pilot",
		Name:      "promotions_total",
		Help:      "Total number of strategy promotions into risk pools",
	}, []string{"level"})
	RotationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "backtest_pilot",
		Name:      "rotations_total",
		Help:      "Total number of pool rotations (worst member demoted)",
	})
	StatusPublishFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "backtest_pilot",
		Name:      "status_publish_failures_total",
		Help:      "Total number of best-effort status publication failures",
	})
)

// Gauge metrics
var (
	QueueActiveJobs = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "backtest_pilot",
		Name:      "queue_active_jobs",
		Help:      "Jobs currently executing per queue",
	}, []string{"queue"})
	QueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "backtest_pilot",
		Name:      "queue_depth",
		Help:      "Jobs waiting for pickup per queue",
	}, []string{"queue"})
	LivePoolMembers = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "backtest_pilot",
		Name:      "live_pool_members",
		Help:      "Live strategies per risk pool level",
	}, []string{"level"})
)

// Histogram metrics
var (
	OrchestrationCycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "backtest_pilot",
		Name:      "orchestration_cycle_duration_seconds",
		Help:      "Duration of one full orchestration cycle in seconds",
		Buckets:   []float64{1, 5, 10, 30, 60, 300, 600},
	})
	WatchdogSweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "backtest_pilot",
		Name:      "watchdog_sweep_duration_seconds",
		Help:      "Duration of one watchdog sweep in seconds",
		Buckets:   prometheus.DefBuckets,
	})
)

// InitRegistry initializes the global Prometheus registry.
func InitRegistry() *prometheus.Registry {
	once.Do(func() {
		registry = prometheus.NewRegistry()

		registry.MustRegister(RunsCreatedTotal)
		registry.MustRegister(RunsCompletedTotal)
		registry.MustRegister(RunsFailedTotal)
		registry.MustRegister(RunsResumedTotal)
		registry.MustRegister(WatchdogKillsTotal)
		registry.MustRegister(PromotionsTotal)
		registry.MustRegister(RotationsTotal)
		registry.MustRegister(StatusPublishFailuresTotal)

		registry.MustRegister(QueueActiveJobs)
		registry.MustRegister(QueueDepth)
		registry.MustRegister(LivePoolMembers)

		registry.MustRegister(OrchestrationCycleDuration)
		registry.MustRegister(WatchdogSweepDuration)
	})
	return registry
}

// GetRegistry returns the global Prometheus registry.
func GetRegistry() *prometheus.Registry {
	if registry == nil {
		return InitRegistry()
	}
	return registry
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(GetRegistry(), promhttp.HandlerOpts{})
}

// RecordRunCreated increments the run creation counter.
func RecordRunCreated(runType string, orchestrated bool) {
	label := "false"
	if orchestrated {
		label = "true"
	}
	RunsCreatedTotal.WithLabelValues(runType, label).Inc()
}

// RecordRunResumed increments the resume counter, labeled by whether the
// existing checkpoint was kept or discarded.
func RecordRunResumed(checkpointKept bool) {
	label := "reset"
	if checkpointKept {
		label = "kept"
	}
	RunsResumedTotal.WithLabelValues(label).Inc()
}

// RecordWatchdogKill increments the watchdog force-fail counter.
func RecordWatchdogKill(runType string) {
	WatchdogKillsTotal.WithLabelValues(runType).Inc()
}

// RecordPromotion increments the promotion counter for a pool level.
func RecordPromotion(level int) {
	PromotionsTotal.WithLabelValues(levelLabel(level)).Inc()
}

// UpdateQueueStats updates the per-queue gauges.
func UpdateQueueStats(queue string, active, depth int) {
	QueueActiveJobs.WithLabelValues(queue).Set(float64(active))
	QueueDepth.WithLabelValues(queue).Set(float64(depth))
}

// UpdatePoolMembers updates the live member gauge for a pool level.
func UpdatePoolMembers(level, members int) {
	LivePoolMembers.WithLabelValues(levelLabel(level)).Set(float64(members))
}

func levelLabel(level int) string {
	return strconv.Itoa(level)
}
