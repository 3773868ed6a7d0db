package analytics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/relaysched/orchestrator/internal/store"
)

// Prometheus export of the same numbers Snapshot computes, one gauge/
// counter family per concern.
var (
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "orchestrator_queue_depth",
		Help: "Current number of tasks by status",
	}, []string{"status"})

	AgentUtilization = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "orchestrator_agent_load",
		Help: "Current in-flight task count per agent",
	}, []string{"agent"})

	TaskTypeDistribution = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "orchestrator_task_type_count",
		Help: "Current task count by type",
	}, []string{"type"})

	AverageCompletionTime = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "orchestrator_avg_completion_seconds",
		Help: "Rolling average task completion time in seconds",
	})

	ThroughputPerHour = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "orchestrator_throughput_per_hour",
		Help: "Completed tasks per hour over the current analytics window",
	})

	FailureRate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "orchestrator_failure_rate",
		Help: "Failure rate over the current analytics window",
	})

	ThrottleLevelGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "orchestrator_throttle_level",
		Help: "Current resource throttle level (0-3)",
	})

	DispatchDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orchestrator_dispatch_decisions_total",
		Help: "Total dispatch decisions by outcome",
	}, []string{"outcome"})
)

// Export publishes m's queue-status counts and agent utilization to the
// registered Prometheus collectors; doc is not read.
func Export(doc *store.Document, m store.AnalyticsMetric) {
	QueueDepth.WithLabelValues("queued").Set(float64(m.QueuedCount))
	QueueDepth.WithLabelValues("in_progress").Set(float64(m.InProgressCount))
	QueueDepth.WithLabelValues("completed").Set(float64(m.CompletedCount))
	QueueDepth.WithLabelValues("failed").Set(float64(m.FailedCount))

	for agent, util := range m.AgentUtilization {
		AgentUtilization.WithLabelValues(agent).Set(util)
	}
	for taskType, count := range m.TaskTypeDistribution {
		TaskTypeDistribution.WithLabelValues(taskType).Set(float64(count))
	}
	AverageCompletionTime.Set(m.AverageCompletionTime)
	ThroughputPerHour.Set(m.ThroughputPerHour)
	FailureRate.Set(m.FailureRate)
}
