// Package analytics builds periodic AnalyticsMetric snapshots from the
// Store and exports a live view of the same numbers as Prometheus gauges
// via the promauto registration pattern.
package analytics

import (
	"time"

	"github.com/relaysched/orchestrator/internal/store"
)

// Snapshot builds one AnalyticsMetric from doc, per spec §3. completions
// is the slice of tasks that finished within the analytics window, used
// for average completion time and throughput.
func Snapshot(doc *store.Document, completions []*store.Task, windowStart, now time.Time) store.AnalyticsMetric {
	m := store.AnalyticsMetric{
		Timestamp:            now,
		AgentUtilization:     make(map[string]float64),
		TaskTypeDistribution: make(map[string]int),
	}

	for _, t := range doc.Tasks {
		switch t.Status {
		case store.StatusQueued, store.StatusBlocked:
			m.QueuedCount++
		case store.StatusInProgress, store.StatusAssigned:
			m.InProgressCount++
		}
		m.TaskTypeDistribution[t.Type]++
	}
	m.CompletedCount = len(doc.Completed)
	m.FailedCount = len(doc.Failed)

	for name, agent := range doc.Agents {
		load := 0
		for _, t := range doc.Tasks {
			if t.AssignedAgent == name && (t.Status == store.StatusAssigned || t.Status == store.StatusInProgress) {
				load++
			}
		}
		_ = agent
		m.AgentUtilization[name] = float64(load)
	}

	var totalTime float64
	completedInWindow := 0
	for _, t := range completions {
		if t.CompletedAt.Before(windowStart) {
			continue
		}
		if !t.StartedAt.IsZero() {
			totalTime += t.CompletedAt.Sub(t.StartedAt).Seconds()
		}
		completedInWindow++
	}
	if completedInWindow > 0 {
		m.AverageCompletionTime = totalTime / float64(completedInWindow)
	}

	windowHours := now.Sub(windowStart).Hours()
	if windowHours > 0 {
		m.ThroughputPerHour = float64(completedInWindow) / windowHours
	}

	total := completedInWindow
	failedInWindow := 0
	for _, t := range doc.Failed {
		if !t.FailedAt.Before(windowStart) {
			failedInWindow++
			total++
		}
	}
	if total > 0 {
		m.FailureRate = float64(failedInWindow) / float64(total)
	}

	return m
}
