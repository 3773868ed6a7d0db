// Package supervisor composes the Store, Transport, Queue Manager,
// Scheduler, and Health & Resource Monitor into the periodic tick
// described by spec §4.6.
package supervisor

import (
	"time"

	"github.com/relaysched/orchestrator/internal/health"
	"github.com/relaysched/orchestrator/internal/store"
)

// StatusReport is the machine-readable snapshot the `status` CLI
// subcommand prints and the websocket hub broadcasts every
// StatusReportInterval.
type StatusReport struct {
	Timestamp       time.Time                  `json:"timestamp"`
	QueuedCount     int                         `json:"queued_count"`
	BlockedCount    int                         `json:"blocked_count"`
	InProgressCount int                         `json:"in_progress_count"`
	CompletedCount  int                         `json:"completed_count"`
	FailedCount     int                         `json:"failed_count"`
	ActiveBatches   int                         `json:"active_batches"`
	Agents          map[string]store.AgentRecord `json:"agents"`
	ThrottleLevel   health.ThrottleLevel        `json:"throttle_level"`
	RuntimeLimits   health.RuntimeLimits        `json:"runtime_limits"`
}

// BuildStatusReport assembles a StatusReport from the current document and
// the most recent runtime limits computed by the resource monitor.
func BuildStatusReport(doc *store.Document, limits health.RuntimeLimits, now time.Time) StatusReport {
	r := StatusReport{
		Timestamp:     now,
		Agents:        make(map[string]store.AgentRecord, len(doc.Agents)),
		ThrottleLevel: limits.Level,
		RuntimeLimits: limits,
	}
	for _, t := range doc.Tasks {
		switch t.Status {
		case store.StatusQueued:
			r.QueuedCount++
		case store.StatusBlocked:
			r.BlockedCount++
		case store.StatusAssigned, store.StatusInProgress:
			r.InProgressCount++
		}
	}
	r.CompletedCount = len(doc.Completed)
	r.FailedCount = len(doc.Failed)
	for _, b := range doc.Batches {
		if b.Status == store.BatchActive || b.Status == store.BatchAssigned {
			r.ActiveBatches++
		}
	}
	for name, a := range doc.Agents {
		r.Agents[name] = *a
	}
	return r
}
