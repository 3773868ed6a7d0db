package scheduler

import (
	"math/rand"
	"time"

	"github.com/relaysched/orchestrator/internal/config"
	"github.com/relaysched/orchestrator/internal/store"
)

// ApplyStarted handles an agent's "started" event: in_progress, idempotent
// against re-delivery (a task already in_progress is left untouched).
func ApplyStarted(s *store.FileStore, taskID string, now time.Time) error {
	doc := s.Snapshot()
	t, ok := doc.Tasks[taskID]
	if !ok || t.Status == store.StatusInProgress {
		return nil
	}
	return s.UpdateTaskStatus(taskID, store.StatusInProgress, func(task *store.Task) {
		task.StartedAt = now
	})
}

// ApplyCompleted handles an agent's "completed" event: moves the task to
// completed history and records its performance sample against the
// assigned agent. Idempotent: a task no longer present in the active set
// (already applied) is a no-op.
func ApplyCompleted(s *store.FileStore, taskID string, now time.Time) error {
	doc := s.Snapshot()
	t, ok := doc.Tasks[taskID]
	if !ok {
		return nil
	}
	agent := t.AssignedAgent
	taskType := t.Type
	var elapsed float64
	if !t.StartedAt.IsZero() {
		elapsed = now.Sub(t.StartedAt).Seconds()
	}

	if err := s.AppendCompleted(taskID, now); err != nil {
		return err
	}
	if agent != "" {
		recordPerformance(s, agent, taskType, true, elapsed)
	}
	return nil
}

// ApplyFailed handles an agent's "failed" event. It classifies errMsg and
// either schedules a retry (retry_scheduled, retry_count incremented) or
// permanently fails the task and cascades cancellation to dependents via
// children. Idempotent: a task no longer active is a no-op.
func ApplyFailed(s *store.FileStore, children *ChildIndex, taskID, errMsg string, cfg config.Config, now time.Time, rng *rand.Rand) error {
	doc := s.Snapshot()
	t, ok := doc.Tasks[taskID]
	if !ok {
		return nil
	}
	agent := t.AssignedAgent
	taskType := t.Type

	decision := DecideRetry(doc, t, errMsg, cfg, now, rng)
	if decision.ShouldRetry {
		err := s.UpdateTaskStatus(taskID, store.StatusRetryScheduled, func(task *store.Task) {
			task.RetryCount++
			task.RetryAt = decision.RetryAt
			task.LastError = errMsg
		})
		if err != nil {
			return err
		}
		if agent != "" {
			recordPerformance(s, agent, taskType, false, 0)
		}
		return nil
	}

	if err := s.AppendFailed(taskID, errMsg, now); err != nil {
		return err
	}
	if agent != "" {
		recordPerformance(s, agent, taskType, false, 0)
	}
	cascadeCancel(s, children, taskID, now)
	return nil
}

// cascadeCancel walks the child index from a newly failed task id and
// fails every blocked descendant, recursively, with the
// "Cancelled due to failed dependency" reason from spec §4.4.3.
func cascadeCancel(s *store.FileStore, children *ChildIndex, failedID string, now time.Time) {
	queue := children.Children(failedID)
	seen := make(map[string]bool)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true

		doc := s.Snapshot()
		t, ok := doc.Tasks[id]
		if !ok || t.Status == store.StatusCompleted {
			continue
		}
		reason := "Cancelled due to failed dependency: " + failedID
		if err := s.AppendFailed(id, reason, now); err != nil {
			continue
		}
		queue = append(queue, children.Children(id)...)
	}
}

// ApplyBatchCompleted fans a batch's outcome out to its member tasks, then
// marks the batch completed. Idempotent against redelivery: a batch already
// BatchCompleted is left untouched.
func ApplyBatchCompleted(s *store.FileStore, children *ChildIndex, batchID string, success bool, errMsg string, cfg config.Config, now time.Time, rng *rand.Rand) error {
	doc := s.Snapshot()
	b, ok := doc.Batches[batchID]
	if !ok || b.Status == store.BatchCompleted {
		return nil
	}
	for _, taskID := range b.TaskIDs {
		if success {
			_ = ApplyCompleted(s, taskID, now)
		} else {
			_ = ApplyFailed(s, children, taskID, errMsg, cfg, now, rng)
		}
	}
	return s.UpdateBatch(batchID, func(batch *store.Batch) {
		batch.Status = store.BatchCompleted
		batch.CompletedAt = now
		batch.Success = success
	})
}

// recordPerformance updates agent's cumulative (agent, taskType)
// performance counters. An error from SetAgentRecord is discarded, so a
// failed performance update does not mask the primary state transition.
func recordPerformance(s *store.FileStore, agent, taskType string, completed bool, elapsedSeconds float64) {
	rec := s.GetAgentRecord(agent)
	if rec == nil {
		rec = &store.AgentRecord{Name: agent, Status: store.AgentAvailable, Performance: map[string]*store.AgentTaskTypePerformance{}}
	}
	if rec.Performance == nil {
		rec.Performance = map[string]*store.AgentTaskTypePerformance{}
	}
	perf, ok := rec.Performance[taskType]
	if !ok {
		perf = &store.AgentTaskTypePerformance{}
		rec.Performance[taskType] = perf
	}
	if completed {
		perf.Completed++
		perf.TotalCompletionTime += elapsedSeconds
	} else {
		perf.Failed++
	}
	perf.LastUpdated = time.Now()
	_ = s.SetAgentRecord(rec)
}
