package scheduler

import (
	"context"
	"time"

	"github.com/relaysched/orchestrator/internal/queue"
	"github.com/relaysched/orchestrator/internal/store"
)

// AdmitWithWorkflow admits seed through qmgr's capacity/dedup/compression
// gate and, if seed's type or WorkflowType names a recognized workflow
// chain (§4.4.3), creates the remaining chain as blocked tasks depending
// on their predecessor. A rejection of the seed task aborts the whole
// chain; the chain tasks themselves are not subject to admission control
// since they're never directly submitted. The seed and each chain task are
// stored by separate Store calls, not in one atomic mutation: if adding a
// chain task fails, the seed and the chain tasks already added stay stored.
func (e *Engine) AdmitWithWorkflow(ctx context.Context, qmgr *queue.Manager, s *store.FileStore, seed *store.Task, now time.Time) error {
	if seed.WorkflowType == "" {
		if _, ok := WorkflowChains[seed.Type]; ok {
			seed.WorkflowType = seed.Type
		}
	}
	if seed.Created.IsZero() {
		seed.Created = now
	}
	seed.StepNumber = 1

	if err := qmgr.Admit(ctx, s, seed); err != nil {
		return err
	}
	e.Children.Add(seed.ID, seed.Dependencies)

	chain := BuildChain(seed, now)
	for _, t := range chain {
		if err := s.AddTask(t); err != nil {
			return err
		}
		e.Children.Add(t.ID, t.Dependencies)
	}
	return nil
}

// PromoteDueRetries moves every retry_scheduled task whose retry_at has
// elapsed back to queued, preferring a different agent than the one
// originally assigned if it is still unavailable (§4.4.6).
func (e *Engine) PromoteDueRetries(s *store.FileStore, now time.Time) (int, error) {
	doc := s.Snapshot()
	due := DueRetries(doc, now)
	n := 0
	for _, t := range due {
		prevAgent := t.AssignedAgent
		err := s.UpdateTaskStatus(t.ID, store.StatusQueued, func(task *store.Task) {
			if rec, ok := doc.Agents[prevAgent]; ok && (rec.Status == store.AgentCircuitBreaker || rec.Status == store.AgentFailed || rec.Status == store.AgentStopped) {
				task.AssignedAgent = ""
			}
		})
		if err != nil {
			continue
		}
		n++
	}
	return n, nil
}

// ReconcileDependencyGate wraps ReconcileDependencies against the live
// store via Mutate, so the dependency-gate invariant (spec §8 invariant 2)
// holds at every tick boundary.
func (e *Engine) ReconcileDependencyGate(s *store.FileStore, now time.Time) (promoted, cancelled []string, err error) {
	err = s.Mutate(func(doc *store.Document) error {
		promoted, cancelled = ReconcileDependencies(doc, now)
		return nil
	})
	return promoted, cancelled, err
}
