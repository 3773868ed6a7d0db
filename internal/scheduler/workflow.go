package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/relaysched/orchestrator/internal/store"
)

// WorkflowChains are the recognized workflow types from spec §4.4.3: the
// ordered sequence of task types created, as blocked tasks, when a seed
// task of that workflow type is admitted.
var WorkflowChains = map[string][]string{
	"debug":     {"debug", "test", "build"},
	"implement": {"implement", "generate", "test", "build", "docs"},
}

// ChildIndex is an incrementally maintained task-id -> dependent-task-ids
// map, seeded once by NewChildIndex and extended by the Add calls in
// AdmitWithWorkflow rather than recomputed per tick (spec §9), so
// dependency-gate evaluation after a completion is O(children) not O(all
// tasks). Entries are never removed, and tasks stored by any other path
// are not added.
type ChildIndex struct {
	mu       sync.RWMutex
	children map[string][]string
}

// NewChildIndex seeds an index from doc's current dependency edges.
func NewChildIndex(doc *store.Document) *ChildIndex {
	idx := &ChildIndex{children: make(map[string][]string)}
	for id, t := range doc.Tasks {
		for _, dep := range t.Dependencies {
			idx.children[dep] = append(idx.children[dep], id)
		}
	}
	return idx
}

// Add records that childID depends on each id in deps.
func (c *ChildIndex) Add(childID string, deps []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, dep := range deps {
		c.children[dep] = append(c.children[dep], childID)
	}
}

// Children returns the ids of tasks that list id as a dependency.
func (c *ChildIndex) Children(id string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.children[id]))
	copy(out, c.children[id])
	return out
}

// BuildChain creates the blocked remainder of seed's workflow chain
// (everything after the seed's own position), each depending on its
// predecessor with decreasing priority (step i -> priority - i), per
// spec §4.4.3. seed itself is not included in the returned slice — the
// caller is expected to have already admitted it as the first step.
func BuildChain(seed *store.Task, now time.Time) []*store.Task {
	steps, ok := WorkflowChains[seed.WorkflowType]
	if !ok {
		steps, ok = WorkflowChains[seed.Type]
	}
	if !ok || len(steps) < 2 {
		return nil
	}

	out := make([]*store.Task, 0, len(steps)-1)
	prevID := seed.ID
	for i := 1; i < len(steps); i++ {
		priority := seed.Priority - i
		if priority < 1 {
			priority = 1
		}
		t := &store.Task{
			ID:           uuid.NewString(),
			Type:         steps[i],
			Description:  fmt.Sprintf("%s (workflow step %d of %s)", steps[i], i+1, seed.WorkflowType),
			Priority:     priority,
			Status:       store.StatusBlocked,
			Created:      now,
			Dependencies: []string{prevID},
			WorkflowType: seed.WorkflowType,
			StepNumber:   i + 1,
			ParentTaskID: seed.ID,
		}
		out = append(out, t)
		prevID = t.ID
	}
	return out
}

// DependenciesSatisfied reports whether every id in deps has reached
// StatusCompleted in doc (either still tracked or already moved to
// completed history).
func DependenciesSatisfied(doc *store.Document, deps []string) bool {
	for _, id := range deps {
		if t, ok := doc.Completed[id]; ok {
			_ = t
			continue
		}
		if t, ok := doc.Tasks[id]; ok && t.Status == store.StatusCompleted {
			continue
		}
		return false
	}
	return true
}

// DependencyFailed reports whether any id in deps is terminally failed or
// cancelled, and returns the first such id for the cancellation reason.
func DependencyFailed(doc *store.Document, deps []string) (string, bool) {
	for _, id := range deps {
		if _, ok := doc.Failed[id]; ok {
			return id, true
		}
		if t, ok := doc.Tasks[id]; ok && (t.Status == store.StatusFailed || t.Status == store.StatusCancelled) {
			return id, true
		}
	}
	return "", false
}

// ReconcileDependencies walks every Blocked task in doc and promotes it to
// Queued if all dependencies are satisfied, or cancels it (recorded as
// failed, per spec §3) if any dependency has failed. Returns the ids
// touched, for logging.
func ReconcileDependencies(doc *store.Document, now time.Time) (promoted, cancelled []string) {
	for id, t := range doc.Tasks {
		if t.Status != store.StatusBlocked {
			continue
		}
		if depID, failed := DependencyFailed(doc, t.Dependencies); failed {
			t.Status = store.StatusFailed
			t.LastError = fmt.Sprintf("Cancelled due to failed dependency: %s", depID)
			t.FailedAt = now
			delete(doc.Tasks, id)
			doc.Failed[id] = t
			cancelled = append(cancelled, id)
			continue
		}
		if DependenciesSatisfied(doc, t.Dependencies) {
			t.Status = store.StatusQueued
			promoted = append(promoted, id)
		}
	}
	return promoted, cancelled
}
