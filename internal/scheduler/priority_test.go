package scheduler

import (
	"testing"
	"time"

	"github.com/relaysched/orchestrator/internal/store"
)

func TestEffectivePriorityAppliesTypeAndKeywordBonuses(t *testing.T) {
	now := time.Now()
	task := &store.Task{Type: "debug", Priority: 3, Description: "fix a crash", Created: now}
	got := EffectivePriority(task, now)
	// base 3 + debug (+3) + keyword match (+2), clamped at 10
	if got != 8 {
		t.Fatalf("EffectivePriority = %d, want 8", got)
	}
}

func TestEffectivePriority72hReplaces24hBonus(t *testing.T) {
	now := time.Now()
	task48h := &store.Task{Type: "docs", Priority: 5, Created: now.Add(-48 * time.Hour)}
	task96h := &store.Task{Type: "docs", Priority: 5, Created: now.Add(-96 * time.Hour)}

	if got := EffectivePriority(task48h, now); got != 6 {
		t.Fatalf("24h-aged task priority = %d, want 6 (base 5 + 1)", got)
	}
	if got := EffectivePriority(task96h, now); got != 7 {
		t.Fatalf("72h-aged task priority = %d, want 7 (base 5 + 2, not +3 stacked)", got)
	}
}

func TestEffectivePriorityClampsToBounds(t *testing.T) {
	now := time.Now()
	tooLow := &store.Task{Type: "cleanup", Priority: 1, Created: now}
	if got := EffectivePriority(tooLow, now); got != 1 {
		t.Fatalf("low priority clamp = %d, want 1", got)
	}

	tooHigh := &store.Task{Type: "security", Priority: 10, Description: "urgent critical vulnerability", Created: now.Add(-96 * time.Hour)}
	if got := EffectivePriority(tooHigh, now); got != 10 {
		t.Fatalf("high priority clamp = %d, want 10", got)
	}
}

func TestIsCriticalOrHighPriority(t *testing.T) {
	now := time.Now()
	if !IsCriticalOrHighPriority(&store.Task{Type: "security", Priority: 1, Created: now}, now) {
		t.Fatal("security-type task should always be critical regardless of priority")
	}
	if !IsCriticalOrHighPriority(&store.Task{Type: "docs", Priority: 8, Created: now}, now) {
		t.Fatal("effective priority >= 8 should count as high priority")
	}
	if IsCriticalOrHighPriority(&store.Task{Type: "docs", Priority: 3, Created: now}, now) {
		t.Fatal("low-priority non-critical task should not be flagged critical")
	}
}

func TestByEffectivePriorityDescOrdersHighestFirstOldestTiebreak(t *testing.T) {
	now := time.Now()
	older := &store.Task{ID: "older", Type: "docs", Priority: 5, Created: now.Add(-time.Hour)}
	newer := &store.Task{ID: "newer", Type: "docs", Priority: 5, Created: now}
	low := &store.Task{ID: "low", Type: "cleanup", Priority: 1, Created: now}

	tasks := []*store.Task{low, newer, older}
	ByEffectivePriorityDesc(tasks, now)

	if tasks[0].ID != "older" || tasks[1].ID != "newer" || tasks[2].ID != "low" {
		ids := make([]string, len(tasks))
		for i, task := range tasks {
			ids[i] = task.ID
		}
		t.Fatalf("unexpected order: %v", ids)
	}
}
