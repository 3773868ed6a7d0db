// Package scheduler is the orchestrator's dispatch engine: effective
// priority computation, smart agent selection, dependency/workflow
// chaining, similarity batching, sync/async dispatch, and retry scheduling.
package scheduler

import (
	"strings"
	"time"

	"github.com/relaysched/orchestrator/internal/store"
)

var highUrgencyTypes = map[string]bool{
	"debug":     true,
	"security":  true,
	"emergency": true,
}

var elevatedTypes = map[string]bool{
	"build": true,
	"test":  true,
}

var deprioritizedTypes = map[string]bool{
	"cleanup":  true,
	"organize": true,
}

var urgentKeywords = []string{
	"urgent", "critical", "emergency", "security", "vulnerability", "crash", "error", "fix", "bug",
}

// EffectivePriority recomputes t's priority per spec §4.4.1, clamped to
// [1, 10]. The 72h age bonus replaces the 24h bonus rather than stacking,
// per the specification's own resolution of that ambiguity.
func EffectivePriority(t *store.Task, now time.Time) int {
	p := t.Priority

	switch {
	case highUrgencyTypes[t.Type]:
		p += 3
	case elevatedTypes[t.Type]:
		p += 1
	case deprioritizedTypes[t.Type]:
		p -= 1
	}

	descLower := strings.ToLower(t.Description)
	for _, kw := range urgentKeywords {
		if strings.Contains(descLower, kw) {
			p += 2
			break
		}
	}

	age := now.Sub(t.Created)
	switch {
	case age > 72*time.Hour:
		p += 2
	case age > 24*time.Hour:
		p += 1
	}

	if p < 1 {
		p = 1
	}
	if p > 10 {
		p = 10
	}
	return p
}

// IsCriticalOrHighPriority reports whether t belongs in the first dispatch
// pass (§4.4.5): critical types, or effective priority >= 8.
func IsCriticalOrHighPriority(t *store.Task, now time.Time) bool {
	if highUrgencyTypes[t.Type] {
		return true
	}
	return EffectivePriority(t, now) >= 8
}

// ByEffectivePriorityDesc sorts tasks by descending effective priority,
// with ties broken by older Created first.
func ByEffectivePriorityDesc(tasks []*store.Task, now time.Time) {
	n := len(tasks)
	for i := 1; i < n; i++ {
		for j := i; j > 0; j-- {
			a, b := tasks[j-1], tasks[j]
			pa, pb := EffectivePriority(a, now), EffectivePriority(b, now)
			swap := false
			if pa < pb {
				swap = true
			} else if pa == pb && a.Created.After(b.Created) {
				swap = true
			}
			if !swap {
				break
			}
			tasks[j-1], tasks[j] = tasks[j], tasks[j-1]
		}
	}
}
