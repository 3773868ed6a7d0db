// Package queue implements admission control for new tasks: capacity
// checks, deduplication, retention/expiration sweeps, and description
// compression/archival.
package queue

import (
	"strings"
	"time"

	"github.com/relaysched/orchestrator/internal/store"
)

// wordSet returns the lowercased, whitespace-split word set of s.
func wordSet(s string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// jaccard computes the Jaccard similarity of two word sets.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	intersection := 0
	for w := range a {
		if _, ok := b[w]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func isRestartTask(t *store.Task) bool {
	return strings.Contains(strings.ToLower(t.Type), "restart") ||
		strings.Contains(strings.ToLower(t.Description), "restart agent")
}

func isHealthMonitorTask(t *store.Task) bool {
	typeLower := strings.ToLower(t.Type)
	return typeLower == "health" || typeLower == "monitor" || strings.Contains(typeLower, "health_check")
}

// duplicateOf reports whether candidate duplicates any task in existing
// under the Queue Manager's deduplication rule: exact (type, description)
// match, or same-type near-duplicate (Jaccard >= threshold) within window,
// plus the category-specific caps for restart and health/monitor tasks.
func duplicateOf(candidate *store.Task, existing []*store.Task, threshold float64, window, restartWindow time.Duration, healthCap int, now time.Time) bool {
	candidateWords := wordSet(candidate.Description)
	healthCount := 0

	for _, t := range existing {
		age := now.Sub(t.Created)

		if t.Type == candidate.Type && t.Description == candidate.Description {
			return true
		}

		if t.Type == candidate.Type && age <= window {
			if jaccard(candidateWords, wordSet(t.Description)) >= threshold {
				return true
			}
		}

		if isRestartTask(candidate) && isRestartTask(t) && age <= restartWindow {
			return true
		}

		if isHealthMonitorTask(candidate) && isHealthMonitorTask(t) && age <= 24*time.Hour {
			healthCount++
		}
	}

	if isHealthMonitorTask(candidate) && healthCount >= healthCap {
		return true
	}
	return false
}
