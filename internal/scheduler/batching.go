package scheduler

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/relaysched/orchestrator/internal/config"
	"github.com/relaysched/orchestrator/internal/store"
)

// similarity computes the weighted pairwise similarity of §4.4.4:
// 0.4*type-match + 0.4*description-Jaccard + 0.2*priority-similarity.
func similarity(a, b *store.Task, now time.Time) float64 {
	typeScore := 0.0
	if a.Type == b.Type {
		typeScore = 1.0
	}
	descScore := jaccard(wordSetLocal(a.Description), wordSetLocal(b.Description))

	pa, pb := EffectivePriority(a, now), EffectivePriority(b, now)
	diff := pa - pb
	if diff < 0 {
		diff = -diff
	}
	prioScore := 1.0 - float64(diff)/9.0
	if prioScore < 0 {
		prioScore = 0
	}

	return 0.4*typeScore + 0.4*descScore + 0.2*prioScore
}

func wordSetLocal(s string) map[string]struct{} {
	set := make(map[string]struct{})
	word := make([]byte, 0, 16)
	flush := func() {
		if len(word) > 0 {
			set[string(word)] = struct{}{}
			word = word[:0]
		}
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		if c == ' ' || c == '\t' || c == '\n' {
			flush()
			continue
		}
		word = append(word, c)
	}
	flush()
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// GroupForBatching partitions queued tasks assigned to a single agent into
// candidate batches of up to cfg.MaxBatchSize using greedy pairwise
// similarity against a batch's first (seed) member. A high-priority
// (effective priority >= 8) task with no similar peers still forms its own
// one-element batch; any other unmatched task is left out of batching
// entirely (it still dispatches individually in the priority pass).
func GroupForBatching(tasks []*store.Task, cfg config.Config, now time.Time) [][]*store.Task {
	remaining := append([]*store.Task(nil), tasks...)
	sort.Slice(remaining, func(i, j int) bool {
		return EffectivePriority(remaining[i], now) > EffectivePriority(remaining[j], now)
	})

	var batches [][]*store.Task
	used := make(map[string]bool, len(remaining))

	for _, seed := range remaining {
		if used[seed.ID] {
			continue
		}
		group := []*store.Task{seed}
		used[seed.ID] = true
		for _, cand := range remaining {
			if len(group) >= cfg.MaxBatchSize {
				break
			}
			if used[cand.ID] {
				continue
			}
			if similarity(seed, cand, now) >= cfg.BatchSimilarityThreshold {
				group = append(group, cand)
				used[cand.ID] = true
			}
		}
		if len(group) > 1 || EffectivePriority(seed, now) >= 8 {
			batches = append(batches, group)
		} else {
			// Singleton non-high-priority task: release it, it dispatches
			// individually instead.
			used[seed.ID] = false
		}
	}
	return batches
}

// NewBatch builds a Batch record for group, assigned to agent, with
// priority set to the max of member effective priorities per §4.4.4.
func NewBatch(agent string, group []*store.Task, now time.Time) *store.Batch {
	ids := make([]string, len(group))
	maxPriority := 0
	for i, t := range group {
		ids[i] = t.ID
		if p := EffectivePriority(t, now); p > maxPriority {
			maxPriority = p
		}
	}
	return &store.Batch{
		ID:       uuid.NewString(),
		Agent:    agent,
		TaskIDs:  ids,
		Priority: maxPriority,
		Status:   store.BatchActive,
		Created:  now,
	}
}
