package queue

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/relaysched/orchestrator/internal/config"
	"github.com/relaysched/orchestrator/internal/orcherr"
	"github.com/relaysched/orchestrator/internal/store"
)

// Manager applies the orchestrator's admission, retention, and
// storage-optimization policy on top of a FileStore.
type Manager struct {
	cfg      config.Config
	dedup    *store.DedupCache
	archiver *store.Archiver
}

// NewManager wires a Manager to the given config and optional Redis dedup
// cache / Postgres archiver (either may be a disabled/degraded instance).
func NewManager(cfg config.Config, dedup *store.DedupCache, archiver *store.Archiver) *Manager {
	return &Manager{cfg: cfg, dedup: dedup, archiver: archiver}
}

// allExisting gathers every task that should be considered for
// deduplication: everything currently queued/blocked/in-flight, plus
// recently terminal tasks (completed or failed) since the dedup window
// extends into history.
func allExisting(doc *store.Document, now time.Time, window time.Duration) []*store.Task {
	out := make([]*store.Task, 0, len(doc.Tasks))
	for _, t := range doc.Tasks {
		out = append(out, t)
	}
	cutoff := now.Add(-window)
	for _, t := range doc.Completed {
		if t.Created.After(cutoff) {
			out = append(out, t)
		}
	}
	for _, t := range doc.Failed {
		if t.Created.After(cutoff) {
			out = append(out, t)
		}
	}
	return out
}

// fingerprint is the dedup cache key for an exact (type, description) pair.
func fingerprint(t *store.Task) string {
	return t.Type + "\x00" + t.Description
}

// Admit applies capacity, dedup, and compression policy to a new task and,
// if accepted, inserts it into s with status Queued (or Blocked, if the
// caller pre-populated Dependencies). Rejection is reported via one of the
// orcherr capacity sentinels and is not a Store error.
func (m *Manager) Admit(ctx context.Context, s *store.FileStore, t *store.Task) error {
	if m.dedup != nil && m.dedup.Contains(ctx, fingerprint(t)) {
		return orcherr.ErrDuplicateTask
	}

	now := time.Now()
	err := s.Mutate(func(doc *store.Document) error {
		queuedCount := 0
		for _, existing := range doc.Tasks {
			if existing.Status == store.StatusQueued {
				queuedCount++
			}
		}
		totalCount := len(doc.Tasks) + len(doc.Completed) + len(doc.Failed)

		if queuedCount >= m.cfg.MaxQueuedTasks {
			return orcherr.ErrQueueFull
		}
		if totalCount >= m.cfg.MaxQueueSize {
			trimLowestPriority(doc, totalCount-m.cfg.MaxQueueSize+1)
		}

		existingForDedup, err := decompressedCopies(allExisting(doc, now, m.cfg.DedupWindow))
		if err != nil {
			return fmt.Errorf("decompressing existing descriptions for dedup: %w", err)
		}
		if duplicateOf(t, existingForDedup, m.cfg.DedupSimilarityThreshold, m.cfg.DedupWindow, m.cfg.RestartTaskDedupWindow, m.cfg.HealthTaskDailyCap, now) {
			return orcherr.ErrDuplicateTask
		}

		if t.ID == "" {
			return fmt.Errorf("task id must be set before admission")
		}
		if t.Created.IsZero() {
			t.Created = now
		}
		if len(t.Dependencies) > 0 {
			t.Status = store.StatusBlocked
		} else {
			t.Status = store.StatusQueued
		}

		compressed, err := Compress(t.Description, m.cfg.CompressionThreshold)
		if err != nil {
			return fmt.Errorf("compressing task description: %w", err)
		}
		stored := t.Clone()
		stored.Description = compressed
		doc.Tasks[t.ID] = stored
		return nil
	})
	if err != nil {
		return err
	}
	if m.dedup != nil {
		m.dedup.Seen(ctx, fingerprint(t))
	}
	return nil
}

// decompressedCopies returns shallow copies of tasks with their
// descriptions transparently decompressed, so dedup comparisons never
// compare a plain-text candidate against an opaque COMPRESSED: envelope.
func decompressedCopies(tasks []*store.Task) ([]*store.Task, error) {
	out := make([]*store.Task, 0, len(tasks))
	for _, t := range tasks {
		desc, err := Decompress(t.Description)
		if err != nil {
			return nil, err
		}
		copy := *t
		copy.Description = desc
		out = append(out, &copy)
	}
	return out, nil
}

// trimLowestPriority removes n tasks from doc.Tasks, lowest priority then
// oldest first, to bring the store back under its hard capacity cap. Only
// tasks not yet assigned are eligible for eviction.
func trimLowestPriority(doc *store.Document, n int) {
	if n <= 0 {
		return
	}
	candidates := make([]*store.Task, 0, len(doc.Tasks))
	for _, t := range doc.Tasks {
		if t.Status == store.StatusQueued || t.Status == store.StatusBlocked {
			candidates = append(candidates, t)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority < candidates[j].Priority
		}
		return candidates[i].Created.Before(candidates[j].Created)
	})
	for i := 0; i < n && i < len(candidates); i++ {
		delete(doc.Tasks, candidates[i].ID)
	}
}
