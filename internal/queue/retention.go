package queue

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/relaysched/orchestrator/internal/store"
)

// Prune removes completed/failed tasks beyond retention (count and age) and
// queued tasks older than the expiration window, archiving whatever it
// evicts from the completed/failed history.
func (m *Manager) Prune(ctx context.Context, s *store.FileStore, now time.Time) error {
	var toArchive []*store.Task

	err := s.Mutate(func(doc *store.Document) error {
		retentionCutoff := now.AddDate(0, 0, -m.cfg.TaskRetentionDays)
		expirationCutoff := now.Add(-m.cfg.TaskExpiration)

		toArchive = append(toArchive, pruneHistory(doc.Completed, retentionCutoff, m.cfg.MaxCompletedHistory)...)
		toArchive = append(toArchive, pruneHistory(doc.Failed, retentionCutoff, m.cfg.MaxCompletedHistory)...)

		for id, t := range doc.Tasks {
			if t.Status == store.StatusQueued && t.Created.Before(expirationCutoff) {
				t.Status = store.StatusFailed
				t.LastError = "expired: exceeded task expiration window"
				delete(doc.Tasks, id)
				doc.Failed[id] = t
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if m.archiver != nil && len(toArchive) > 0 {
		n := m.archiver.Archive(ctx, toArchive)
		if n < len(toArchive) {
			log.Printf("[queue] archived %d/%d terminal tasks", n, len(toArchive))
		}
	}
	return nil
}

// pruneHistory removes entries from history older than cutoff, then
// trims any remainder beyond maxCount (oldest first), returning everything
// it evicted for archival.
func pruneHistory(history map[string]*store.Task, cutoff time.Time, maxCount int) []*store.Task {
	var evicted []*store.Task
	for id, t := range history {
		if t.Created.Before(cutoff) {
			evicted = append(evicted, t)
			delete(history, id)
		}
	}

	if len(history) > maxCount {
		remaining := make([]*store.Task, 0, len(history))
		for _, t := range history {
			remaining = append(remaining, t)
		}
		sortByAgeOldestFirst(remaining)
		excess := len(remaining) - maxCount
		for i := 0; i < excess; i++ {
			evicted = append(evicted, remaining[i])
			delete(history, remaining[i].ID)
		}
	}
	return evicted
}

func sortByAgeOldestFirst(tasks []*store.Task) {
	for i := 1; i < len(tasks); i++ {
		for j := i; j > 0 && tasks[j].Created.Before(tasks[j-1].Created); j-- {
			tasks[j], tasks[j-1] = tasks[j-1], tasks[j]
		}
	}
}
