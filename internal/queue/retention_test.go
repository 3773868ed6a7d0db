package queue

import (
	"context"
	"testing"
	"time"

	"github.com/relaysched/orchestrator/internal/store"
)

func TestPruneExpiresOldQueuedTasksIntoFailed(t *testing.T) {
	m, s := newTestManager(t)
	m.cfg.TaskExpiration = time.Hour
	now := time.Now()

	old := &store.Task{ID: "old", Type: "build", Status: store.StatusQueued, Created: now.Add(-2 * time.Hour)}
	if err := s.AddTask(old); err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	fresh := &store.Task{ID: "fresh", Type: "build", Status: store.StatusQueued, Created: now}
	if err := s.AddTask(fresh); err != nil {
		t.Fatalf("AddTask: %v", err)
	}

	if err := m.Prune(context.Background(), s, now); err != nil {
		t.Fatalf("Prune: %v", err)
	}

	doc := s.Snapshot()
	if _, ok := doc.Tasks["old"]; ok {
		t.Fatal("expired queued task should have been removed from the active set")
	}
	if doc.Failed["old"] == nil || doc.Failed["old"].Status != store.StatusFailed {
		t.Fatalf("expired task should land in Failed with status failed, got %+v", doc.Failed["old"])
	}
	if _, ok := doc.Tasks["fresh"]; !ok {
		t.Fatal("fresh queued task should not be expired")
	}
}

func TestPruneTrimsCompletedHistoryBeyondMaxCount(t *testing.T) {
	m, s := newTestManager(t)
	m.cfg.MaxCompletedHistory = 2
	m.cfg.TaskRetentionDays = 365
	now := time.Now()

	for i := 0; i < 4; i++ {
		id := string(rune('a' + i))
		if err := s.AddTask(&store.Task{ID: id, Type: "build", Status: store.StatusInProgress, Created: now.Add(time.Duration(i) * time.Minute)}); err != nil {
			t.Fatalf("AddTask %s: %v", id, err)
		}
		if err := s.AppendCompleted(id, now.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("AppendCompleted %s: %v", id, err)
		}
	}

	if err := m.Prune(context.Background(), s, now.Add(time.Hour)); err != nil {
		t.Fatalf("Prune: %v", err)
	}

	doc := s.Snapshot()
	if len(doc.Completed) != 2 {
		t.Fatalf("expected completed history trimmed to 2, got %d", len(doc.Completed))
	}
	if doc.Completed["a"] != nil || doc.Completed["b"] != nil {
		t.Fatal("expected the two oldest completed tasks to be evicted first")
	}
}
