package queue

import (
	"context"
	"testing"

	"github.com/relaysched/orchestrator/internal/config"
	"github.com/relaysched/orchestrator/internal/orcherr"
	"github.com/relaysched/orchestrator/internal/store"
)

func newTestManager(t *testing.T) (*Manager, *store.FileStore) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.StateDir = t.TempDir()
	s, err := store.NewFileStore(cfg.StateDir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return NewManager(cfg, nil, nil), s
}

func TestAdmitRejectsExactDuplicateDescription(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()

	first := &store.Task{ID: "t1", Type: "build", Description: "rebuild the docs site", Priority: 5}
	if err := m.Admit(ctx, s, first); err != nil {
		t.Fatalf("first Admit: %v", err)
	}

	second := &store.Task{ID: "t2", Type: "build", Description: "rebuild the docs site", Priority: 5}
	if err := m.Admit(ctx, s, second); err != orcherr.ErrDuplicateTask {
		t.Fatalf("Admit of exact-duplicate task = %v, want ErrDuplicateTask", err)
	}
}

func TestAdmitRejectsNearDuplicateWithinWindow(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()

	first := &store.Task{ID: "t1", Type: "debug", Description: "investigate failing login flow on staging", Priority: 5}
	if err := m.Admit(ctx, s, first); err != nil {
		t.Fatalf("first Admit: %v", err)
	}

	similar := &store.Task{ID: "t2", Type: "debug", Description: "investigate failing login flow on prod staging", Priority: 5}
	if err := m.Admit(ctx, s, similar); err != orcherr.ErrDuplicateTask {
		t.Fatalf("Admit of near-duplicate task = %v, want ErrDuplicateTask", err)
	}
}

func TestAdmitAllowsDissimilarTasks(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()

	first := &store.Task{ID: "t1", Type: "debug", Description: "investigate failing login flow", Priority: 5}
	if err := m.Admit(ctx, s, first); err != nil {
		t.Fatalf("first Admit: %v", err)
	}
	second := &store.Task{ID: "t2", Type: "docs", Description: "write release notes for v2", Priority: 5}
	if err := m.Admit(ctx, s, second); err != nil {
		t.Fatalf("Admit of dissimilar task should succeed: %v", err)
	}

	doc := s.Snapshot()
	if len(doc.Tasks) != 2 {
		t.Fatalf("expected both tasks admitted, got %d", len(doc.Tasks))
	}
}

func TestAdmitRejectsWhenQueueFull(t *testing.T) {
	m, s := newTestManager(t)
	m.cfg.MaxQueuedTasks = 2
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		task := &store.Task{ID: string(rune('a' + i)), Type: "misc", Description: "distinct task body " + string(rune('a'+i)), Priority: 1}
		if err := m.Admit(ctx, s, task); err != nil {
			t.Fatalf("Admit %d: %v", i, err)
		}
	}

	overflow := &store.Task{ID: "overflow", Type: "misc", Description: "one too many", Priority: 1}
	if err := m.Admit(ctx, s, overflow); err != orcherr.ErrQueueFull {
		t.Fatalf("Admit past MaxQueuedTasks = %v, want ErrQueueFull", err)
	}
}

func TestAdmitCapsHealthMonitorTasksPerDay(t *testing.T) {
	m, s := newTestManager(t)
	m.cfg.HealthTaskDailyCap = 2
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		task := &store.Task{ID: string(rune('a' + i)), Type: "health", Description: "health check pass " + string(rune('a'+i)), Priority: 1}
		if err := m.Admit(ctx, s, task); err != nil {
			t.Fatalf("Admit health task %d: %v", i, err)
		}
	}

	third := &store.Task{ID: "third", Type: "health", Description: "yet another health check entirely unrelated text", Priority: 1}
	if err := m.Admit(ctx, s, third); err != orcherr.ErrDuplicateTask {
		t.Fatalf("Admit past HealthTaskDailyCap = %v, want ErrDuplicateTask", err)
	}
}

func TestAdmitBlocksTaskWithDependencies(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()

	task := &store.Task{ID: "t1", Type: "test", Description: "run integration suite", Dependencies: []string{"parent"}, Priority: 5}
	if err := m.Admit(ctx, s, task); err != nil {
		t.Fatalf("Admit: %v", err)
	}

	doc := s.Snapshot()
	if doc.Tasks["t1"].Status != store.StatusBlocked {
		t.Fatalf("task with unmet dependencies has status %q, want %q", doc.Tasks["t1"].Status, store.StatusBlocked)
	}
}

func TestAdmitCompressesLongDescriptions(t *testing.T) {
	m, s := newTestManager(t)
	m.cfg.CompressionThreshold = 20
	ctx := context.Background()

	longDesc := "this description is deliberately long enough to exceed the compression threshold configured above"
	task := &store.Task{ID: "t1", Type: "misc", Description: longDesc, Priority: 1}
	if err := m.Admit(ctx, s, task); err != nil {
		t.Fatalf("Admit: %v", err)
	}

	doc := s.Snapshot()
	stored := doc.Tasks["t1"].Description
	if stored == longDesc {
		t.Fatal("expected long description to be compressed, got it stored verbatim")
	}
	restored, err := Decompress(stored)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if restored != longDesc {
		t.Fatalf("compressed round-trip mismatch: got %q, want %q", restored, longDesc)
	}
}
