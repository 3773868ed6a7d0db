package store

import (
	"testing"
	"time"
)

func TestAddTaskRejectsDuplicateID(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := s.AddTask(&Task{ID: "t1", Status: StatusQueued, Created: time.Now()}); err != nil {
		t.Fatalf("first AddTask: %v", err)
	}
	if err := s.AddTask(&Task{ID: "t1", Status: StatusQueued, Created: time.Now()}); err == nil {
		t.Fatal("expected error adding duplicate task id")
	}
	if len(s.Snapshot().Tasks) != 1 {
		t.Fatalf("expected exactly one task after the rejected duplicate")
	}
}

func TestMutateLeavesDocumentUntouchedOnError(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	before := s.Snapshot()

	err = s.Mutate(func(doc *Document) error {
		doc.Tasks["ghost"] = &Task{ID: "ghost"}
		return errTestSentinel
	})
	if err == nil {
		t.Fatal("expected Mutate to return the fn's error")
	}

	after := s.Snapshot()
	if len(after.Tasks) != len(before.Tasks) {
		t.Fatalf("Mutate committed a change despite returning an error: %d tasks, want %d", len(after.Tasks), len(before.Tasks))
	}
}

func TestAppendCompletedMovesTaskOutOfActiveSet(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := s.AddTask(&Task{ID: "t1", Status: StatusInProgress, Created: time.Now()}); err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	now := time.Now()
	if err := s.AppendCompleted("t1", now); err != nil {
		t.Fatalf("AppendCompleted: %v", err)
	}

	doc := s.Snapshot()
	if _, ok := doc.Tasks["t1"]; ok {
		t.Fatal("completed task still present in active task set")
	}
	completed, ok := doc.Completed["t1"]
	if !ok {
		t.Fatal("completed task missing from Completed map")
	}
	if completed.Status != StatusCompleted {
		t.Fatalf("completed task status = %q, want %q", completed.Status, StatusCompleted)
	}
}

func TestSnapshotIsADeepCopy(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := s.AddTask(&Task{ID: "t1", Status: StatusQueued, Dependencies: []string{"t0"}, Created: time.Now()}); err != nil {
		t.Fatalf("AddTask: %v", err)
	}

	snap := s.Snapshot()
	snap.Tasks["t1"].Status = "mutated-by-caller"
	snap.Tasks["t1"].Dependencies[0] = "mutated-dep"

	fresh := s.Snapshot()
	if fresh.Tasks["t1"].Status != StatusQueued {
		t.Fatalf("store-internal state leaked through snapshot mutation: status = %q", fresh.Tasks["t1"].Status)
	}
	if fresh.Tasks["t1"].Dependencies[0] != "t0" {
		t.Fatalf("store-internal dependency slice leaked through snapshot mutation")
	}
}

func TestReloadRoundTripsPersistedState(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := s.AddTask(&Task{ID: "t1", Type: "build", Status: StatusQueued, Priority: 5, Created: time.Now()}); err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	if err := s.SetAgentRecord(&AgentRecord{Name: "agent-a", Status: AgentAvailable}); err != nil {
		t.Fatalf("SetAgentRecord: %v", err)
	}

	reloaded, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("reopening store: %v", err)
	}
	doc := reloaded.Snapshot()
	if doc.Tasks["t1"] == nil || doc.Tasks["t1"].Type != "build" {
		t.Fatalf("task did not round-trip through persistence: %+v", doc.Tasks["t1"])
	}
	if doc.Agents["agent-a"] == nil || doc.Agents["agent-a"].Status != AgentAvailable {
		t.Fatalf("agent record did not round-trip through persistence")
	}
}

func TestUpdateAgentAfterRestartCreatesRecordIfMissing(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	now := time.Now()
	if err := s.UpdateAgentAfterRestart("agent-new", 4242, now); err != nil {
		t.Fatalf("UpdateAgentAfterRestart: %v", err)
	}
	rec := s.GetAgentRecord("agent-new")
	if rec == nil {
		t.Fatal("expected agent record to be created")
	}
	if rec.PID != 4242 || rec.RestartCount != 1 || rec.Status != AgentRestarting {
		t.Fatalf("unexpected agent record after restart: %+v", rec)
	}
}

type sentinelError struct{ msg string }

func (e *sentinelError) Error() string { return e.msg }

var errTestSentinel = &sentinelError{msg: "synthetic mutation failure"}
