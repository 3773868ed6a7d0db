package store

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/relaysched/orchestrator/internal/orcherr"
)

// FileStore is the canonical Store: the whole logical document lives in
// memory behind one RWMutex and is persisted across four JSON files using
// the atomic-rename discipline, matching task_queue.json / agent_status.json
// / queue_analytics.json / async_operations.json.
type FileStore struct {
	mu   sync.RWMutex
	dir  string
	doc  *Document
}

// NewFileStore loads any existing state found under dir, creating the
// directory if needed, and returns a ready store.
func NewFileStore(dir string) (*FileStore, error) {
	s := &FileStore{dir: dir, doc: newDocument()}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load() error {
	var tq taskQueueDoc
	if err := readIfExists(filepath.Join(s.dir, taskQueueFile), &tq); err != nil {
		return err
	}
	if tq.Tasks != nil {
		s.doc.Tasks = tq.Tasks
	}
	if tq.Completed != nil {
		s.doc.Completed = tq.Completed
	}
	if tq.Failed != nil {
		s.doc.Failed = tq.Failed
	}
	if tq.Batches != nil {
		s.doc.Batches = tq.Batches
	}

	var as agentStatusDoc
	if err := readIfExists(filepath.Join(s.dir, agentStatusFile), &as); err != nil {
		return err
	}
	if as.Agents != nil {
		s.doc.Agents = as.Agents
	}

	var an analyticsDoc
	if err := readIfExists(filepath.Join(s.dir, analyticsFile), &an); err != nil {
		return err
	}
	if an.Metrics != nil {
		s.doc.Metrics = an.Metrics
	}

	var ao asyncOpsDoc
	if err := readIfExists(filepath.Join(s.dir, asyncOperationsFile), &ao); err != nil {
		return err
	}
	if ao.Operations != nil {
		s.doc.AsyncOps = ao.Operations
	}
	return nil
}

// Snapshot returns a deep copy of the entire logical state. Safe to read
// and mutate freely; it never aliases store-internal memory.
func (s *FileStore) Snapshot() *Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.clone()
}

// Mutate applies fn to a private working copy of the document; if fn
// returns nil the working copy is committed (persisted, then swapped in),
// otherwise the store is left completely unchanged and the error is
// returned to the caller, per the "failed mutations don't modify state"
// guarantee.
func (s *FileStore) Mutate(fn func(doc *Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.doc.clone()
	if err := fn(working); err != nil {
		return err
	}
	if err := s.persistDoc(working); err != nil {
		return fmt.Errorf("store: %w: %v", orcherr.ErrStoreCorrupt, err)
	}
	s.doc = working
	return nil
}

// persistDoc writes doc to disk without touching s.doc, so a write failure
// never leaves the in-memory state and the on-disk state disagreeing.
func (s *FileStore) persistDoc(doc *Document) error {
	tq := taskQueueDoc{Tasks: doc.Tasks, Completed: doc.Completed, Failed: doc.Failed, Batches: doc.Batches}
	if err := writeAtomic(filepath.Join(s.dir, taskQueueFile), tq); err != nil {
		return err
	}
	as := agentStatusDoc{Agents: doc.Agents}
	if err := writeAtomic(filepath.Join(s.dir, agentStatusFile), as); err != nil {
		return err
	}
	an := analyticsDoc{Metadata: map[string]string{"updated_at": time.Now().Format(time.RFC3339)}, Metrics: doc.Metrics}
	if err := writeAtomic(filepath.Join(s.dir, analyticsFile), an); err != nil {
		return err
	}
	ao := asyncOpsDoc{Operations: doc.AsyncOps}
	if err := writeAtomic(filepath.Join(s.dir, asyncOperationsFile), ao); err != nil {
		return err
	}
	return nil
}

// --- Typed helpers -------------------------------------------------------

// AddTask inserts a new task, rejecting a duplicate id.
func (s *FileStore) AddTask(t *Task) error {
	return s.Mutate(func(doc *Document) error {
		if _, exists := doc.Tasks[t.ID]; exists {
			return fmt.Errorf("task %s already exists", t.ID)
		}
		doc.Tasks[t.ID] = t.Clone()
		return nil
	})
}

// UpdateTaskStatus transitions an existing queued/blocked/etc. task.
func (s *FileStore) UpdateTaskStatus(id, status string, mutateFn func(t *Task)) error {
	return s.Mutate(func(doc *Document) error {
		t, ok := doc.Tasks[id]
		if !ok {
			return fmt.Errorf("%w: %s", orcherr.ErrTaskNotFound, id)
		}
		t.Status = status
		if mutateFn != nil {
			mutateFn(t)
		}
		return nil
	})
}

// AppendCompleted moves a task from the active set into completed history.
func (s *FileStore) AppendCompleted(id string, completedAt time.Time) error {
	return s.Mutate(func(doc *Document) error {
		t, ok := doc.Tasks[id]
		if !ok {
			return fmt.Errorf("%w: %s", orcherr.ErrTaskNotFound, id)
		}
		t.Status = StatusCompleted
		t.CompletedAt = completedAt
		delete(doc.Tasks, id)
		doc.Completed[id] = t
		return nil
	})
}

// AppendFailed moves a task from the active set into failed history.
func (s *FileStore) AppendFailed(id, reason string, failedAt time.Time) error {
	return s.Mutate(func(doc *Document) error {
		t, ok := doc.Tasks[id]
		if !ok {
			return fmt.Errorf("%w: %s", orcherr.ErrTaskNotFound, id)
		}
		t.Status = StatusFailed
		t.LastError = reason
		t.FailedAt = failedAt
		delete(doc.Tasks, id)
		doc.Failed[id] = t
		return nil
	})
}

// AddBatch inserts a new batch record.
func (s *FileStore) AddBatch(b *Batch) error {
	return s.Mutate(func(doc *Document) error {
		if _, exists := doc.Batches[b.ID]; exists {
			return fmt.Errorf("batch %s already exists", b.ID)
		}
		for _, tid := range b.TaskIDs {
			if t, ok := doc.Tasks[tid]; ok {
				t.BatchID = b.ID
			}
		}
		doc.Batches[b.ID] = b.Clone()
		return nil
	})
}

// UpdateBatch applies fn to an existing batch.
func (s *FileStore) UpdateBatch(id string, fn func(b *Batch)) error {
	return s.Mutate(func(doc *Document) error {
		b, ok := doc.Batches[id]
		if !ok {
			return fmt.Errorf("%w: %s", orcherr.ErrBatchNotFound, id)
		}
		fn(b)
		return nil
	})
}

// AppendMetric adds one analytics snapshot, pruning anything older than
// retentionDays.
func (s *FileStore) AppendMetric(m AnalyticsMetric, retentionDays int) error {
	return s.Mutate(func(doc *Document) error {
		doc.Metrics = append(doc.Metrics, m)
		cutoff := m.Timestamp.AddDate(0, 0, -retentionDays)
		kept := doc.Metrics[:0]
		for _, existing := range doc.Metrics {
			if existing.Timestamp.After(cutoff) {
				kept = append(kept, existing)
			}
		}
		doc.Metrics = kept
		return nil
	})
}

// GetAgentRecord returns a copy of the named agent's record, or nil if
// unknown.
func (s *FileStore) GetAgentRecord(name string) *AgentRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.doc.Agents[name]
	if !ok {
		return nil
	}
	return a.Clone()
}

// SetAgentRecord upserts an agent's record wholesale.
func (s *FileStore) SetAgentRecord(a *AgentRecord) error {
	return s.Mutate(func(doc *Document) error {
		doc.Agents[a.Name] = a.Clone()
		return nil
	})
}

// UpdateAgentAfterRestart records a new pid and bumps the restart
// bookkeeping for name after the Health Monitor relaunches its process.
func (s *FileStore) UpdateAgentAfterRestart(name string, newPID int, at time.Time) error {
	return s.Mutate(func(doc *Document) error {
		a, ok := doc.Agents[name]
		if !ok {
			a = &AgentRecord{Name: name, Performance: make(map[string]*AgentTaskTypePerformance)}
			doc.Agents[name] = a
		}
		a.PID = newPID
		a.RestartCount++
		a.LastRestart = at
		a.Status = AgentRestarting
		return nil
	})
}

// AddAsyncOperation inserts a new in-flight async operation record.
func (s *FileStore) AddAsyncOperation(op *AsyncOperation) error {
	return s.Mutate(func(doc *Document) error {
		doc.AsyncOps[op.ID] = op
		return nil
	})
}

// UpdateAsyncOperation applies fn to an existing async operation.
func (s *FileStore) UpdateAsyncOperation(id string, fn func(op *AsyncOperation)) error {
	return s.Mutate(func(doc *Document) error {
		op, ok := doc.AsyncOps[id]
		if !ok {
			return fmt.Errorf("async operation %s not found", id)
		}
		fn(op)
		return nil
	})
}

// ChildIndex returns a fresh task-id -> dependent-task-ids map from the
// current snapshot. See scheduler.ChildIndex for the incremental version
// maintained by the scheduler.
func (s *FileStore) ChildIndex() map[string][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.childIndex()
}
