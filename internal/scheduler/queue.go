package scheduler

import (
	"container/heap"
	"sync"
	"time"

	"github.com/relaysched/orchestrator/internal/store"
)

// readyQueue implements heap.Interface over tasks ordered by descending
// effective priority (oldest-created wins ties), per §4.4.1/§4.4.5. Unlike
// the teacher's TaskQueue, aging is not computed in Less: effective
// priority is precomputed by priority.go and this just orders by that
// value, recomputed fresh each time the queue is rebuilt for a tick.
type readyQueue struct {
	tasks []*store.Task
	prio  map[string]int
}

func (q readyQueue) Len() int { return len(q.tasks) }

func (q readyQueue) Less(i, j int) bool {
	pi, pj := q.prio[q.tasks[i].ID], q.prio[q.tasks[j].ID]
	if pi != pj {
		return pi > pj
	}
	return q.tasks[i].Created.Before(q.tasks[j].Created)
}

func (q readyQueue) Swap(i, j int) { q.tasks[i], q.tasks[j] = q.tasks[j], q.tasks[i] }

func (q *readyQueue) Push(x interface{}) { q.tasks = append(q.tasks, x.(*store.Task)) }

func (q *readyQueue) Pop() interface{} {
	old := q.tasks
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	q.tasks = old[:n-1]
	return item
}

// ReadyQueue is a thread-safe priority queue of dispatch-eligible tasks.
type ReadyQueue struct {
	mu sync.Mutex
	rq readyQueue
}

// NewReadyQueue builds a queue from tasks, ranked by EffectivePriority as
// of now.
func NewReadyQueue(tasks []*store.Task, now time.Time) *ReadyQueue {
	prio := make(map[string]int, len(tasks))
	for _, t := range tasks {
		prio[t.ID] = EffectivePriority(t, now)
	}
	q := &ReadyQueue{rq: readyQueue{tasks: append([]*store.Task(nil), tasks...), prio: prio}}
	heap.Init(&q.rq)
	return q
}

// Pop removes and returns the highest-priority task, or nil if empty.
func (q *ReadyQueue) Pop() *store.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.rq.Len() == 0 {
		return nil
	}
	return heap.Pop(&q.rq).(*store.Task)
}

// Len reports the number of tasks remaining.
func (q *ReadyQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.rq.Len()
}
