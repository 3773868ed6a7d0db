package scheduler

import (
	"context"
	"encoding/json"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/relaysched/orchestrator/internal/config"
	"github.com/relaysched/orchestrator/internal/store"
	"github.com/relaysched/orchestrator/internal/transport"
)

// Engine ties the scheduler's stateful pieces (per-agent rate limiter,
// incremental child index) to one configuration. It holds no reference to
// the Store or Transport directly — those are passed explicitly to each
// tick method, matching the Store's "Scheduler mutates only via Store
// operations" ownership rule (spec §3).
type Engine struct {
	cfg       config.Config
	Limiter   *AgentLimiter
	Children  *ChildIndex
	Mandatory MandatoryAgentFunc
}

// NewEngine builds an Engine from cfg. The limiter rate mirrors
// MaxAgentLoad tasks/sec per agent with a matching burst, the same ratio
// the teacher uses between its configured rate and burst.
func NewEngine(cfg config.Config, doc *store.Document) *Engine {
	return &Engine{
		cfg:      cfg,
		Limiter:  NewAgentLimiter(float64(cfg.MaxAgentLoad), cfg.MaxAgentLoad),
		Children: NewChildIndex(doc),
	}
}

// logDecision emits a JSON-line scheduling decision.
func logDecision(kind string, fields map[string]interface{}) {
	fields["decision"] = kind
	fields["ts"] = time.Now().Unix()
	b, err := json.Marshal(fields)
	if err != nil {
		log.Printf("[scheduler] %s (unloggable: %v)", kind, err)
		return
	}
	log.Printf("[scheduler] %s", string(b))
}

// candidateAgentNames returns every known agent name from doc, stable
// order not required since SelectAgent scores all of them.
func candidateAgentNames(doc *store.Document) []string {
	names := make([]string, 0, len(doc.Agents))
	for name := range doc.Agents {
		names = append(names, name)
	}
	return names
}

// DispatchSync runs the two-pass synchronous dispatch of §4.4.5: critical/
// high-priority tasks first, then the remainder in descending effective
// priority, assigning one task at a time up to cfg.MaxBatchesPerCycle
// assignments per cycle with a sleep of cfg.BatchInterval between
// assignments. Returns the number of tasks assigned.
func (e *Engine) DispatchSync(ctx context.Context, s *store.FileStore, streams *transport.Streams, maxConcurrentTasks int, now time.Time) (int, error) {
	doc := s.Snapshot()

	var critical, normal []*store.Task
	for _, t := range doc.Tasks {
		if t.Status != store.StatusQueued {
			continue
		}
		if IsCriticalOrHighPriority(t, now) {
			critical = append(critical, t)
		} else {
			normal = append(normal, t)
		}
	}
	ByEffectivePriorityDesc(critical, now)
	ByEffectivePriorityDesc(normal, now)

	dispatched := 0
	batches := 0
	ordered := append(critical, normal...)

	for _, t := range ordered {
		if batches >= e.cfg.MaxBatchesPerCycle {
			break
		}
		agent := SelectAgent(t, doc, candidateAgentNames(doc), e.cfg, e.Mandatory, now)
		if agent == "" {
			continue
		}
		if !e.Limiter.Allow(agent) {
			continue
		}

		assignErr := s.UpdateTaskStatus(t.ID, store.StatusAssigned, func(task *store.Task) {
			task.AssignedAgent = agent
		})
		if assignErr != nil {
			log.Printf("[scheduler] failed to assign task %s: %v", t.ID, assignErr)
			continue
		}
		if err := streams.Append(agent, transport.Event{Kind: transport.EventAssignedTask, TaskID: t.ID}); err != nil {
			log.Printf("[scheduler] failed to notify agent %s of task %s: %v", agent, t.ID, err)
		}
		logDecision("assigned", map[string]interface{}{"task_id": t.ID, "agent": agent, "priority": EffectivePriority(t, now)})

		doc = s.Snapshot()
		dispatched++
		batches++
		if batches < e.cfg.MaxBatchesPerCycle {
			time.Sleep(e.cfg.BatchInterval)
		}
	}
	return dispatched, nil
}

// DispatchBatches creates and assigns batches of similar queued tasks,
// respecting MaxActiveBatches per agent (§4.4.4), then notifies the agent
// with one assigned_batch event per batch.
func (e *Engine) DispatchBatches(ctx context.Context, s *store.FileStore, streams *transport.Streams, now time.Time) (int, error) {
	doc := s.Snapshot()

	byAgent := make(map[string][]*store.Task)
	for _, t := range doc.Tasks {
		if t.Status != store.StatusQueued {
			continue
		}
		agent := SelectAgent(t, doc, candidateAgentNames(doc), e.cfg, e.Mandatory, now)
		if agent == "" {
			continue
		}
		byAgent[agent] = append(byAgent[agent], t)
	}

	created := 0
	for agent, tasks := range byAgent {
		activeBatches := 0
		for _, b := range doc.Batches {
			if b.Agent == agent && b.Status == store.BatchActive {
				activeBatches++
			}
		}
		if activeBatches >= e.cfg.MaxActiveBatches {
			continue
		}

		groups := GroupForBatching(tasks, e.cfg, now)
		for _, group := range groups {
			if activeBatches >= e.cfg.MaxActiveBatches {
				break
			}
			batch := NewBatch(agent, group, now)
			if err := s.AddBatch(batch); err != nil {
				log.Printf("[scheduler] failed to create batch for %s: %v", agent, err)
				continue
			}
			for _, t := range group {
				_ = s.UpdateTaskStatus(t.ID, store.StatusAssigned, func(task *store.Task) {
					task.AssignedAgent = agent
				})
			}
			if err := streams.Append(agent, transport.Event{Kind: transport.EventAssignedBatch, TaskID: batch.ID, Payload: batch.ID}); err != nil {
				log.Printf("[scheduler] failed to notify agent %s of batch %s: %v", agent, batch.ID, err)
			}
			activeBatches++
			created++
		}
	}
	return created, nil
}

// DispatchAsync selects up to maxConcurrentTasks queued tasks per agent,
// opens an AsyncOperation for each, and notifies the agent with a
// start_task event; any task over the per-agent concurrent cap is left
// queued to fall back to synchronous dispatch next tick (§4.4.5).
func (e *Engine) DispatchAsync(ctx context.Context, s *store.FileStore, streams *transport.Streams, maxConcurrentTasks int, asyncTimeout time.Duration, now time.Time) (int, error) {
	doc := s.Snapshot()

	runningByAgent := make(map[string]int)
	for _, op := range doc.AsyncOps {
		if op.Status == store.AsyncRunning {
			runningByAgent[op.Agent]++
		}
	}

	var queued []*store.Task
	for _, t := range doc.Tasks {
		if t.Status == store.StatusQueued {
			queued = append(queued, t)
		}
	}
	ByEffectivePriorityDesc(queued, now)

	opened := 0
	for _, t := range queued {
		agent := SelectAgent(t, doc, candidateAgentNames(doc), e.cfg, e.Mandatory, now)
		if agent == "" {
			continue
		}
		if runningByAgent[agent] >= maxConcurrentTasks {
			continue
		}
		if !e.Limiter.Allow(agent) {
			continue
		}

		op := &store.AsyncOperation{
			ID:        uuid.NewString(),
			TaskID:    t.ID,
			Agent:     agent,
			Status:    store.AsyncRunning,
			StartedAt: now,
			TimeoutAt: now.Add(asyncTimeout),
		}
		if err := s.AddAsyncOperation(op); err != nil {
			log.Printf("[scheduler] failed to open async op for task %s: %v", t.ID, err)
			continue
		}
		if err := s.UpdateTaskStatus(t.ID, store.StatusAssigned, func(task *store.Task) {
			task.AssignedAgent = agent
		}); err != nil {
			log.Printf("[scheduler] failed to mark task %s assigned: %v", t.ID, err)
			continue
		}
		if err := streams.Append(agent, transport.Event{Kind: transport.EventStartTask, TaskID: t.ID}); err != nil {
			log.Printf("[scheduler] failed to notify agent %s of task %s: %v", agent, t.ID, err)
		}
		runningByAgent[agent]++
		opened++
	}
	return opened, nil
}

// ExpireAsyncOperations marks every still-running AsyncOperation past its
// TimeoutAt as failed, and routes the underlying task through the normal
// failure path (ApplyFailed) so it is eligible for retry exactly like a
// transient agent-reported failure (the timeout message contains the
// "timeout" token, which the default transient-error tokens include).
func (e *Engine) ExpireAsyncOperations(s *store.FileStore, now time.Time, rng *rand.Rand) []string {
	doc := s.Snapshot()
	var expired []string
	for id, op := range doc.AsyncOps {
		if op.Status != store.AsyncRunning || now.Before(op.TimeoutAt) {
			continue
		}
		opID := id
		taskID := op.TaskID
		_ = s.UpdateAsyncOperation(opID, func(o *store.AsyncOperation) {
			o.Status = store.AsyncFailed
			o.ErrorReason = "async operation exceeded ASYNC_TIMEOUT"
		})
		_ = ApplyFailed(s, e.Children, taskID, "timeout: async operation exceeded ASYNC_TIMEOUT", e.cfg, now, rng)
		expired = append(expired, opID)
	}
	return expired
}
