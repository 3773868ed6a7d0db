package supervisor

import (
	"context"
	"encoding/json"
	"log"
	"math/rand"
	"path/filepath"
	"strconv"
	"time"

	"github.com/relaysched/orchestrator/internal/analytics"
	"github.com/relaysched/orchestrator/internal/config"
	"github.com/relaysched/orchestrator/internal/health"
	"github.com/relaysched/orchestrator/internal/queue"
	"github.com/relaysched/orchestrator/internal/scheduler"
	"github.com/relaysched/orchestrator/internal/store"
	"github.com/relaysched/orchestrator/internal/transport"
)

// Ingestor is the hook external task producers (TODO scanner, error-log
// watcher) plug into — out of scope for the core per spec §1, so the
// default Supervisor carries none. Each returns the new tasks it wants
// admitted this tick.
type Ingestor func(ctx context.Context) ([]*store.Task, error)

// Supervisor composes every component into the 30s tick spec §4.6
// describes, following a worker/poller ticker pair.
type Supervisor struct {
	cfg config.Config

	Store     *store.FileStore
	Queue     *queue.Manager
	Engine    *scheduler.Engine
	Health    *health.Monitor
	Out       *transport.Streams // supervisor -> agent
	In        *transport.Streams // agent -> supervisor
	Hub       *StatusHub
	ExecPaths map[string]string
	Ingestors []Ingestor

	rng              *rand.Rand
	lastAnalytics    time.Time
	lastAnalyticsRpt time.Time
	lastStatusReport time.Time
	windowStart      time.Time
	limits           health.RuntimeLimits
}

// New wires a Supervisor from its components. cfg.StateDir is used for the
// orchestrator self-check and per-agent log discovery.
func New(cfg config.Config, s *store.FileStore, qmgr *queue.Manager, out, in *transport.Streams) *Supervisor {
	doc := s.Snapshot()
	now := time.Now()
	return &Supervisor{
		cfg:         cfg,
		Store:       s,
		Queue:       qmgr,
		Engine:      scheduler.NewEngine(cfg, doc),
		Health:      health.NewMonitor(cfg, cfg.StateDir),
		Out:         out,
		In:          in,
		Hub:         NewStatusHub(),
		ExecPaths:   make(map[string]string),
		rng:         rand.New(rand.NewSource(now.UnixNano())),
		windowStart: now,
		limits:      health.DeriveLimits(health.ThrottleNone, cfg),
	}
}

// Tick runs one full pass of the phase order in spec §4.6: resource
// sampling & throttling, storage optimization, queue-limit enforcement,
// batch cleanup, batch creation, notification processing, batch dispatch,
// agent health, orchestrator self-check, async operation processing,
// analytics collection/report, task distribution, periodic status report,
// external-task ingestion.
func (sv *Supervisor) Tick(ctx context.Context) {
	now := time.Now()

	sv.sampleResources(ctx, now)
	sv.optimizeStorage(ctx, now)
	sv.enforceQueueLimits(now)
	sv.cleanupBatches(now)
	sv.createBatches(ctx, now)
	sv.processNotifications(now)
	sv.dispatchBatches(ctx, now)
	sv.checkAgentHealth(ctx, now)
	sv.selfCheck(now)
	sv.processAsyncOperations(ctx, now)
	sv.collectAnalytics(now)
	sv.reportAnalytics(now)
	sv.distributeTasks(ctx, now)
	sv.statusReport(now)
	sv.ingestExternalTasks(ctx)
}

func (sv *Supervisor) sampleResources(ctx context.Context, now time.Time) {
	sample, err := health.Sample(ctx, "/")
	if err != nil {
		log.Printf("[supervisor] resource sampling failed: %v", err)
		return
	}
	level := health.Classify(sample, sv.cfg)
	sv.limits = health.DeriveLimits(level, sv.cfg)
}

func (sv *Supervisor) optimizeStorage(ctx context.Context, now time.Time) {
	if err := sv.Queue.Prune(ctx, sv.Store, now); err != nil {
		log.Printf("[supervisor] retention sweep failed: %v", err)
	}
}

func (sv *Supervisor) enforceQueueLimits(now time.Time) {
	doc := sv.Store.Snapshot()
	queued := 0
	for _, t := range doc.Tasks {
		if t.Status == store.StatusQueued {
			queued++
		}
	}
	if queued > sv.cfg.MaxQueuedTasks {
		log.Printf("[supervisor] queued backlog %d exceeds MaxQueuedTasks %d", queued, sv.cfg.MaxQueuedTasks)
	}
	if _, _, err := sv.Engine.ReconcileDependencyGate(sv.Store, now); err != nil {
		log.Printf("[supervisor] dependency gate reconciliation failed: %v", err)
	}
}

func (sv *Supervisor) cleanupBatches(now time.Time) {
	doc := sv.Store.Snapshot()
	for id, b := range doc.Batches {
		if b.Status != store.BatchCompleted {
			continue
		}
		allTerminal := true
		for _, tid := range b.TaskIDs {
			if _, ok := doc.Tasks[tid]; ok {
				allTerminal = false
				break
			}
		}
		if allTerminal && now.Sub(b.CompletedAt) > 24*time.Hour {
			_ = id // batches are pruned by retention via archived tasks; the batch record itself is left for history/inspection.
		}
	}
}

func (sv *Supervisor) createBatches(ctx context.Context, now time.Time) {
	if sv.limits.MaxConcurrentTasks == 0 {
		return
	}
	if _, err := sv.Engine.DispatchBatches(ctx, sv.Store, sv.Out, now); err != nil {
		log.Printf("[supervisor] batch creation failed: %v", err)
	}
}

func (sv *Supervisor) dispatchBatches(ctx context.Context, now time.Time) {
	if sv.limits.MaxConcurrentTasks == 0 {
		return
	}
	if sv.limits.AsyncEnabled {
		if _, err := sv.Engine.DispatchAsync(ctx, sv.Store, sv.Out, sv.limits.MaxConcurrentTasks, sv.cfg.AsyncTimeout, now); err != nil {
			log.Printf("[supervisor] async dispatch failed: %v", err)
		}
		return
	}
	if _, err := sv.Engine.DispatchSync(ctx, sv.Store, sv.Out, sv.limits.MaxConcurrentTasks, now); err != nil {
		log.Printf("[supervisor] sync dispatch failed: %v", err)
	}
}

// processNotifications drains every agent's inbound stream and applies
// each event exactly once, in arrival order, per spec §4.2.
func (sv *Supervisor) processNotifications(now time.Time) {
	doc := sv.Store.Snapshot()
	for name := range doc.Agents {
		events, err := sv.In.Drain(name)
		if err != nil {
			log.Printf("[supervisor] draining notifications for %s failed: %v", name, err)
			continue
		}
		for _, ev := range events {
			sv.applyEvent(name, ev, now)
		}
	}
}

func (sv *Supervisor) applyEvent(agent string, ev transport.Event, now time.Time) {
	_ = sv.Store.Mutate(func(doc *store.Document) error {
		if rec, ok := doc.Agents[agent]; ok {
			rec.LastSeen = now
		}
		return nil
	})

	switch ev.Kind {
	case transport.EventStarted:
		if err := scheduler.ApplyStarted(sv.Store, ev.TaskID, now); err != nil {
			log.Printf("[supervisor] applying started event for %s: %v", ev.TaskID, err)
		}
	case transport.EventCompleted:
		if err := scheduler.ApplyCompleted(sv.Store, ev.TaskID, now); err != nil {
			log.Printf("[supervisor] applying completed event for %s: %v", ev.TaskID, err)
		}
	case transport.EventFailed:
		if err := scheduler.ApplyFailed(sv.Store, sv.Engine.Children, ev.TaskID, ev.Payload, sv.cfg, now, sv.rng); err != nil {
			log.Printf("[supervisor] applying failed event for %s: %v", ev.TaskID, err)
		}
	case transport.EventBatchCompleted:
		success := ev.Payload == "true"
		if err := scheduler.ApplyBatchCompleted(sv.Store, sv.Engine.Children, ev.TaskID, success, "", sv.cfg, now, sv.rng); err != nil {
			log.Printf("[supervisor] applying batch_completed event for %s: %v", ev.TaskID, err)
		}
	default:
		log.Printf("[supervisor] unknown event kind %q for task %s", ev.Kind, ev.TaskID)
	}
}

func (sv *Supervisor) checkAgentHealth(ctx context.Context, now time.Time) {
	sv.Health.CheckAndRecover(ctx, sv.Store, sv.ExecPaths, len(sv.ExecPaths) > 0, now)
}

func (sv *Supervisor) selfCheck(now time.Time) {
	doc := sv.Store.Snapshot()
	result := health.SelfCheck(sv.cfg.StateDir, doc, sv.cfg)
	if !result.Healthy {
		log.Printf("[supervisor] self-check degraded (score=%d): %v", result.Score, result.Issues)
	}
}

func (sv *Supervisor) processAsyncOperations(ctx context.Context, now time.Time) {
	expired := sv.Engine.ExpireAsyncOperations(sv.Store, now, sv.rng)
	if len(expired) > 0 {
		log.Printf("[supervisor] expired %d async operations past their timeout", len(expired))
	}

	if n, err := sv.Engine.PromoteDueRetries(sv.Store, now); err != nil {
		log.Printf("[supervisor] promoting due retries failed: %v", err)
	} else if n > 0 {
		log.Printf("[supervisor] promoted %d retry_scheduled tasks back to queued", n)
	}
}

func (sv *Supervisor) collectAnalytics(now time.Time) {
	if now.Sub(sv.lastAnalytics) < sv.cfg.AnalyticsInterval {
		return
	}
	sv.lastAnalytics = now

	doc := sv.Store.Snapshot()
	completions := make([]*store.Task, 0, len(doc.Completed))
	for _, t := range doc.Completed {
		completions = append(completions, t)
	}
	m := analytics.Snapshot(doc, completions, sv.windowStart, now)
	if err := sv.Store.AppendMetric(m, sv.cfg.AnalyticsRetentionDays); err != nil {
		log.Printf("[supervisor] appending analytics metric failed: %v", err)
	}
	analytics.Export(doc, m)
	analytics.ThrottleLevelGauge.Set(float64(sv.limits.Level))
}

func (sv *Supervisor) reportAnalytics(now time.Time) {
	if now.Sub(sv.lastAnalyticsRpt) < sv.cfg.ReportInterval {
		return
	}
	sv.lastAnalyticsRpt = now

	doc := sv.Store.Snapshot()
	report := BuildStatusReport(doc, sv.limits, now)
	b, _ := json.Marshal(report)
	log.Printf("[supervisor] hourly report: %s", string(b))
}

func (sv *Supervisor) distributeTasks(ctx context.Context, now time.Time) {
	// Smart-selection assignment already happens inside dispatchBatches;
	// this phase exists as its own named step (per spec §4.6's ordering)
	// to additionally retry any queued task the dispatch passes skipped
	// because every scoring agent was below the capability floor, in case
	// agent availability changed mid-tick.
	if sv.limits.MaxConcurrentTasks == 0 {
		return
	}
	if !sv.limits.AsyncEnabled {
		if _, err := sv.Engine.DispatchSync(ctx, sv.Store, sv.Out, sv.limits.MaxConcurrentTasks, now); err != nil {
			log.Printf("[supervisor] task distribution pass failed: %v", err)
		}
	}
}

func (sv *Supervisor) statusReport(now time.Time) {
	if now.Sub(sv.lastStatusReport) < sv.cfg.StatusReportInterval {
		return
	}
	sv.lastStatusReport = now

	doc := sv.Store.Snapshot()
	report := BuildStatusReport(doc, sv.limits, now)
	sv.Hub.Broadcast(report)
}

func (sv *Supervisor) ingestExternalTasks(ctx context.Context) {
	for _, ingest := range sv.Ingestors {
		tasks, err := ingest(ctx)
		if err != nil {
			log.Printf("[supervisor] external task ingestion failed: %v", err)
			continue
		}
		for _, t := range tasks {
			if t.ID == "" {
				t.ID = strconv.FormatInt(time.Now().UnixNano(), 36)
			}
			if err := sv.Engine.AdmitWithWorkflow(ctx, sv.Queue, sv.Store, t, time.Now()); err != nil {
				log.Printf("[supervisor] admitting externally ingested task %s: %v", t.ID, err)
			}
		}
	}
}

// Run drives Tick on cfg.TickInterval until ctx is cancelled, the same
// worker/poller ticker shape used throughout this package.
func (sv *Supervisor) Run(ctx context.Context) {
	ticker := time.NewTicker(sv.cfg.TickInterval)
	defer ticker.Stop()

	sv.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sv.Tick(ctx)
		}
	}
}

// AgentLogPath is a small helper CLI subcommands use to locate an agent's
// log file under the configured state directory.
func AgentLogPath(stateDir, agent string) string {
	return filepath.Join(stateDir, agent+".log")
}
