package health

import (
	"context"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/relaysched/orchestrator/internal/config"
	"github.com/relaysched/orchestrator/internal/store"
)

// Monitor owns one CircuitBreaker per agent and the restart-backoff state
// needed to decide whether an unhealthy agent should be restarted this
// tick, grounded in coordination/agent_monitor.go's ticker+mutex-protected
// map shape.
type Monitor struct {
	cfg      config.Config
	stateDir string

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewMonitor builds a Monitor that looks for per-agent logs under stateDir.
func NewMonitor(cfg config.Config, stateDir string) *Monitor {
	return &Monitor{cfg: cfg, stateDir: stateDir, breakers: make(map[string]*CircuitBreaker)}
}

func (m *Monitor) breakerFor(agent string) *CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()
	cb, ok := m.breakers[agent]
	if !ok {
		cb = NewCircuitBreaker(m.cfg.AgentMaxFailures, m.cfg.CircuitBreakerResetTime)
		m.breakers[agent] = cb
	}
	return cb
}

// CheckAndRecover runs one health-check pass over every known agent:
// computes its composite score, feeds the result into its circuit breaker,
// and — if unhealthy, the breaker still permits it, and auto-recovery is
// enabled — restarts the agent process with exponential backoff between
// attempts.
func (m *Monitor) CheckAndRecover(ctx context.Context, s *store.FileStore, execPaths map[string]string, autoRecover bool, now time.Time) {
	doc := s.Snapshot()
	for name, rec := range doc.Agents {
		logPath := filepath.Join(m.stateDir, name+".log")
		result := CheckAgent(rec, logPath, m.cfg, now)

		newStatus := store.AgentAvailable
		if !result.Healthy {
			newStatus = store.AgentUnknown
		}

		cb := m.breakerFor(name)
		state := cb.RecordCheck(result.Healthy, now)
		if state == CircuitOpen {
			newStatus = store.AgentCircuitBreaker
		}

		err := s.SetAgentRecord(&store.AgentRecord{
			Name:         name,
			Status:       pickStatus(rec.Status, newStatus, state),
			PID:          rec.PID,
			LastSeen:     rec.LastSeen,
			RestartCount: rec.RestartCount,
			LastRestart:  rec.LastRestart,
			Health: store.AgentHealth{
				Status:       healthStatusLabel(result.Healthy),
				Score:        result.Score,
				Issues:       result.Issues,
				CheckCount:   rec.Health.CheckCount + 1,
				FailureCount: failureCount(rec.Health.FailureCount, result.Healthy),
			},
			Performance:  rec.Performance,
			Capabilities: rec.Capabilities,
		})
		if err != nil {
			log.Printf("[health] failed to persist health record for %s: %v", name, err)
			continue
		}

		if result.Healthy || state == CircuitOpen || !autoRecover {
			continue
		}
		if !cb.RestartsAllowed(now) {
			continue
		}
		if rec.RestartCount > 0 && !rec.LastRestart.IsZero() {
			backoff := RestartBackoff(rec.RestartCount, m.cfg.RestartBackoffBase, m.cfg.RestartBackoffCap)
			if now.Sub(rec.LastRestart) < backoff {
				continue
			}
		}

		execPath, ok := execPaths[name]
		if !ok {
			continue
		}
		newPID, err := Restart(ctx, execPath, nil, rec.PID, m.cfg.RestartGracePeriod)
		if err != nil {
			log.Printf("[health] restart of agent %s failed: %v", name, err)
			continue
		}
		_ = s.UpdateAgentAfterRestart(name, newPID, now)
	}
}

func pickStatus(current, computed string, cbState CircuitState) string {
	if cbState == CircuitOpen {
		return store.AgentCircuitBreaker
	}
	if current == store.AgentBusy || current == store.AgentRestarting || current == store.AgentStopped {
		return current
	}
	return computed
}

func healthStatusLabel(healthy bool) string {
	if healthy {
		return "healthy"
	}
	return "unhealthy"
}

func failureCount(prev int, healthy bool) int {
	if healthy {
		return 0
	}
	return prev + 1
}
