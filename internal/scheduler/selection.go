package scheduler

import (
	"time"

	"github.com/relaysched/orchestrator/internal/config"
	"github.com/relaysched/orchestrator/internal/store"
)

// nearCapabilityMatches lists recognized near-match capability pairs
// (§4.4.2); membership is symmetric.
var nearCapabilityMatches = map[string]string{
	"debug":    "fix",
	"fix":      "debug",
	"build":    "test",
	"test":     "build",
	"generate": "create",
	"create":   "generate",
	"ui":       "ux",
	"ux":       "ui",
}

// MandatoryAgentFunc maps a task type to the one agent that must handle it,
// short-circuiting scoring entirely. It returns ok=false for types with no
// mandatory binding.
type MandatoryAgentFunc func(taskType string) (agent string, ok bool)

// CapabilityScore returns 100 for an exact match of taskType against one of
// agent's capabilities, 80 for a recognized near match, else 0; plus +10 if
// the agent is currently available, capped at 100. No static-priority bonus
// is applied.
func CapabilityScore(taskType string, agent *store.AgentRecord) float64 {
	score := 0.0
	exact := false
	near := false
	for _, cap := range agent.Capabilities {
		if cap == taskType {
			exact = true
			break
		}
		if nearCapabilityMatches[taskType] == cap {
			near = true
		}
	}
	switch {
	case exact:
		score = 100
	case near:
		score = 80
	}
	if agent.Status == store.AgentAvailable {
		score += 10
	}
	if score > 100 {
		score = 100
	}
	return score
}

// LoadScore returns the piecewise load-percentage score from §4.4.2, plus
// availability adjustments.
func LoadScore(currentLoad, maxLoad int, status string) float64 {
	pct := 0.0
	if maxLoad > 0 {
		pct = float64(currentLoad) / float64(maxLoad) * 100
	}
	var score float64
	switch {
	case pct <= 40:
		score = 100
	case pct <= 60:
		score = 60
	case pct <= 80:
		score = 40
	default:
		score = 20
	}
	if status == store.AgentAvailable {
		score += 10
	}
	if status == store.AgentBusy {
		score -= 20
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// PerfScore computes the performance term for (agent, taskType) from its
// cumulative completion record (all-time counts, not windowed): base 50, plus a success-rate term in [-20,20]
// and a completion-time term in [-5,5].
func PerfScore(perf *store.AgentTaskTypePerformance) float64 {
	if perf == nil || (perf.Completed+perf.Failed) == 0 {
		return 50
	}
	total := perf.Completed + perf.Failed
	successRate := float64(perf.Completed) / float64(total)
	// successRate in [0,1] -> term in [-20, 20], 0.5 success rate is neutral.
	successTerm := (successRate - 0.5) * 40

	timeTerm := 0.0
	if perf.Completed > 0 {
		avg := perf.TotalCompletionTime / float64(perf.Completed)
		// Faster-than-5-minutes average nudges positive, slower nudges
		// negative, clamped to +/-5.
		const baselineSeconds = 300.0
		timeTerm = (baselineSeconds - avg) / baselineSeconds * 5
		if timeTerm > 5 {
			timeTerm = 5
		}
		if timeTerm < -5 {
			timeTerm = -5
		}
	}
	score := 50 + successTerm + timeTerm
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// CurrentLoad counts agent's in-flight work from doc: tasks assigned or
// in_progress against it, plus running async operations.
func CurrentLoad(doc *store.Document, agentName string) int {
	n := 0
	for _, t := range doc.Tasks {
		if t.AssignedAgent != agentName {
			continue
		}
		if t.Status == store.StatusAssigned || t.Status == store.StatusInProgress {
			n++
		}
	}
	for _, op := range doc.AsyncOps {
		if op.Agent == agentName && op.Status == store.AsyncRunning {
			n++
		}
	}
	return n
}

// capabilityFloor is the minimum capability score an agent must clear before it is
// eligible to be selected at all; below this the task stays queued.
const capabilityFloor = 20

// SelectAgent picks the highest-scoring eligible agent for t out of
// candidates, or "" if none clears the capability floor. mandatory, if
// non-nil and it returns ok, short-circuits scoring entirely.
func SelectAgent(t *store.Task, doc *store.Document, candidates []string, cfg config.Config, mandatory MandatoryAgentFunc, now time.Time) string {
	if mandatory != nil {
		if agent, ok := mandatory(t.Type); ok {
			return agent
		}
	}

	best := ""
	bestScore := -1.0
	for _, name := range candidates {
		agent, ok := doc.Agents[name]
		if !ok {
			continue
		}
		if agent.Status == store.AgentCircuitBreaker || agent.Status == store.AgentFailed || agent.Status == store.AgentStopped {
			continue
		}
		capScore := CapabilityScore(t.Type, agent)
		loadScore := LoadScore(CurrentLoad(doc, name), cfg.MaxAgentLoad, agent.Status)
		perfScore := PerfScore(agent.Performance[t.Type])

		score := cfg.WeightCapability*capScore + cfg.WeightLoad*loadScore + cfg.WeightPerf*perfScore
		if capScore < capabilityFloor {
			continue
		}
		if score > bestScore {
			bestScore = score
			best = name
		}
	}
	return best
}
