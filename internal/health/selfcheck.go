package health

import (
	"os"
	"runtime"

	"github.com/relaysched/orchestrator/internal/config"
	"github.com/relaysched/orchestrator/internal/store"
)

// SelfCheckResult is the orchestrator's own health snapshot (§4.5
// "Orchestrator self-check").
type SelfCheckResult struct {
	Healthy         bool
	Score           int
	Issues          []string
	ResidentMemory  uint64
	AvailableAgents int
	QueuedBacklog   int
}

// SelfCheck inspects: state directory accessible (an os.Stat of stateDir;
// the queue and agent files inside it are not opened), available agents
// > 0, queued backlog under the configured cap, and own resident memory
// under SelfMaxResidentMB.
func SelfCheck(stateDir string, doc *store.Document, cfg config.Config) SelfCheckResult {
	var issues []string
	score := 100

	if _, err := os.Stat(stateDir); err != nil {
		issues = append(issues, "state directory inaccessible: "+err.Error())
		score -= 40
	}

	available := 0
	for _, a := range doc.Agents {
		if a.Status == store.AgentAvailable {
			available++
		}
	}
	if available == 0 && len(doc.Agents) > 0 {
		issues = append(issues, "no available agents")
		score -= 30
	}

	backlog := 0
	for _, t := range doc.Tasks {
		if t.Status == store.StatusQueued {
			backlog++
		}
	}
	if backlog >= cfg.SelfMaxQueueBacklog {
		issues = append(issues, "queued backlog exceeds self-check threshold")
		score -= 20
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	residentMB := m.Sys / (1024 * 1024)
	if int(residentMB) >= cfg.SelfMaxResidentMB {
		issues = append(issues, "resident memory exceeds self-check threshold")
		score -= 20
	}

	if score < 0 {
		score = 0
	}
	return SelfCheckResult{
		Healthy:         score >= 50,
		Score:           score,
		Issues:          issues,
		ResidentMemory:  m.Sys,
		AvailableAgents: available,
		QueuedBacklog:   backlog,
	}
}
