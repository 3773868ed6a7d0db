// Package health implements the Health & Resource Monitor (spec §4.5):
// per-agent liveness checks with circuit-breaker recovery and auto-restart,
// an orchestrator self-check, and host CPU/memory/disk/load sampling with
// throttle-level policy.
package health

import (
	"bufio"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/relaysched/orchestrator/internal/config"
	"github.com/relaysched/orchestrator/internal/store"
)

// processAlive reports whether pid refers to a live process. On POSIX
// systems sending signal 0 checks existence without side effects;
// os.FindProcess never fails on Unix so the real test happens in Signal.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// recentErrorCount scans the last n lines of logPath for case-insensitive
// "error"/"fatal" markers, per §4.5's "recent-error count in agent log
// (threshold 5 of last 50 lines)".
func recentErrorCount(logPath string, lastN int) int {
	f, err := os.Open(logPath)
	if err != nil {
		return 0
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if len(lines) > lastN {
			lines = lines[1:]
		}
	}

	count := 0
	for _, l := range lines {
		lower := strings.ToLower(l)
		if strings.Contains(lower, "error") || strings.Contains(lower, "fatal") {
			count++
		}
	}
	return count
}

// CheckResult is the outcome of one agent health check.
type CheckResult struct {
	Healthy bool
	Score   int
	Issues  []string
}

// CheckAgent runs the composite liveness check from §4.5: process
// liveness via pid, responsiveness via last_seen, recent-error count in
// the agent's log, and restart frequency. logPath may be empty if the
// agent has no log file yet.
func CheckAgent(rec *store.AgentRecord, logPath string, cfg config.Config, now time.Time) CheckResult {
	var issues []string
	score := 100

	processDead := rec.PID != 0 && !processAlive(rec.PID)
	if processDead {
		issues = append(issues, "process not running")
		score -= 50
	}

	unresponsive := !rec.LastSeen.IsZero() && now.Sub(rec.LastSeen) > cfg.AgentHealthTimeout
	if unresponsive {
		issues = append(issues, "unresponsive: last_seen exceeds health timeout")
		score -= 30
	}

	if logPath != "" {
		const errorThreshold = 5
		const windowLines = 50
		if n := recentErrorCount(logPath, windowLines); n >= errorThreshold {
			issues = append(issues, "elevated error rate in agent log")
			score -= 20
		}
	}

	if rec.RestartCount > 0 && !rec.LastRestart.IsZero() && now.Sub(rec.LastRestart) < cfg.AgentHealthCheckInterval*3 {
		issues = append(issues, "recent restart")
		score -= 10
	}

	if score < 0 {
		score = 0
	}

	healthy := score >= 50 && !processDead && !unresponsive
	return CheckResult{Healthy: healthy, Score: score, Issues: issues}
}
