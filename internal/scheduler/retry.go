package scheduler

import (
	"math"
	"math/rand"
	"time"

	"github.com/relaysched/orchestrator/internal/config"
	"github.com/relaysched/orchestrator/internal/orcherr"
	"github.com/relaysched/orchestrator/internal/store"
)

// RetryDecision is the outcome of classifying a task failure against the
// retry policy (§4.4.6).
type RetryDecision struct {
	ShouldRetry bool
	RetryAt     time.Time
	Reason      string // why retry was declined, when ShouldRetry is false
}

// successRate computes the cumulative (all-time, not windowed) success rate for (agent, taskType) from
// its performance record, defaulting to 1.0 (no history yet, don't block
// the first attempts).
func successRate(doc *store.Document, agent, taskType string) float64 {
	rec, ok := doc.Agents[agent]
	if !ok {
		return 1.0
	}
	perf, ok := rec.Performance[taskType]
	if !ok || (perf.Completed+perf.Failed) == 0 {
		return 1.0
	}
	return float64(perf.Completed) / float64(perf.Completed+perf.Failed)
}

// queueBacklog counts tasks currently queued across the document.
func queueBacklog(doc *store.Document) int {
	n := 0
	for _, t := range doc.Tasks {
		if t.Status == store.StatusQueued {
			n++
		}
	}
	return n
}

// DecideRetry applies the §4.4.6 gates in order: retry count bound, agent
// load threshold, agent success rate threshold (the load and success-rate
// gates only when the task has an assigned agent), queue backlog threshold.
// errMsg classifies via orcherr.IsTransient; a permanent classification
// short-circuits straight to "no retry" regardless of the other gates.
func DecideRetry(doc *store.Document, t *store.Task, errMsg string, cfg config.Config, now time.Time, rng *rand.Rand) RetryDecision {
	if !orcherr.IsTransient(errMsg, cfg.TransientErrorTokens, cfg.PermanentErrorTokens) {
		return RetryDecision{ShouldRetry: false, Reason: "permanent error"}
	}
	if t.RetryCount >= cfg.MaxRetryAttempts {
		return RetryDecision{ShouldRetry: false, Reason: "retry attempts exhausted"}
	}

	if t.AssignedAgent != "" {
		load := float64(CurrentLoad(doc, t.AssignedAgent)) / float64(maxInt(cfg.MaxAgentLoad, 1))
		if load >= cfg.RetryAgentLoadThreshold {
			return RetryDecision{ShouldRetry: false, Reason: "agent load above retry threshold"}
		}
		if successRate(doc, t.AssignedAgent, t.Type) < cfg.RetrySuccessRateThreshold {
			return RetryDecision{ShouldRetry: false, Reason: "agent success rate below retry threshold"}
		}
	}
	if queueBacklog(doc) >= cfg.RetryQueueBacklogThresh {
		return RetryDecision{ShouldRetry: false, Reason: "queue backlog above retry threshold"}
	}

	delay := backoffDelay(t.RetryCount, cfg, rng)
	return RetryDecision{ShouldRetry: true, RetryAt: now.Add(delay)}
}

// backoffDelay computes RETRY_BASE_DELAY * RETRY_BACKOFF_MULTIPLIER^retryCount,
// capped at RETRY_MAX_DELAY, jittered uniformly by +/- RETRY_JITTER_PERCENT.
func backoffDelay(retryCount int, cfg config.Config, rng *rand.Rand) time.Duration {
	base := float64(cfg.RetryBaseDelay) * math.Pow(cfg.RetryBackoffMultiplier, float64(retryCount))
	capped := math.Min(base, float64(cfg.RetryMaxDelay))

	if cfg.RetryJitterPercent <= 0 {
		return time.Duration(capped)
	}
	jitterRange := capped * cfg.RetryJitterPercent
	var jitter float64
	if rng != nil {
		jitter = (rng.Float64()*2 - 1) * jitterRange
	} else {
		jitter = (rand.Float64()*2 - 1) * jitterRange
	}
	result := capped + jitter
	if result < 0 {
		result = 0
	}
	return time.Duration(result)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// DueRetries returns every task whose retry_at has elapsed, for the
// supervisor tick that moves retry_scheduled tasks back to queued.
func DueRetries(doc *store.Document, now time.Time) []*store.Task {
	var out []*store.Task
	for _, t := range doc.Tasks {
		if t.Status == store.StatusRetryScheduled && !t.RetryAt.After(now) {
			out = append(out, t)
		}
	}
	return out
}
