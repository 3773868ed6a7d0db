package scheduler

import (
	"math/rand"
	"testing"
	"time"

	"github.com/relaysched/orchestrator/internal/config"
	"github.com/relaysched/orchestrator/internal/store"
)

func TestDecideRetryTransientFailureSchedulesBackoff(t *testing.T) {
	cfg := config.DefaultConfig()
	now := time.Now()
	doc := &store.Document{Tasks: map[string]*store.Task{}, Agents: map[string]*store.AgentRecord{}}

	task := &store.Task{ID: "t1", Type: "build", RetryCount: 0}
	rng := rand.New(rand.NewSource(1))
	decision := DecideRetry(doc, task, "connection refused", cfg, now, rng)

	if !decision.ShouldRetry {
		t.Fatalf("expected retry for a transient error, got decline: %s", decision.Reason)
	}
	minExpected := now.Add(cfg.RetryBaseDelay - time.Duration(float64(cfg.RetryBaseDelay)*cfg.RetryJitterPercent))
	maxExpected := now.Add(cfg.RetryBaseDelay + time.Duration(float64(cfg.RetryBaseDelay)*cfg.RetryJitterPercent))
	if decision.RetryAt.Before(minExpected) || decision.RetryAt.After(maxExpected) {
		t.Fatalf("RetryAt %v outside expected jittered window [%v, %v]", decision.RetryAt, minExpected, maxExpected)
	}
}

func TestDecideRetryPermanentFailureDeclines(t *testing.T) {
	cfg := config.DefaultConfig()
	now := time.Now()
	doc := &store.Document{Tasks: map[string]*store.Task{}, Agents: map[string]*store.AgentRecord{}}

	task := &store.Task{ID: "t1", Type: "build", RetryCount: 0}
	decision := DecideRetry(doc, task, "permission denied", cfg, now, rand.New(rand.NewSource(1)))

	if decision.ShouldRetry {
		t.Fatal("expected permanent error to decline retry")
	}
	if decision.Reason != "permanent error" {
		t.Fatalf("decision.Reason = %q, want %q", decision.Reason, "permanent error")
	}
}

func TestDecideRetryDeclinesPastMaxAttempts(t *testing.T) {
	cfg := config.DefaultConfig()
	now := time.Now()
	doc := &store.Document{Tasks: map[string]*store.Task{}, Agents: map[string]*store.AgentRecord{}}

	task := &store.Task{ID: "t1", Type: "build", RetryCount: cfg.MaxRetryAttempts}
	decision := DecideRetry(doc, task, "timeout", cfg, now, rand.New(rand.NewSource(1)))

	if decision.ShouldRetry {
		t.Fatal("expected decline once retry attempts are exhausted")
	}
}

func TestDecideRetryDeclinesWhenAgentSuccessRateTooLow(t *testing.T) {
	cfg := config.DefaultConfig()
	now := time.Now()
	doc := &store.Document{
		Tasks: map[string]*store.Task{},
		Agents: map[string]*store.AgentRecord{
			"agent-a": {
				Name: "agent-a",
				Performance: map[string]*store.AgentTaskTypePerformance{
					"build": {Completed: 1, Failed: 9},
				},
			},
		},
	}

	task := &store.Task{ID: "t1", Type: "build", AssignedAgent: "agent-a", RetryCount: 0}
	decision := DecideRetry(doc, task, "timeout", cfg, now, rand.New(rand.NewSource(1)))

	if decision.ShouldRetry {
		t.Fatal("expected decline when agent's rolling success rate is below threshold")
	}
}

func TestBackoffDelayGrowsWithRetryCountAndCaps(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RetryJitterPercent = 0
	rng := rand.New(rand.NewSource(1))

	d0 := backoffDelay(0, cfg, rng)
	d1 := backoffDelay(1, cfg, rng)
	if d1 <= d0 {
		t.Fatalf("expected backoff to grow with retry count: d0=%v d1=%v", d0, d1)
	}

	dHuge := backoffDelay(20, cfg, rng)
	if dHuge != cfg.RetryMaxDelay {
		t.Fatalf("expected backoff to cap at RetryMaxDelay, got %v", dHuge)
	}
}

func TestDueRetriesReturnsOnlyElapsedOnes(t *testing.T) {
	now := time.Now()
	doc := &store.Document{
		Tasks: map[string]*store.Task{
			"due":     {ID: "due", Status: store.StatusRetryScheduled, RetryAt: now.Add(-time.Minute)},
			"pending": {ID: "pending", Status: store.StatusRetryScheduled, RetryAt: now.Add(time.Minute)},
			"other":   {ID: "other", Status: store.StatusQueued},
		},
	}

	due := DueRetries(doc, now)
	if len(due) != 1 || due[0].ID != "due" {
		t.Fatalf("expected only the elapsed retry_scheduled task, got %v", due)
	}
}
