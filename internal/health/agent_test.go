package health

import (
	"testing"
	"time"

	"github.com/relaysched/orchestrator/internal/config"
	"github.com/relaysched/orchestrator/internal/store"
)

func TestCheckAgentHealthyWhenAliveAndResponsive(t *testing.T) {
	cfg := config.DefaultConfig()
	now := time.Now()
	rec := &store.AgentRecord{Name: "a", LastSeen: now}
	got := CheckAgent(rec, "", cfg, now)
	if !got.Healthy {
		t.Fatalf("expected healthy, got %+v", got)
	}
}

func TestCheckAgentUnresponsiveIsHardUnhealthy(t *testing.T) {
	// spec §4.5: health status becomes unhealthy if process absent or
	// unresponsive, else healthy. A stale last_seen must force Healthy
	// false even though the score penalty alone (-30) stays above 50.
	cfg := config.DefaultConfig()
	now := time.Now()
	rec := &store.AgentRecord{Name: "a", PID: 0, LastSeen: now.Add(-2 * cfg.AgentHealthTimeout)}
	got := CheckAgent(rec, "", cfg, now)
	if got.Healthy {
		t.Fatalf("expected unresponsive agent to be unhealthy, got %+v", got)
	}
	if got.Score < 50 {
		t.Fatalf("score %d should still clear 50 on the unresponsive penalty alone, to prove the gate (not the score) drives the verdict", got.Score)
	}
}

func TestCheckAgentProcessAbsentIsUnhealthy(t *testing.T) {
	cfg := config.DefaultConfig()
	now := time.Now()
	rec := &store.AgentRecord{Name: "a", PID: 999999999, LastSeen: now}
	got := CheckAgent(rec, "", cfg, now)
	if got.Healthy {
		t.Fatalf("expected absent process to be unhealthy, got %+v", got)
	}
}
