package scheduler

import (
	"testing"
	"time"

	"github.com/relaysched/orchestrator/internal/config"
	"github.com/relaysched/orchestrator/internal/store"
)

func TestSelectAgentPrefersExactCapabilityMatch(t *testing.T) {
	cfg := config.DefaultConfig()
	now := time.Now()
	doc := &store.Document{
		Tasks: map[string]*store.Task{},
		AsyncOps: map[string]*store.AsyncOperation{},
		Agents: map[string]*store.AgentRecord{
			"generalist": {Name: "generalist", Status: store.AgentAvailable, Capabilities: []string{"docs"}},
			"specialist": {Name: "specialist", Status: store.AgentAvailable, Capabilities: []string{"build"}},
		},
	}
	task := &store.Task{ID: "t1", Type: "build"}

	got := SelectAgent(task, doc, []string{"generalist", "specialist"}, cfg, nil, now)
	if got != "specialist" {
		t.Fatalf("SelectAgent = %q, want %q", got, "specialist")
	}
}

func TestSelectAgentExcludesCircuitBrokenAgents(t *testing.T) {
	cfg := config.DefaultConfig()
	now := time.Now()
	doc := &store.Document{
		Tasks: map[string]*store.Task{},
		AsyncOps: map[string]*store.AsyncOperation{},
		Agents: map[string]*store.AgentRecord{
			"broken": {Name: "broken", Status: store.AgentCircuitBreaker, Capabilities: []string{"build"}},
			"ok":     {Name: "ok", Status: store.AgentAvailable, Capabilities: []string{"build"}},
		},
	}
	task := &store.Task{ID: "t1", Type: "build"}

	got := SelectAgent(task, doc, []string{"broken", "ok"}, cfg, nil, now)
	if got != "ok" {
		t.Fatalf("SelectAgent = %q, want %q (circuit-broken agent should be excluded)", got, "ok")
	}
}

func TestSelectAgentReturnsEmptyWhenNoCandidateClearsFloor(t *testing.T) {
	cfg := config.DefaultConfig()
	now := time.Now()
	doc := &store.Document{
		Tasks: map[string]*store.Task{},
		AsyncOps: map[string]*store.AsyncOperation{},
		Agents: map[string]*store.AgentRecord{
			"mismatched": {Name: "mismatched", Status: store.AgentBusy, Capabilities: []string{"docs"}},
		},
	}
	task := &store.Task{ID: "t1", Type: "security"}

	got := SelectAgent(task, doc, []string{"mismatched"}, cfg, nil, now)
	if got != "" {
		t.Fatalf("SelectAgent = %q, want empty (no candidate clears the capability floor)", got)
	}
}

func TestSelectAgentMandatoryShortCircuits(t *testing.T) {
	cfg := config.DefaultConfig()
	now := time.Now()
	doc := &store.Document{
		Tasks: map[string]*store.Task{},
		AsyncOps: map[string]*store.AsyncOperation{},
		Agents: map[string]*store.AgentRecord{
			"best-scoring": {Name: "best-scoring", Status: store.AgentAvailable, Capabilities: []string{"deploy"}},
		},
	}
	task := &store.Task{ID: "t1", Type: "deploy"}
	mandatory := func(taskType string) (string, bool) {
		if taskType == "deploy" {
			return "deploy-bot", true
		}
		return "", false
	}

	got := SelectAgent(task, doc, []string{"best-scoring"}, cfg, mandatory, now)
	if got != "deploy-bot" {
		t.Fatalf("SelectAgent = %q, want mandatory agent %q", got, "deploy-bot")
	}
}

func TestLoadScorePiecewiseBuckets(t *testing.T) {
	cases := []struct {
		load, max int
		want      float64
	}{
		{2, 10, 100}, // 20%
		{5, 10, 60},  // 50%
		{7, 10, 40},  // 70%
		{9, 10, 20},  // 90%
	}
	for _, c := range cases {
		got := LoadScore(c.load, c.max, store.AgentUnknown)
		if got != c.want {
			t.Fatalf("LoadScore(%d,%d) = %v, want %v", c.load, c.max, got, c.want)
		}
	}
}
