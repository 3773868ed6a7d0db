package scheduler

import (
	"sync"

	"golang.org/x/time/rate"
)

// AgentLimiter is a per-agent token bucket that DispatchSync and
// DispatchAsync consult before assigning a task to an agent: an agent that
// has exhausted its bucket is skipped for that task. The retry policy does
// not consult it; its load gate uses CurrentLoad.
type AgentLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	r        rate.Limit
	b        int
}

// NewAgentLimiter creates a limiter allowing r events/sec with burst b per
// agent key, lazily initialized on first use.
func NewAgentLimiter(r float64, b int) *AgentLimiter {
	return &AgentLimiter{limiters: make(map[string]*rate.Limiter), r: rate.Limit(r), b: b}
}

func (l *AgentLimiter) get(agent string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[agent]
	if !ok {
		lim = rate.NewLimiter(l.r, l.b)
		l.limiters[agent] = lim
	}
	return lim
}

// Allow reports whether agent may proceed right now, consuming a token if
// so.
func (l *AgentLimiter) Allow(agent string) bool {
	return l.get(agent).Allow()
}
