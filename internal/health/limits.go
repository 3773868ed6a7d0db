package health

import "github.com/relaysched/orchestrator/internal/config"

// RuntimeLimits is the immutable value the resource monitor produces each
// tick and the Scheduler reads, replacing the shell original's
// process-wide environment-variable channel (spec §9) with an explicit
// value passed by reference.
type RuntimeLimits struct {
	MaxConcurrentTasks int
	AsyncEnabled       bool
	Level              ThrottleLevel
	BurstAllowed       int
}

// DeriveLimits turns a throttle level into the concrete concurrency
// reduction the level implies (§4.5): 0 normal (burst allowed up to
// BurstLimit), 1 halves MaxConcurrentTasks, 2 quarters it and disables
// async dispatch, 3 pauses new work entirely.
func DeriveLimits(level ThrottleLevel, cfg config.Config) RuntimeLimits {
	switch level {
	case ThrottleHalf:
		return RuntimeLimits{MaxConcurrentTasks: maxInt(cfg.MaxConcurrentTasks/2, 1), AsyncEnabled: true, Level: level}
	case ThrottleQuarterAsyncOff:
		return RuntimeLimits{MaxConcurrentTasks: maxInt(cfg.MaxConcurrentTasks/4, 1), AsyncEnabled: false, Level: level}
	case ThrottlePause:
		return RuntimeLimits{MaxConcurrentTasks: 0, AsyncEnabled: false, Level: level}
	default:
		return RuntimeLimits{MaxConcurrentTasks: cfg.MaxConcurrentTasks, AsyncEnabled: true, Level: level, BurstAllowed: cfg.BurstLimit}
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
