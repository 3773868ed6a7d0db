package health

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/relaysched/orchestrator/internal/config"
)

// ResourceSample is one host sampling pass (§4.5).
type ResourceSample struct {
	CPUPercent    float64
	MemoryPercent float64
	DiskPercent   float64
	LoadPercent   float64 // 1-minute load average * 100
}

// Sample gathers CPU/memory/disk/load via gopsutil, the DOMAIN STACK
// replacement for the shell original's top/vm_stat/df/uptime shell-outs.
func Sample(ctx context.Context, diskPath string) (ResourceSample, error) {
	var s ResourceSample

	cpuPct, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return s, fmt.Errorf("sampling cpu: %w", err)
	}
	if len(cpuPct) > 0 {
		s.CPUPercent = cpuPct[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return s, fmt.Errorf("sampling memory: %w", err)
	}
	s.MemoryPercent = vm.UsedPercent

	if diskPath == "" {
		diskPath = "/"
	}
	du, err := disk.UsageWithContext(ctx, diskPath)
	if err != nil {
		return s, fmt.Errorf("sampling disk: %w", err)
	}
	s.DiskPercent = du.UsedPercent

	avg, err := load.AvgWithContext(ctx)
	if err != nil {
		return s, fmt.Errorf("sampling load: %w", err)
	}
	s.LoadPercent = avg.Load1 * 100

	return s, nil
}

// ThrottleLevel is the coarse 0-3 concurrency-reduction policy driven by
// host resource pressure (§4.5).
type ThrottleLevel int

const (
	ThrottleNone ThrottleLevel = iota
	ThrottleHalf
	ThrottleQuarterAsyncOff
	ThrottlePause
)

// Classify derives a throttle level from a resource sample against cfg's
// soft (ThrottleThreshold) and hard limits. Disk is the emergency-only
// signal: breaching its hard limit is the one case that forces level 3
// (pause) outright. A CPU/memory/load hard-limit breach instead escalates
// that signal straight to level 2 (quarter concurrency, async off) rather
// than pausing the whole system; the highest soft-threshold breach among
// CPU/memory/load otherwise determines the level, per the table in spec
// §4.5.
func Classify(s ResourceSample, cfg config.Config) ThrottleLevel {
	if s.DiskPercent >= cfg.MaxDiskUsage {
		return ThrottlePause
	}

	breaches := 0
	if s.CPUPercent >= cfg.ThrottleThreshold {
		breaches++
	}
	if s.MemoryPercent >= cfg.ThrottleThreshold {
		breaches++
	}
	if s.LoadPercent >= cfg.ThrottleThreshold {
		breaches++
	}

	switch {
	case s.CPUPercent >= cfg.MaxCPUUsage || s.MemoryPercent >= cfg.MaxMemoryUsage || s.LoadPercent >= cfg.MaxSystemLoad:
		return ThrottleQuarterAsyncOff
	case breaches >= 2:
		return ThrottleQuarterAsyncOff
	case breaches == 1:
		return ThrottleHalf
	default:
		return ThrottleNone
	}
}

// CanStartTask applies the type-specific resource gates from §4.5:
// build/compile tasks gate on CPU, test/analyze tasks gate on memory.
// Everything else is ungated beyond the throttle level itself.
func CanStartTask(taskType string, s ResourceSample, cfg config.Config) bool {
	switch taskType {
	case "build", "compile":
		return s.CPUPercent < cfg.MaxCPUUsage
	case "test", "analyze":
		return s.MemoryPercent < cfg.MaxMemoryUsage
	default:
		return true
	}
}
