package health

import (
	"testing"

	"github.com/relaysched/orchestrator/internal/config"
)

func TestClassifyNoneBelowAllThresholds(t *testing.T) {
	cfg := config.DefaultConfig()
	s := ResourceSample{CPUPercent: 10, MemoryPercent: 10, DiskPercent: 10, LoadPercent: 10}
	if got := Classify(s, cfg); got != ThrottleNone {
		t.Fatalf("Classify = %v, want ThrottleNone", got)
	}
}

func TestClassifyHalfOnSingleSoftBreach(t *testing.T) {
	cfg := config.DefaultConfig()
	s := ResourceSample{CPUPercent: cfg.ThrottleThreshold + 1, MemoryPercent: 10, DiskPercent: 10, LoadPercent: 10}
	if got := Classify(s, cfg); got != ThrottleHalf {
		t.Fatalf("Classify = %v, want ThrottleHalf", got)
	}
}

func TestClassifyQuarterAsyncOffOnTwoSoftBreaches(t *testing.T) {
	cfg := config.DefaultConfig()
	s := ResourceSample{
		CPUPercent:    cfg.ThrottleThreshold + 1,
		MemoryPercent: cfg.ThrottleThreshold + 1,
		DiskPercent:   10,
		LoadPercent:   10,
	}
	if got := Classify(s, cfg); got != ThrottleQuarterAsyncOff {
		t.Fatalf("Classify = %v, want ThrottleQuarterAsyncOff", got)
	}
}

func TestClassifyCPUHardLimitEscalatesToQuarterNotPause(t *testing.T) {
	// spec §8 scenario 5: CPU at 92% (above the 90 hard limit) must yield
	// level 2 (quarter MaxConcurrentTasks, async disabled), not a full pause.
	cfg := config.DefaultConfig()
	s := ResourceSample{CPUPercent: 92, MemoryPercent: 10, DiskPercent: 10, LoadPercent: 10}
	if got := Classify(s, cfg); got != ThrottleQuarterAsyncOff {
		t.Fatalf("Classify = %v, want ThrottleQuarterAsyncOff", got)
	}
	limits := DeriveLimits(Classify(s, cfg), cfg)
	if limits.MaxConcurrentTasks != maxInt(cfg.MaxConcurrentTasks/4, 1) || limits.AsyncEnabled {
		t.Fatalf("limits = %+v, want quarter concurrency with async disabled", limits)
	}
}

func TestClassifyPauseOnDiskHardLimitBreach(t *testing.T) {
	// disk is the emergency-only signal per spec's "emergency only" note.
	cfg := config.DefaultConfig()
	s := ResourceSample{CPUPercent: 10, MemoryPercent: 10, DiskPercent: cfg.MaxDiskUsage, LoadPercent: 10}
	if got := Classify(s, cfg); got != ThrottlePause {
		t.Fatalf("Classify = %v, want ThrottlePause", got)
	}
}

func TestDeriveLimitsAtEachLevel(t *testing.T) {
	cfg := config.DefaultConfig()

	none := DeriveLimits(ThrottleNone, cfg)
	if none.MaxConcurrentTasks != cfg.MaxConcurrentTasks || !none.AsyncEnabled {
		t.Fatalf("ThrottleNone limits = %+v, want full concurrency + async", none)
	}

	half := DeriveLimits(ThrottleHalf, cfg)
	if half.MaxConcurrentTasks != maxInt(cfg.MaxConcurrentTasks/2, 1) || !half.AsyncEnabled {
		t.Fatalf("ThrottleHalf limits = %+v", half)
	}

	quarter := DeriveLimits(ThrottleQuarterAsyncOff, cfg)
	if quarter.MaxConcurrentTasks != maxInt(cfg.MaxConcurrentTasks/4, 1) || quarter.AsyncEnabled {
		t.Fatalf("ThrottleQuarterAsyncOff limits = %+v, want async disabled", quarter)
	}

	pause := DeriveLimits(ThrottlePause, cfg)
	if pause.MaxConcurrentTasks != 0 {
		t.Fatalf("ThrottlePause limits = %+v, want zero concurrency", pause)
	}
}

func TestCanStartTaskGatesBuildOnCPU(t *testing.T) {
	cfg := config.DefaultConfig()
	busy := ResourceSample{CPUPercent: cfg.MaxCPUUsage}
	if CanStartTask("build", busy, cfg) {
		t.Fatal("build task should be gated when CPU is at the hard limit")
	}
	idle := ResourceSample{CPUPercent: 5}
	if !CanStartTask("build", idle, cfg) {
		t.Fatal("build task should be allowed when CPU is low")
	}
}
