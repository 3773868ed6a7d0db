// Package config holds every tuning constant the orchestrator components
// read, loaded once at startup and passed by reference.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the single immutable configuration value shared by every
// component. Nothing in the orchestrator reads os.Getenv directly outside
// of Load.
type Config struct {
	StateDir string `mapstructure:"state_dir"`

	// Queue Manager
	MaxQueuedTasks           int           `mapstructure:"max_queued_tasks"`
	MaxQueueSize             int           `mapstructure:"max_queue_size"`
	TaskRetentionDays        int           `mapstructure:"task_retention_days"`
	MaxCompletedHistory      int           `mapstructure:"max_completed_history"`
	TaskExpiration           time.Duration `mapstructure:"task_expiration"`
	DedupSimilarityThreshold float64       `mapstructure:"dedup_similarity_threshold"`
	DedupWindow              time.Duration `mapstructure:"dedup_window"`
	RestartTaskDedupWindow   time.Duration `mapstructure:"restart_task_dedup_window"`
	HealthTaskDailyCap       int           `mapstructure:"health_task_daily_cap"`
	CompressionThreshold     int           `mapstructure:"compression_threshold"`
	CompressionRetentionDays int           `mapstructure:"compression_retention_days"`
	MaxArchiveFiles          int           `mapstructure:"max_archive_files"`
	ArchiveDSN               string        `mapstructure:"archive_dsn"`
	DedupCacheRedisAddr      string        `mapstructure:"dedup_cache_redis_addr"`

	// Scheduler
	MaxBatchSize              int           `mapstructure:"max_batch_size"`
	MaxBatchesPerCycle        int           `mapstructure:"max_batches_per_cycle"`
	BatchInterval             time.Duration `mapstructure:"batch_interval"`
	BatchSimilarityThreshold  float64       `mapstructure:"batch_similarity_threshold"`
	MaxActiveBatches          int           `mapstructure:"max_active_batches"`
	MaxConcurrentTasks        int           `mapstructure:"max_concurrent_tasks"`
	AsyncTimeout              time.Duration `mapstructure:"async_timeout"`
	MaxRetryAttempts          int           `mapstructure:"max_retry_attempts"`
	RetryBaseDelay            time.Duration `mapstructure:"retry_base_delay"`
	RetryBackoffMultiplier    float64       `mapstructure:"retry_backoff_multiplier"`
	RetryMaxDelay             time.Duration `mapstructure:"retry_max_delay"`
	RetryJitterPercent        float64       `mapstructure:"retry_jitter_percent"`
	RetryAgentLoadThreshold   float64       `mapstructure:"retry_agent_load_threshold"`
	RetryQueueBacklogThresh   int           `mapstructure:"retry_queue_backlog_threshold"`
	RetrySuccessRateThreshold float64       `mapstructure:"retry_success_rate_threshold"`
	AgentPerformanceWindow    int           `mapstructure:"agent_performance_window"`
	TransientErrorTokens      []string      `mapstructure:"transient_error_tokens"`
	PermanentErrorTokens      []string      `mapstructure:"permanent_error_tokens"`

	// Agent selection weights (must sum to 1.0)
	WeightCapability float64 `mapstructure:"weight_capability"`
	WeightLoad       float64 `mapstructure:"weight_load"`
	WeightPerf       float64 `mapstructure:"weight_perf"`
	MaxAgentLoad     int     `mapstructure:"max_agent_load"`

	// Health & Resource Monitor
	AgentHealthCheckInterval time.Duration `mapstructure:"agent_health_check_interval"`
	AgentHealthTimeout       time.Duration `mapstructure:"agent_health_timeout"`
	AgentMaxFailures         int           `mapstructure:"agent_max_failures"`
	CircuitBreakerResetTime  time.Duration `mapstructure:"circuit_breaker_reset_time"`
	RestartGracePeriod       time.Duration `mapstructure:"restart_grace_period"`
	RestartBackoffBase       time.Duration `mapstructure:"restart_backoff_base"`
	RestartBackoffCap        time.Duration `mapstructure:"restart_backoff_cap"`
	ResourceCheckInterval    time.Duration `mapstructure:"resource_check_interval"`
	ThrottleThreshold        float64       `mapstructure:"throttle_threshold"`
	MaxCPUUsage              float64       `mapstructure:"max_cpu_usage"`
	MaxMemoryUsage           float64       `mapstructure:"max_memory_usage"`
	MaxDiskUsage             float64       `mapstructure:"max_disk_usage"`
	MaxSystemLoad            float64       `mapstructure:"max_system_load"`
	BurstLimit               int           `mapstructure:"burst_limit"`
	SelfMaxResidentMB        int           `mapstructure:"self_max_resident_mb"`
	SelfMaxQueueBacklog      int           `mapstructure:"self_max_queue_backlog"`

	// Analytics / Supervisor
	AnalyticsRetentionDays  int           `mapstructure:"analytics_retention_days"`
	AnalyticsInterval       time.Duration `mapstructure:"analytics_interval"`
	ReportInterval          time.Duration `mapstructure:"report_interval"`
	StatusReportInterval    time.Duration `mapstructure:"status_report_interval"`
	TickInterval            time.Duration `mapstructure:"tick_interval"`
	HTTPAddr                string        `mapstructure:"http_addr"`
}

// DefaultConfig returns the defaults named in section 4 of the orchestrator
// specification.
func DefaultConfig() Config {
	return Config{
		StateDir: "./orchestrator-state",

		MaxQueuedTasks:           200,
		MaxQueueSize:             500,
		TaskRetentionDays:        7,
		MaxCompletedHistory:      500,
		TaskExpiration:           24 * time.Hour,
		DedupSimilarityThreshold: 0.70,
		DedupWindow:              24 * time.Hour,
		RestartTaskDedupWindow:   24 * time.Hour,
		HealthTaskDailyCap:       2,
		CompressionThreshold:     500,
		CompressionRetentionDays: 30,
		MaxArchiveFiles:          10,

		MaxBatchSize:              5,
		MaxBatchesPerCycle:        10,
		BatchInterval:             2 * time.Second,
		BatchSimilarityThreshold:  0.6,
		MaxActiveBatches:          3,
		MaxConcurrentTasks:        3,
		AsyncTimeout:              10 * time.Minute,
		MaxRetryAttempts:          3,
		RetryBaseDelay:            60 * time.Second,
		RetryBackoffMultiplier:    2.0,
		RetryMaxDelay:             30 * time.Minute,
		RetryJitterPercent:        0.1,
		RetryAgentLoadThreshold:   0.8,
		RetryQueueBacklogThresh:   100,
		RetrySuccessRateThreshold: 0.5,
		AgentPerformanceWindow:    20,
		TransientErrorTokens: []string{
			"timeout", "connection refused", "connection reset", "temporarily unavailable",
			"econnrefused", "etimedout", "network", "resource temporarily unavailable",
		},
		PermanentErrorTokens: []string{
			"permission denied", "unauthorized", "authentication", "not found",
			"invalid input", "no such file",
		},

		WeightCapability: 0.4,
		WeightLoad:       0.3,
		WeightPerf:       0.3,
		MaxAgentLoad:     3,

		AgentHealthCheckInterval: 60 * time.Second,
		AgentHealthTimeout:       90 * time.Second,
		AgentMaxFailures:         3,
		CircuitBreakerResetTime:  5 * time.Minute,
		RestartGracePeriod:       5 * time.Second,
		RestartBackoffBase:       60 * time.Second,
		RestartBackoffCap:        3600 * time.Second,
		ResourceCheckInterval:    30 * time.Second,
		ThrottleThreshold:        70,
		MaxCPUUsage:              90,
		MaxMemoryUsage:           85,
		MaxDiskUsage:             90,
		MaxSystemLoad:            80,
		BurstLimit:               6,
		SelfMaxResidentMB:        500,
		SelfMaxQueueBacklog:      100,

		AnalyticsRetentionDays: 30,
		AnalyticsInterval:      5 * time.Minute,
		ReportInterval:         time.Hour,
		StatusReportInterval:   5 * time.Minute,
		TickInterval:           30 * time.Second,
		HTTPAddr:               "",
	}
}

// Load layers a YAML config file (if present) and ORCHESTRATOR_-prefixed
// environment variables over the defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetEnvPrefix("ORCHESTRATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks cross-field invariants that a flat defaults struct can't
// enforce on its own.
func (c Config) Validate() error {
	sum := c.WeightCapability + c.WeightLoad + c.WeightPerf
	if sum < 0.99 || sum > 1.01 {
		return fmt.Errorf("agent selection weights must sum to 1.0, got %.3f", sum)
	}
	if c.MaxQueuedTasks <= 0 || c.MaxQueueSize <= 0 {
		return fmt.Errorf("queue capacity limits must be positive")
	}
	if c.MaxQueuedTasks > c.MaxQueueSize {
		return fmt.Errorf("max_queued_tasks (%d) must not exceed max_queue_size (%d)", c.MaxQueuedTasks, c.MaxQueueSize)
	}
	return nil
}
