package store

import "time"

// Task statuses. A task's lifecycle moves through these values; the store
// itself does not check which transitions are allowed.
const (
	StatusQueued        = "queued"
	StatusBlocked       = "blocked"
	StatusAssigned      = "assigned"
	StatusInProgress    = "in_progress"
	StatusRetryScheduled = "retry_scheduled"
	StatusCompleted     = "completed"
	StatusFailed        = "failed"
	StatusCancelled     = "cancelled"
)

// Task is the unit of work the orchestrator dispatches to agents. Priority
// is the caller-supplied base value; the scheduler's effective priority is
// computed on the fly and never persisted back onto Priority.
type Task struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	Description    string    `json:"description"`
	Priority       int       `json:"priority"`
	AssignedAgent  string    `json:"assigned_agent,omitempty"`
	Status         string    `json:"status"`
	Created        time.Time `json:"created"`
	Dependencies   []string  `json:"dependencies,omitempty"`
	WorkflowType   string    `json:"workflow_type,omitempty"`
	StepNumber     int       `json:"step_number,omitempty"`
	ParentTaskID   string    `json:"parent_task_id,omitempty"`
	RetryCount     int       `json:"retry_count"`
	RetryAt        time.Time `json:"retry_at,omitempty"`
	LastError      string    `json:"last_error,omitempty"`
	StartedAt      time.Time `json:"started_at,omitempty"`
	CompletedAt    time.Time `json:"completed_at,omitempty"`
	FailedAt       time.Time `json:"failed_at,omitempty"`
	BatchID        string    `json:"batch_id,omitempty"`
}

// Clone returns a deep-enough copy safe for a caller to mutate without
// racing the store's internal map.
func (t *Task) Clone() *Task {
	c := *t
	if t.Dependencies != nil {
		c.Dependencies = append([]string(nil), t.Dependencies...)
	}
	return &c
}

// Batch statuses.
const (
	BatchActive    = "active"
	BatchAssigned  = "assigned"
	BatchCompleted = "completed"
)

// Batch groups similar tasks dispatched together to one agent.
type Batch struct {
	ID          string    `json:"id"`
	Agent       string    `json:"agent"`
	TaskIDs     []string  `json:"task_ids"`
	Priority    int       `json:"priority"`
	Status      string    `json:"status"`
	Created     time.Time `json:"created"`
	AssignedAt  time.Time `json:"assigned_at,omitempty"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
	Success     bool      `json:"success"`
}

func (b *Batch) Clone() *Batch {
	c := *b
	c.TaskIDs = append([]string(nil), b.TaskIDs...)
	return &c
}

// Agent health/status values.
const (
	AgentUnknown        = "unknown"
	AgentAvailable      = "available"
	AgentBusy           = "busy"
	AgentRestarting     = "restarting"
	AgentCircuitBreaker = "circuit_breaker"
	AgentFailed         = "failed"
	AgentStopped        = "stopped"
)

// AgentHealth is the composite health snapshot recorded by the health
// monitor on every check.
type AgentHealth struct {
	Status       string   `json:"status"`
	Score        int      `json:"score"`
	Issues       []string `json:"issues,omitempty"`
	CheckCount   int      `json:"check_count"`
	FailureCount int      `json:"failure_count"`
}

// AgentTaskTypePerformance is the cumulative completion record for one
// (agent, task type) pair: all-time counts, not limited to a recent window.
type AgentTaskTypePerformance struct {
	Completed             int     `json:"completed"`
	Failed                int     `json:"failed"`
	TotalCompletionTime   float64 `json:"total_completion_time_seconds"`
	LastUpdated           time.Time `json:"last_updated"`
}

// AgentRecord is the orchestrator's view of one worker agent.
type AgentRecord struct {
	Name         string                              `json:"name"`
	Status       string                              `json:"status"`
	PID          int                                 `json:"pid,omitempty"`
	LastSeen     time.Time                           `json:"last_seen"`
	RestartCount int                                 `json:"restart_count"`
	LastRestart  time.Time                           `json:"last_restart,omitempty"`
	Health       AgentHealth                         `json:"health"`
	Performance  map[string]*AgentTaskTypePerformance `json:"performance"`
	Capabilities []string                            `json:"capabilities,omitempty"`
}

func (a *AgentRecord) Clone() *AgentRecord {
	c := *a
	c.Health.Issues = append([]string(nil), a.Health.Issues...)
	c.Capabilities = append([]string(nil), a.Capabilities...)
	c.Performance = make(map[string]*AgentTaskTypePerformance, len(a.Performance))
	for k, v := range a.Performance {
		perfCopy := *v
		c.Performance[k] = &perfCopy
	}
	return &c
}

// AnalyticsMetric is one periodic snapshot of queue and agent state.
type AnalyticsMetric struct {
	Timestamp             time.Time      `json:"timestamp"`
	QueuedCount            int            `json:"queued_count"`
	InProgressCount        int            `json:"in_progress_count"`
	CompletedCount         int            `json:"completed_count"`
	FailedCount            int            `json:"failed_count"`
	AgentUtilization       map[string]float64 `json:"agent_utilization"`
	TaskTypeDistribution   map[string]int     `json:"task_type_distribution"`
	AverageCompletionTime  float64        `json:"average_completion_time_seconds"`
	ThroughputPerHour      float64        `json:"throughput_per_hour"`
	FailureRate            float64        `json:"failure_rate"`
}

// AsyncOperation statuses.
const (
	AsyncRunning   = "running"
	AsyncCompleted = "completed"
	AsyncFailed    = "failed"
)

// AsyncOperation tracks a task dispatched under asynchronous processing.
type AsyncOperation struct {
	ID          string    `json:"id"`
	TaskID      string    `json:"task_id"`
	Agent       string    `json:"agent"`
	Status      string    `json:"status"`
	StartedAt   time.Time `json:"started_at"`
	TimeoutAt   time.Time `json:"timeout_at"`
	RetryCount  int       `json:"retry_count"`
	FinalStatus string    `json:"final_status,omitempty"`
	ErrorReason string    `json:"error_reason,omitempty"`
}
