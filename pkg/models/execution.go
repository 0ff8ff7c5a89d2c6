package models

import "time"

// ExecutionStatus is the lifecycle state of one run.
type ExecutionStatus string

const (
	ExecutionStatusPending ExecutionStatus = "PENDING"
	ExecutionStatusRunning ExecutionStatus = "RUNNING"
	ExecutionStatusSuccess ExecutionStatus = "SUCCESS"
	ExecutionStatusFail    ExecutionStatus = "FAIL"
	ExecutionStatusPaused  ExecutionStatus = "PAUSED"
)

// IsTerminal reports whether no further transition is expected.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusSuccess || s == ExecutionStatusFail || s == ExecutionStatusPaused
}

// StepStatus is the state of one executed action node.
type StepStatus string

const (
	StepStatusPending StepStatus = "PENDING"
	StepStatusSuccess StepStatus = "SUCCESS"
	StepStatusFail    StepStatus = "FAIL"
)

// LogLevel is the severity of an execution log entry.
type LogLevel string

const (
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogEntry is one line of the append-only execution audit trail.
type LogEntry struct {
	At       time.Time `json:"at"`
	Level    LogLevel  `json:"level"`
	Message  string    `json:"message"`
	StepKey  string    `json:"stepKey,omitempty"`
	Error    string    `json:"error,omitempty"`
	Attempt  int       `json:"attempt,omitempty"`
	Attempts int       `json:"attempts,omitempty"`
	DelayMs  int64     `json:"delayMs,omitempty"`
	Source   string    `json:"source,omitempty"`
}

// NewLogEntry builds an entry stamped with the current UTC time.
func NewLogEntry(level LogLevel, message string) LogEntry {
	return LogEntry{
		At:      time.Now().UTC(),
		Level:   level,
		Message: message,
	}
}

// Execution is one instantiation of a workflow firing.
type Execution struct {
	ID         string          `json:"id"`
	WorkflowID string          `json:"workflowId"`
	Status     ExecutionStatus `json:"status"`
	Logs       []LogEntry      `json:"logs"`
	StartedAt  *time.Time      `json:"startedAt,omitempty"`
	FinishedAt *time.Time      `json:"finishedAt,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`

	Steps []*ExecutionStep `json:"steps,omitempty"`
}

// Duration returns the wall time of a finished run.
func (e *Execution) Duration() (time.Duration, bool) {
	if e.StartedAt == nil || e.FinishedAt == nil {
		return 0, false
	}

	return e.FinishedAt.Sub(*e.StartedAt), true
}

// ExecutionUpdate carries the fields the orchestrator mutates on an execution.
// Nil pointers leave the stored value unchanged.
type ExecutionUpdate struct {
	Status     ExecutionStatus
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// ExecutionStep is the record of one executed action node within a run.
type ExecutionStep struct {
	ID          string     `json:"id"`
	ExecutionID string     `json:"executionId"`
	StepKey     string     `json:"stepKey"`
	StepOrder   int        `json:"stepOrder"`
	Status      StepStatus `json:"status"`
	Input       any        `json:"input,omitempty"`
	Output      any        `json:"output,omitempty"`
	DurationMs  int64      `json:"duration"`
	CreatedAt   time.Time  `json:"createdAt"`
}
