package model

import "time"

// Trigger says how a workflow run is initiated.
type Trigger string

const (
	TriggerManual   Trigger = "manual"
	TriggerVoice    Trigger = "voice"
	TriggerSchedule Trigger = "schedule"
	TriggerEvent    Trigger = "event"
)

// FailurePolicy controls what happens when a workflow step fails.
type FailurePolicy string

const (
	FailureSkip  FailurePolicy = "skip"
	FailureAbort FailurePolicy = "abort"
	FailureRetry FailurePolicy = "retry"
)

// ConditionType gates execution of a single step.
type ConditionType string

const (
	ConditionAlways       ConditionType = "always"
	ConditionTimeAfter    ConditionType = "time_after"
	ConditionTimeBefore   ConditionType = "time_before"
	ConditionBridgeActive ConditionType = "bridge_active"
)

// StepCondition is evaluated immediately before a step runs.
// Value holds an HH:MM clock time for the time_* condition types.
type StepCondition struct {
	Type  ConditionType `yaml:"type"`
	Value string        `yaml:"value,omitempty"`
}

// Step is one command in a workflow, with its delay, gate, and retry policy.
type Step struct {
	ID        string         `yaml:"id"`
	Action    string         `yaml:"action"`
	Target    string         `yaml:"target,omitempty"`
	Payload   string         `yaml:"payload,omitempty"`
	Extra     string         `yaml:"extra,omitempty"`
	DelayMs   int            `yaml:"delay_ms,omitempty"`
	Condition *StepCondition `yaml:"condition,omitempty"`
	OnFailure FailurePolicy  `yaml:"on_failure,omitempty"`
	Retries   int            `yaml:"retries,omitempty"`
}

// Command returns the step's payload as a dispatchable command.
func (s Step) Command() Command {
	return Command{Action: s.Action, Target: s.Target, Payload: s.Payload, Extra: s.Extra}
}

// ScheduleKind selects how a scheduled workflow recurs.
type ScheduleKind string

const (
	ScheduleInterval ScheduleKind = "interval"
	ScheduleDaily    ScheduleKind = "daily"
	ScheduleOnce     ScheduleKind = "once"
)

// Schedule describes when a schedule-triggered workflow fires.
// Interval schedules use EverySec; daily and once schedules use At (HH:MM
// local time).
type Schedule struct {
	Kind     ScheduleKind `yaml:"kind"`
	EverySec int          `yaml:"every_sec,omitempty"`
	At       string       `yaml:"at,omitempty"`
}

// Interval returns the recurrence period of an interval schedule.
func (s Schedule) Interval() time.Duration {
	return time.Duration(s.EverySec) * time.Second
}

// Workflow is a named, ordered automation sequence.
type Workflow struct {
	ID       string    `yaml:"id"`
	Name     string    `yaml:"name"`
	Steps    []Step    `yaml:"steps"`
	Trigger  Trigger   `yaml:"trigger"`
	Schedule *Schedule `yaml:"schedule,omitempty"`
	Enabled  bool      `yaml:"enabled"`

	LastRunAt time.Time `yaml:"-"`
	RunCount  int       `yaml:"-"`
	NextRun   time.Time `yaml:"-"`
}

// StepStatus is the recorded outcome of a single step.
type StepStatus string

const (
	StepSuccess StepStatus = "success"
	StepFailed  StepStatus = "failed"
	StepSkipped StepStatus = "skipped"
)

// StepResult records one step's outcome within a run.
type StepResult struct {
	StepID   string        `json:"step_id"`
	Action   string        `json:"action"`
	Status   StepStatus    `json:"status"`
	Attempts int           `json:"attempts"`
	Duration time.Duration `json:"duration"`
	Message  string        `json:"message,omitempty"`
}

// RunStatus is the overall outcome of a workflow run.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunPartial   RunStatus = "partial"
	RunFailed    RunStatus = "failed"
)

// RunResult is the structured record of one workflow execution.
type RunResult struct {
	RunID      string        `json:"run_id"`
	WorkflowID string        `json:"workflow_id"`
	Status     RunStatus     `json:"status"`
	Steps      []StepResult  `json:"steps"`
	Aborted    bool          `json:"aborted"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
}
