package domain

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// NewTaskID returns a time-sortable unique task identifier.
func NewTaskID() string {
	return ulid.Make().String()
}

// TaskKind tags the pipeline a task runs
type TaskKind string

const (
	// TaskKindIngest runs one item's full ingestion pipeline
	TaskKindIngest TaskKind = "ingest"
)

// TaskState represents the current state of a task
type TaskState string

const (
	TaskStatePending   TaskState = "pending"
	TaskStateRunning   TaskState = "running"
	TaskStateCompleted TaskState = "completed"
	TaskStateFailed    TaskState = "failed"
	TaskStateCancelled TaskState = "cancelled"
)

// IsTerminal reports whether no further transitions are possible
func (s TaskState) IsTerminal() bool {
	return s == TaskStateCompleted || s == TaskStateFailed || s == TaskStateCancelled
}

// Task is one scheduler-tracked execution attempt bound to one item
type Task struct {
	// ID is the unique identifier for this task
	ID string `json:"task_id"`

	// TargetID is the item this task processes
	TargetID string `json:"target_id"`

	// Kind selects the handler that executes this task
	Kind TaskKind `json:"kind"`

	// State is the current state of the task
	State TaskState `json:"state"`

	// CancelRequested is the cooperative cancellation flag
	CancelRequested bool `json:"cancel_requested"`

	// Error contains the failure reason for FAILED tasks
	Error string `json:"error,omitempty"`

	// Attempts counts dispatches of this task to a worker
	Attempts int `json:"attempts"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	HeartbeatAt *time.Time `json:"heartbeat_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// NewTask creates a PENDING task for target
func NewTask(kind TaskKind, targetID string) *Task {
	return &Task{
		ID:        NewTaskID(),
		TargetID:  targetID,
		Kind:      kind,
		State:     TaskStatePending,
		CreatedAt: time.Now(),
	}
}

// IsActive reports whether the task still counts against the single-active invariant
func (t *Task) IsActive() bool {
	return t.State == TaskStatePending || t.State == TaskStateRunning
}

// MarkRunning moves a pending task to running
func (t *Task) MarkRunning() {
	now := time.Now()
	t.State = TaskStateRunning
	t.StartedAt = &now
	t.HeartbeatAt = &now
	t.Attempts++
}

// Finish moves the task to a terminal state. It is a no-op for tasks that
// are already terminal and reports whether the state changed.
func (t *Task) Finish(state TaskState, errMsg string) bool {
	if t.State.IsTerminal() || !state.IsTerminal() {
		return false
	}
	now := time.Now()
	t.State = state
	t.Error = errMsg
	t.FinishedAt = &now
	return true
}

// Heartbeat records liveness of the worker running the task
func (t *Task) Heartbeat() {
	now := time.Now()
	t.HeartbeatAt = &now
}
