package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

// TaskStore persists scheduler task records.
// CreateActive must be atomic at the storage layer: it is the only thing
// guaranteeing the single-active-task-per-target invariant.
type TaskStore interface {
	// CreateActive inserts a PENDING task unless another pending or running
	// task exists for the same target, in which case it returns
	// domain.ErrTaskActive and inserts nothing.
	CreateActive(ctx context.Context, task *domain.Task) error

	// Get retrieves a task by ID
	Get(ctx context.Context, taskID string) (*domain.Task, error)

	// GetActiveByTarget returns the pending or running task for target,
	// or domain.ErrNotFound.
	GetActiveByTarget(ctx context.Context, targetID string) (*domain.Task, error)

	// MarkRunning claims a PENDING task. Returns false when the task is no
	// longer pending (claimed elsewhere or already terminal).
	MarkRunning(ctx context.Context, taskID string) (bool, error)

	// Finish moves an active task to a terminal state. Finishing an already
	// terminal task is a no-op and returns false.
	Finish(ctx context.Context, taskID string, state domain.TaskState, errMsg string) (bool, error)

	// RequestCancel sets cancel_requested on the active task for target.
	// Returns false when the target has no active task.
	RequestCancel(ctx context.Context, targetID string) (bool, error)

	// PollCancel reports the cancel flag for a task and refreshes its heartbeat.
	PollCancel(ctx context.Context, taskID string) (bool, error)

	// ListStaleRunning returns RUNNING tasks whose heartbeat is older than cutoff
	ListStaleRunning(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Task, error)

	// ListStalePending returns PENDING tasks created before cutoff
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Task, error)
}
