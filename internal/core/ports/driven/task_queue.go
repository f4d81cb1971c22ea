package driven

import (
	"context"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

// TaskQueue dispatches persisted tasks to workers.
// Task records themselves live in the TaskStore; the queue only carries
// references (task id, target and kind). Implementations: Redis streams
// (preferred), PostgreSQL SKIP LOCKED (fallback) and in-memory (single process).
type TaskQueue interface {
	// Enqueue schedules a task for dispatch.
	Enqueue(ctx context.Context, task *domain.Task) error

	// DequeueWithTimeout retrieves the next task reference, waiting up to
	// timeout seconds. Returns nil, nil when the timeout elapses with no task.
	// A dequeued task is not handed to other workers until Nack'd or abandoned.
	DequeueWithTimeout(ctx context.Context, timeout int) (*domain.Task, error)

	// Ack acknowledges that a dispatched task was handled.
	Ack(ctx context.Context, taskID string) error

	// Nack returns a task for redelivery after an infrastructure failure.
	// Once redelivery attempts are exhausted the reference is dropped.
	Nack(ctx context.Context, taskID string, reason string) error

	// Stats returns queue statistics.
	Stats(ctx context.Context) (*QueueStats, error)

	// Ping checks if the queue backend is healthy.
	Ping(ctx context.Context) error

	// Close cleans up resources.
	Close() error
}

// QueueStats contains queue statistics
type QueueStats struct {
	// PendingCount is the number of references waiting for a worker
	PendingCount int64 `json:"pending_count"`

	// InFlightCount is the number of references handed out but not yet acked
	InFlightCount int64 `json:"in_flight_count"`

	// DeadCount is the number of references dropped after exhausting redelivery
	DeadCount int64 `json:"dead_count"`

	// OldestPendingAge is the age of the oldest pending reference in seconds
	OldestPendingAge int64 `json:"oldest_pending_age"`
}
