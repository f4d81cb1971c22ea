package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.TaskStore = (*TaskStore)(nil)

// TaskStore implements driven.TaskStore using PostgreSQL.
// The partial unique index idx_ingest_tasks_one_active enforces one
// pending or running task per target.
type TaskStore struct {
	db *DB
}

// NewTaskStore creates a new TaskStore
func NewTaskStore(db *DB) *TaskStore {
	return &TaskStore{db: db}
}

const taskColumns = `id, target_id, kind, state, cancel_requested, error, attempts,
	created_at, started_at, heartbeat_at, finished_at`

// CreateActive inserts a pending task, failing with domain.ErrTaskActive
// when the target already has an active one.
func (s *TaskStore) CreateActive(ctx context.Context, task *domain.Task) error {
	query := `
		INSERT INTO ingest_tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := s.db.ExecContext(ctx, query,
		task.ID,
		task.TargetID,
		task.Kind,
		task.State,
		task.CancelRequested,
		task.Error,
		task.Attempts,
		task.CreatedAt,
		NullTime(task.StartedAt),
		NullTime(task.HeartbeatAt),
		NullTime(task.FinishedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", domain.ErrTaskActive, task.TargetID)
	}
	return err
}

// Get retrieves a task by ID
func (s *TaskStore) Get(ctx context.Context, taskID string) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM ingest_tasks WHERE id = $1`
	return s.scanOne(s.db.QueryRowContext(ctx, query, taskID))
}

// GetActiveByTarget returns the pending or running task for a target
func (s *TaskStore) GetActiveByTarget(ctx context.Context, targetID string) (*domain.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM ingest_tasks
		WHERE target_id = $1 AND state IN ('pending', 'running')
	`
	return s.scanOne(s.db.QueryRowContext(ctx, query, targetID))
}

// MarkRunning claims a pending task
func (s *TaskStore) MarkRunning(ctx context.Context, taskID string) (bool, error) {
	query := `
		UPDATE ingest_tasks SET
			state = 'running',
			started_at = NOW(),
			heartbeat_at = NOW(),
			attempts = attempts + 1
		WHERE id = $1 AND state = 'pending'
	`
	return s.execTransition(ctx, taskID, query, taskID)
}

// Finish moves an active task to a terminal state
func (s *TaskStore) Finish(ctx context.Context, taskID string, state domain.TaskState, errMsg string) (bool, error) {
	if !state.IsTerminal() {
		return false, fmt.Errorf("%w: %s is not a terminal state", domain.ErrInvalidInput, state)
	}

	query := `
		UPDATE ingest_tasks SET
			state = $2,
			error = $3,
			finished_at = NOW()
		WHERE id = $1 AND state IN ('pending', 'running')
	`
	return s.execTransition(ctx, taskID, query, taskID, state, errMsg)
}

// RequestCancel flags the active task of a target for cancellation
func (s *TaskStore) RequestCancel(ctx context.Context, targetID string) (bool, error) {
	query := `
		UPDATE ingest_tasks SET cancel_requested = TRUE
		WHERE target_id = $1 AND state IN ('pending', 'running')
	`
	result, err := s.db.ExecContext(ctx, query, targetID)
	if err != nil {
		return false, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected > 0, nil
}

// PollCancel returns the cancel flag and refreshes the heartbeat of a running task
func (s *TaskStore) PollCancel(ctx context.Context, taskID string) (bool, error) {
	query := `
		UPDATE ingest_tasks SET
			heartbeat_at = CASE WHEN state = 'running' THEN NOW() ELSE heartbeat_at END
		WHERE id = $1
		RETURNING cancel_requested
	`

	var cancelRequested bool
	err := s.db.QueryRowContext(ctx, query, taskID).Scan(&cancelRequested)
	if errors.Is(err, sql.ErrNoRows) {
		return false, domain.ErrNotFound
	}
	if err != nil {
		return false, err
	}
	return cancelRequested, nil
}

// ListStaleRunning returns running tasks whose heartbeat is older than cutoff
func (s *TaskStore) ListStaleRunning(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM ingest_tasks
		WHERE state = 'running' AND COALESCE(heartbeat_at, started_at, created_at) < $1
		ORDER BY created_at ASC
		LIMIT $2
	`
	return s.list(ctx, query, cutoff, limit)
}

// ListStalePending returns pending tasks created before cutoff
func (s *TaskStore) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM ingest_tasks
		WHERE state = 'pending' AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2
	`
	return s.list(ctx, query, cutoff, limit)
}

// execTransition runs a guarded UPDATE. Zero affected rows means the guard
// failed, unless the task does not exist at all.
func (s *TaskStore) execTransition(ctx context.Context, taskID, query string, args ...any) (bool, error) {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if rowsAffected > 0 {
		return true, nil
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM ingest_tasks WHERE id = $1)`, taskID).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, domain.ErrNotFound
	}
	return false, nil
}

func (s *TaskStore) list(ctx context.Context, query string, args ...any) ([]*domain.Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return tasks, nil
}

func (s *TaskStore) scanOne(row *sql.Row) (*domain.Task, error) {
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return task, err
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var task domain.Task
	var startedAt, heartbeatAt, finishedAt sql.NullTime
	err := row.Scan(
		&task.ID,
		&task.TargetID,
		&task.Kind,
		&task.State,
		&task.CancelRequested,
		&task.Error,
		&task.Attempts,
		&task.CreatedAt,
		&startedAt,
		&heartbeatAt,
		&finishedAt,
	)
	if err != nil {
		return nil, err
	}
	task.StartedAt = TimePtr(startedAt)
	task.HeartbeatAt = TimePtr(heartbeatAt)
	task.FinishedAt = TimePtr(finishedAt)
	return &task, nil
}
