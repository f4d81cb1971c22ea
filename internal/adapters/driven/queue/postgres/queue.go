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

// Ensure Queue implements TaskQueue
var _ driven.TaskQueue = (*Queue)(nil)

// Queue implements TaskQueue over the task_dispatch table using
// SELECT ... FOR UPDATE SKIP LOCKED. This is the fallback when Redis is not
// configured. Rows carry references only; task state lives in ingest_tasks.
type Queue struct {
	db            *sql.DB
	maxDeliveries int
	visibility    time.Duration
	pollInterval  time.Duration
	retryBackoff  time.Duration
}

// QueueConfig holds configuration for the PostgreSQL queue.
type QueueConfig struct {
	// MaxDeliveries is how many times a reference is handed out before it is marked dead (default: 3)
	MaxDeliveries int
	// Visibility is how long a delivered row stays invisible before it is
	// handed out again. Must exceed the job timeout (default: 20m).
	Visibility time.Duration
	// PollInterval is the wait between empty polls while dequeuing (default: 1s)
	PollInterval time.Duration
	// RetryBackoff is the base redelivery delay after a Nack (default: 2s)
	RetryBackoff time.Duration
}

// NewQueue creates a new PostgreSQL-backed task queue.
// Assumes task_dispatch exists (see the migrate command).
func NewQueue(db *sql.DB, cfg QueueConfig) *Queue {
	q := &Queue{
		db:            db,
		maxDeliveries: cfg.MaxDeliveries,
		visibility:    cfg.Visibility,
		pollInterval:  cfg.PollInterval,
		retryBackoff:  cfg.RetryBackoff,
	}
	if q.maxDeliveries <= 0 {
		q.maxDeliveries = 3
	}
	if q.visibility <= 0 {
		q.visibility = 20 * time.Minute
	}
	if q.pollInterval <= 0 {
		q.pollInterval = time.Second
	}
	if q.retryBackoff <= 0 {
		q.retryBackoff = 2 * time.Second
	}
	return q
}

// Enqueue adds a task reference. Re-enqueueing a known task makes it
// available again immediately.
func (q *Queue) Enqueue(ctx context.Context, task *domain.Task) error {
	if task == nil {
		return errors.New("task is required")
	}

	query := `
		INSERT INTO task_dispatch (task_id, target_id, kind, status, available_at, created_at)
		VALUES ($1, $2, $3, 'pending', NOW(), NOW())
		ON CONFLICT (task_id) DO UPDATE SET
			status = 'pending',
			available_at = NOW(),
			locked_until = NULL
	`

	if _, err := q.db.ExecContext(ctx, query, task.ID, task.TargetID, task.Kind); err != nil {
		return fmt.Errorf("insert dispatch: %w", err)
	}

	return nil
}

// DequeueWithTimeout retrieves the next reference, polling up to timeout seconds.
func (q *Queue) DequeueWithTimeout(ctx context.Context, timeout int) (*domain.Task, error) {
	deadline := time.Now().Add(time.Duration(timeout) * time.Second)

	for {
		task, err := q.dequeue(ctx)
		if err != nil || task != nil {
			return task, err
		}

		wait := time.Until(deadline)
		if wait <= 0 {
			return nil, nil
		}
		if wait > q.pollInterval {
			wait = q.pollInterval
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (q *Queue) dequeue(ctx context.Context) (*domain.Task, error) {
	// Use a transaction to atomically select and update
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Pending rows that are due, or in-flight rows whose visibility lapsed
	selectQuery := `
		SELECT task_id, target_id, kind
		FROM task_dispatch
		WHERE (status = 'pending' AND available_at <= NOW())
		   OR (status = 'in_flight' AND locked_until < NOW())
		ORDER BY available_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`

	task := &domain.Task{State: domain.TaskStatePending}
	err = tx.QueryRowContext(ctx, selectQuery).Scan(&task.ID, &task.TargetID, &task.Kind)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select dispatch: %w", err)
	}

	updateQuery := `
		UPDATE task_dispatch
		SET status = 'in_flight', locked_until = $2, deliveries = deliveries + 1
		WHERE task_id = $1
	`
	if _, err := tx.ExecContext(ctx, updateQuery, task.ID, time.Now().Add(q.visibility)); err != nil {
		return nil, fmt.Errorf("update dispatch: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return task, nil
}

// Ack removes a handled reference
func (q *Queue) Ack(ctx context.Context, taskID string) error {
	result, err := q.db.ExecContext(ctx, `DELETE FROM task_dispatch WHERE task_id = $1`, taskID)
	if err != nil {
		return fmt.Errorf("delete dispatch: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}

	return nil
}

// Nack makes the reference available again after an exponential backoff, or
// marks it dead once MaxDeliveries is reached.
func (q *Queue) Nack(ctx context.Context, taskID string, reason string) error {
	var deliveries int
	err := q.db.QueryRowContext(ctx, `SELECT deliveries FROM task_dispatch WHERE task_id = $1`, taskID).Scan(&deliveries)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get dispatch: %w", err)
	}

	if deliveries < q.maxDeliveries {
		backoff := q.retryBackoff * time.Duration(1<<max(deliveries-1, 0))
		if backoff > 5*time.Minute {
			backoff = 5 * time.Minute
		}

		query := `
			UPDATE task_dispatch
			SET status = 'pending', last_error = $2, available_at = $3, locked_until = NULL
			WHERE task_id = $1
		`
		_, err = q.db.ExecContext(ctx, query, taskID, reason, time.Now().Add(backoff))
	} else {
		query := `
			UPDATE task_dispatch
			SET status = 'dead', last_error = $2, locked_until = NULL
			WHERE task_id = $1
		`
		_, err = q.db.ExecContext(ctx, query, taskID, reason)
	}

	if err != nil {
		return fmt.Errorf("update dispatch: %w", err)
	}

	return nil
}

// Stats returns queue statistics
func (q *Queue) Stats(ctx context.Context) (*driven.QueueStats, error) {
	stats := &driven.QueueStats{}

	rows, err := q.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM task_dispatch GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}

		switch status {
		case "pending":
			stats.PendingCount = count
		case "in_flight":
			stats.InFlightCount = count
		case "dead":
			stats.DeadCount = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stats: %w", err)
	}

	ageQuery := `
		SELECT EXTRACT(EPOCH FROM (NOW() - MIN(created_at)))::bigint
		FROM task_dispatch
		WHERE status = 'pending'
	`
	var age sql.NullInt64
	if err := q.db.QueryRowContext(ctx, ageQuery).Scan(&age); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("query oldest age: %w", err)
	}
	if age.Valid {
		stats.OldestPendingAge = age.Int64
	}

	return stats, nil
}

// Ping checks database connectivity
func (q *Queue) Ping(ctx context.Context) error {
	return q.db.PingContext(ctx)
}

// Close is a no-op for the Postgres queue (db connection managed externally)
func (q *Queue) Close() error {
	return nil
}
