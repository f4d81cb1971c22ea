package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// JobHandler executes tasks of one kind.
type JobHandler interface {
	// Kind returns the task kind this handler runs
	Kind() domain.TaskKind

	// Execute runs the job. Returning an error wrapping domain.ErrCancelled
	// reports an observed cancellation; any other error fails the task.
	Execute(ctx context.Context, task *domain.Task, token *CancelToken) error

	// Abort drives the task's target to a safe state after the job could not
	// report its own outcome (crash, timeout, lost worker, cancelled before start).
	Abort(ctx context.Context, task *domain.Task, cause error)
}

// CancelToken is the cooperative cancellation check handed to a running job.
// Polling also refreshes the task heartbeat.
type CancelToken struct {
	store  driven.TaskStore
	taskID string
	logger *slog.Logger
}

// NewCancelToken creates a token polling the cancel flag of taskID
func NewCancelToken(store driven.TaskStore, taskID string, logger *slog.Logger) *CancelToken {
	if logger == nil {
		logger = slog.Default()
	}
	return &CancelToken{store: store, taskID: taskID, logger: logger}
}

// Cancelled reports whether cancellation was requested. A failed poll is
// logged and treated as not cancelled; the next checkpoint polls again.
func (t *CancelToken) Cancelled(ctx context.Context) bool {
	requested, err := t.store.PollCancel(ctx, t.taskID)
	if err != nil {
		t.logger.Warn("failed to poll cancel flag", "task_id", t.taskID, "error", err)
		return false
	}
	return requested
}

// Check returns domain.ErrCancelled when cancellation was requested, or the
// context error when the job's deadline has passed.
func (t *CancelToken) Check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("task %s: %w", t.taskID, err)
	}
	if t.Cancelled(ctx) {
		return fmt.Errorf("task %s: %w", t.taskID, domain.ErrCancelled)
	}
	return nil
}

// TaskScheduler tracks background jobs: one persisted Task per run, at most
// one active Task per target. Jobs are dispatched through the TaskQueue and
// executed by workers calling Run.
type TaskScheduler struct {
	store  driven.TaskStore
	queue  driven.TaskQueue
	logger *slog.Logger

	heartbeatInterval time.Duration

	mu       sync.RWMutex
	handlers map[domain.TaskKind]JobHandler
}

// TaskSchedulerConfig holds configuration for the task scheduler.
type TaskSchedulerConfig struct {
	Store             driven.TaskStore
	Queue             driven.TaskQueue
	Logger            *slog.Logger
	HeartbeatInterval time.Duration // How often a running task refreshes its heartbeat (default: 15s)
}

// NewTaskScheduler creates a new task scheduler.
func NewTaskScheduler(cfg TaskSchedulerConfig) *TaskScheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	heartbeat := cfg.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}

	return &TaskScheduler{
		store:             cfg.Store,
		queue:             cfg.Queue,
		logger:            logger,
		heartbeatInterval: heartbeat,
		handlers:          make(map[domain.TaskKind]JobHandler),
	}
}

// Register adds a handler. Registering two handlers for one kind is a
// programming error and panics.
func (s *TaskScheduler) Register(h JobHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.handlers[h.Kind()]; exists {
		panic(fmt.Sprintf("job handler for kind %q already registered", h.Kind()))
	}
	s.handlers[h.Kind()] = h
}

// Handler returns the handler registered for kind
func (s *TaskScheduler) Handler(kind domain.TaskKind) (JobHandler, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handlers[kind]
	return h, ok
}

// Submit persists a PENDING task for target and dispatches it. It fails with
// domain.ErrTaskActive, creating nothing, when target already has an active task.
func (s *TaskScheduler) Submit(ctx context.Context, kind domain.TaskKind, targetID string) (*domain.Task, error) {
	if targetID == "" {
		return nil, fmt.Errorf("%w: target id is required", domain.ErrInvalidInput)
	}
	if _, ok := s.Handler(kind); !ok {
		return nil, fmt.Errorf("%w: no handler for task kind %q", domain.ErrInvalidInput, kind)
	}

	task := domain.NewTask(kind, targetID)
	if err := s.store.CreateActive(ctx, task); err != nil {
		if errors.Is(err, domain.ErrTaskActive) {
			return nil, fmt.Errorf("submit %s: %w", targetID, err)
		}
		return nil, fmt.Errorf("create task: %w", err)
	}

	if err := s.queue.Enqueue(ctx, task); err != nil {
		// The task never reached a worker; free the target for resubmission.
		if _, ferr := s.store.Finish(context.WithoutCancel(ctx), task.ID, domain.TaskStateFailed, "dispatch failed: "+err.Error()); ferr != nil {
			s.logger.Error("failed to finalize undispatched task", "task_id", task.ID, "error", ferr)
		}
		return nil, fmt.Errorf("enqueue task: %w", err)
	}

	s.logger.Info("task submitted",
		"task_id", task.ID,
		"kind", kind,
		"target_id", targetID,
	)
	return task, nil
}

// RequestCancel flags the active task of target for cooperative cancellation.
// Returns false when target has no active task.
func (s *TaskScheduler) RequestCancel(ctx context.Context, targetID string) (bool, error) {
	ok, err := s.store.RequestCancel(ctx, targetID)
	if err != nil {
		return false, fmt.Errorf("request cancel: %w", err)
	}
	if ok {
		s.logger.Info("task cancellation requested", "target_id", targetID)
	}
	return ok, nil
}

// GetStatus returns a snapshot of a task
func (s *TaskScheduler) GetStatus(ctx context.Context, taskID string) (*domain.Task, error) {
	return s.store.Get(ctx, taskID)
}

// Dispatch re-enqueues an existing pending task, used when its queue
// reference was lost.
func (s *TaskScheduler) Dispatch(ctx context.Context, task *domain.Task) error {
	return s.queue.Enqueue(ctx, task)
}

// Run executes one dispatched task to a terminal state. A returned error
// means the task could not be handled because of an infrastructure failure
// and should be redelivered. Job failures are recorded on the task instead.
func (s *TaskScheduler) Run(ctx context.Context, taskID string) error {
	task, err := s.store.Get(ctx, taskID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("dropping reference to unknown task", "task_id", taskID)
			return nil
		}
		return fmt.Errorf("load task: %w", err)
	}

	if task.State != domain.TaskStatePending {
		// Claimed by another worker or already finished.
		s.logger.Debug("skipping non-pending task", "task_id", task.ID, "state", task.State)
		return nil
	}

	handler, ok := s.Handler(task.Kind)
	if !ok {
		return s.finish(ctx, task, domain.TaskStateFailed, fmt.Sprintf("no handler for task kind %q", task.Kind))
	}

	if task.CancelRequested {
		handler.Abort(context.WithoutCancel(ctx), task, domain.ErrCancelled)
		return s.finish(ctx, task, domain.TaskStateCancelled, "")
	}

	claimed, err := s.store.MarkRunning(ctx, task.ID)
	if err != nil {
		return fmt.Errorf("claim task: %w", err)
	}
	if !claimed {
		return nil
	}
	task.MarkRunning()

	s.logger.Info("task started", "task_id", task.ID, "kind", task.Kind, "target_id", task.TargetID)
	start := time.Now()

	stopHeartbeat := s.startHeartbeat(ctx, task.ID)
	err = s.execute(ctx, handler, task)
	stopHeartbeat()

	switch {
	case err == nil:
		s.logger.Info("task completed", "task_id", task.ID, "duration", time.Since(start))
		return s.finish(ctx, task, domain.TaskStateCompleted, "")

	case errors.Is(err, domain.ErrCancelled):
		s.logger.Info("task cancelled", "task_id", task.ID, "duration", time.Since(start))
		return s.finish(ctx, task, domain.TaskStateCancelled, "")

	case errors.Is(err, domain.ErrWorkerCrashed):
		handler.Abort(context.WithoutCancel(ctx), task, err)
		return s.finish(ctx, task, domain.TaskStateFailed, domain.ErrWorkerCrashed.Error())

	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		s.logger.Warn("task timed out", "task_id", task.ID, "duration", time.Since(start))
		handler.Abort(context.WithoutCancel(ctx), task, err)
		return s.finish(ctx, task, domain.TaskStateFailed, "timed out: "+err.Error())

	default:
		s.logger.Warn("task failed", "task_id", task.ID, "error", err)
		handler.Abort(context.WithoutCancel(ctx), task, err)
		return s.finish(ctx, task, domain.TaskStateFailed, err.Error())
	}
}

// execute runs the handler and converts a panic into domain.ErrWorkerCrashed
func (s *TaskScheduler) execute(ctx context.Context, h JobHandler, task *domain.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job handler panicked",
				"task_id", task.ID,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("%w: %v", domain.ErrWorkerCrashed, r)
		}
	}()
	return h.Execute(ctx, task, NewCancelToken(s.store, task.ID, s.logger))
}

// finish records a terminal state. Finishing an already terminal task is a no-op.
func (s *TaskScheduler) finish(ctx context.Context, task *domain.Task, state domain.TaskState, errMsg string) error {
	changed, err := s.store.Finish(context.WithoutCancel(ctx), task.ID, state, errMsg)
	if err != nil {
		return fmt.Errorf("finish task: %w", err)
	}
	if !changed {
		s.logger.Debug("task already terminal", "task_id", task.ID, "state", state)
	}
	return nil
}

// startHeartbeat refreshes the task heartbeat until the returned func is called
func (s *TaskScheduler) startHeartbeat(ctx context.Context, taskID string) func() {
	stopCh := make(chan struct{})
	doneCh := make(chan struct{})

	go func() {
		defer close(doneCh)
		ticker := time.NewTicker(s.heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case <-ticker.C:
				if _, err := s.store.PollCancel(ctx, taskID); err != nil {
					s.logger.Warn("task heartbeat failed", "task_id", taskID, "error", err)
				}
			}
		}
	}()

	return func() {
		close(stopCh)
		<-doneCh
	}
}
