package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// TaskRunner executes one dispatched task to a terminal state.
// services.TaskScheduler implements it.
type TaskRunner interface {
	Run(ctx context.Context, taskID string) error
}

// Background is a periodic component started and stopped with the worker,
// such as the reaper.
type Background interface {
	Start(ctx context.Context) error
	Stop()
}

// Worker pulls task references from the queue and runs them on a bounded
// goroutine pool. Each job gets its own deadline; a job that overruns it is
// failed by the scheduler and its item is cleaned up like a crash.
type Worker struct {
	taskQueue  driven.TaskQueue
	runner     TaskRunner
	background []Background
	logger     *slog.Logger

	// Configuration
	concurrency    int
	pollers        int
	dequeueTimeout int // seconds
	jobTimeout     time.Duration

	// Internal state
	mu      sync.RWMutex
	running bool
	pool    *ants.Pool
	jobs    sync.WaitGroup
	active  atomic.Int32
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// WorkerConfig holds configuration for the worker.
type WorkerConfig struct {
	TaskQueue      driven.TaskQueue
	Runner         TaskRunner
	Background     []Background // Optional: started with the worker (reaper)
	Logger         *slog.Logger
	Concurrency    int           // Max jobs running at once (default: 4)
	Pollers        int           // Number of dequeue loops (default: 1)
	DequeueTimeout int           // Seconds to wait for a task before checking again (default: 5)
	JobTimeout     time.Duration // Deadline for a single job (default: 15m)
}

// NewWorker creates a new task worker.
func NewWorker(cfg WorkerConfig) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	pollers := cfg.Pollers
	if pollers <= 0 {
		pollers = 1
	}

	dequeueTimeout := cfg.DequeueTimeout
	if dequeueTimeout <= 0 {
		dequeueTimeout = 5
	}

	jobTimeout := cfg.JobTimeout
	if jobTimeout <= 0 {
		jobTimeout = 15 * time.Minute
	}

	return &Worker{
		taskQueue:      cfg.TaskQueue,
		runner:         cfg.Runner,
		background:     cfg.Background,
		logger:         logger,
		concurrency:    concurrency,
		pollers:        pollers,
		dequeueTimeout: dequeueTimeout,
		jobTimeout:     jobTimeout,
	}
}

// Start begins the dequeue loops.
// It runs until Stop is called or context is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}

	pool, err := ants.NewPool(w.concurrency, ants.WithPanicHandler(func(p any) {
		// Scheduler.Run contains job panics; this only fires for bugs in the harness itself.
		w.logger.Error("worker pool goroutine panicked", "panic", p)
	}))
	if err != nil {
		w.mu.Unlock()
		return fmt.Errorf("create worker pool: %w", err)
	}

	w.pool = pool
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	w.logger.Info("worker starting",
		"concurrency", w.concurrency,
		"pollers", w.pollers,
		"dequeue_timeout", w.dequeueTimeout,
		"job_timeout", w.jobTimeout,
	)

	for _, b := range w.background {
		if err := b.Start(ctx); err != nil {
			w.logger.Error("failed to start background component", "error", err)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < w.pollers; i++ {
		wg.Add(1)
		go func(pollerID int) {
			defer wg.Done()
			w.processLoop(ctx, pollerID)
		}(i)
	}

	// Wait for the loops, then for in-flight jobs
	go func() {
		wg.Wait()
		w.jobs.Wait()
		pool.Release()
		close(w.doneCh)
	}()

	return nil
}

// Stop gracefully stops the worker. In-flight jobs run to completion or
// until their job timeout, whichever comes first; cancelling the context
// passed to Start does not interrupt them either.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	close(w.stopCh)
	w.mu.Unlock()

	for _, b := range w.background {
		b.Stop()
	}

	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("worker stopped")
}

// Wait blocks until the worker stops.
func (w *Worker) Wait() {
	w.mu.RLock()
	done := w.doneCh
	w.mu.RUnlock()
	if done != nil {
		<-done
	}
}

// processLoop dequeues task references and submits them to the pool.
// Submission blocks while the pool is full.
func (w *Worker) processLoop(ctx context.Context, pollerID int) {
	logger := w.logger.With("worker_id", pollerID)
	logger.Info("worker goroutine started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("worker context cancelled")
			return
		case <-w.stopCh:
			logger.Info("worker stop signal received")
			return
		default:
		}

		task, err := w.taskQueue.DequeueWithTimeout(ctx, w.dequeueTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			logger.Error("failed to dequeue task", "error", err)
			w.backoff(ctx, time.Second)
			continue
		}

		if task == nil {
			continue
		}

		w.jobs.Add(1)
		if err := w.pool.Submit(func() {
			defer w.jobs.Done()
			w.processTask(ctx, task, logger)
		}); err != nil {
			w.jobs.Done()
			logger.Error("failed to submit task to pool", "task_id", task.ID, "error", err)
			w.nack(ctx, task, logger, err.Error())
		}
	}
}

// processTask runs one task under its own deadline and acknowledges it.
func (w *Worker) processTask(ctx context.Context, task *domain.Task, logger *slog.Logger) {
	logger = logger.With("task_id", task.ID, "target_id", task.TargetID, "kind", task.Kind)
	logger.Info("processing task")

	startTime := time.Now()

	w.active.Add(1)
	// Shutdown stops dequeueing but lets the job drain; only the job
	// deadline or a cancel request ends it early.
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.jobTimeout)
	err := w.runner.Run(jobCtx, task.ID)
	cancel()
	w.active.Add(-1)

	duration := time.Since(startTime)

	if err != nil {
		logger.Error("task could not be handled",
			"duration", duration,
			"error", err,
		)
		w.nack(ctx, task, logger, err.Error())
		return
	}

	logger.Info("task handled", "duration", duration)

	if ackErr := w.taskQueue.Ack(context.WithoutCancel(ctx), task.ID); ackErr != nil {
		logger.Error("failed to ack task", "ack_error", ackErr)
	}
}

func (w *Worker) nack(ctx context.Context, task *domain.Task, logger *slog.Logger, reason string) {
	if nackErr := w.taskQueue.Nack(context.WithoutCancel(ctx), task.ID, reason); nackErr != nil {
		logger.Error("failed to nack task", "nack_error", nackErr)
	}
}

func (w *Worker) backoff(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// Health reports the worker's state.
type Health struct {
	Running     bool   `json:"running"`
	ActiveJobs  int    `json:"active_jobs"`
	WaitingJobs int    `json:"waiting_jobs"`
	Capacity    int    `json:"capacity"`
	QueueHealth bool   `json:"queue_health"`
	Error       string `json:"error,omitempty"`
}

// Health returns the health status of the worker.
func (w *Worker) Health(ctx context.Context) Health {
	w.mu.RLock()
	running := w.running
	pool := w.pool
	w.mu.RUnlock()

	health := Health{
		Running:    running,
		ActiveJobs: int(w.active.Load()),
		Capacity:   w.concurrency,
	}
	if running && pool != nil {
		health.WaitingJobs = pool.Waiting()
	}

	if err := w.taskQueue.Ping(ctx); err != nil {
		health.QueueHealth = false
		health.Error = err.Error()
	} else {
		health.QueueHealth = true
	}

	return health
}
