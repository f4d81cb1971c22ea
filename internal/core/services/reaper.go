package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

const reaperLockName = "ingest-reaper"

// Reaper recovers tasks whose worker went away. It fails RUNNING tasks that
// stopped heartbeating and re-dispatches PENDING tasks whose queue reference
// was lost.
//
// For multi-worker deployments, configure a DistributedLock so only one
// instance reaps per cycle.
type Reaper struct {
	store     driven.TaskStore
	scheduler *TaskScheduler
	lock      driven.DistributedLock
	logger    *slog.Logger

	// Internal state
	mu       sync.RWMutex
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	interval time.Duration

	staleAfter      time.Duration
	redispatchAfter time.Duration
	batchSize       int
	lockTTL         time.Duration
}

// ReaperConfig holds configuration for the reaper.
type ReaperConfig struct {
	Store           driven.TaskStore
	Scheduler       *TaskScheduler
	Lock            driven.DistributedLock // Optional: distributed lock for multi-instance coordination
	Logger          *slog.Logger
	Interval        time.Duration // How often to look for stale tasks (default: 30s)
	StaleAfter      time.Duration // Heartbeat age after which a running task is lost (default: 2m)
	RedispatchAfter time.Duration // Age after which a pending task is dispatched again (default: 5m)
	BatchSize       int           // Max tasks handled per cycle and category (default: 100)
	LockTTL         time.Duration // TTL for the distributed lock (default: 60s)
}

// NewReaper creates a new reaper.
func NewReaper(cfg ReaperConfig) *Reaper {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := &Reaper{
		store:           cfg.Store,
		scheduler:       cfg.Scheduler,
		lock:            cfg.Lock,
		logger:          logger,
		interval:        cfg.Interval,
		staleAfter:      cfg.StaleAfter,
		redispatchAfter: cfg.RedispatchAfter,
		batchSize:       cfg.BatchSize,
		lockTTL:         cfg.LockTTL,
	}
	if r.interval <= 0 {
		r.interval = 30 * time.Second
	}
	if r.staleAfter <= 0 {
		r.staleAfter = 2 * time.Minute
	}
	if r.redispatchAfter <= 0 {
		r.redispatchAfter = 5 * time.Minute
	}
	if r.batchSize <= 0 {
		r.batchSize = 100
	}
	if r.lockTTL <= 0 {
		r.lockTTL = 60 * time.Second
	}
	return r
}

// Start begins the reaper loop.
// It runs until Stop is called or context is cancelled.
func (r *Reaper) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.mu.Unlock()

	r.logger.Info("reaper starting",
		"interval", r.interval,
		"stale_after", r.staleAfter,
		"redispatch_after", r.redispatchAfter,
	)

	go r.run(ctx)

	return nil
}

// Stop gracefully stops the reaper.
func (r *Reaper) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	close(r.stopCh)
	r.mu.Unlock()

	<-r.doneCh

	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	r.logger.Info("reaper stopped")
}

func (r *Reaper) run(ctx context.Context) {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.Reap(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reaper context cancelled")
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.Reap(ctx)
		}
	}
}

// Reap runs one recovery cycle. When a lock is configured the cycle is
// skipped unless this instance acquires it.
func (r *Reaper) Reap(ctx context.Context) {
	if r.lock != nil {
		acquired, err := r.lock.Acquire(ctx, reaperLockName, r.lockTTL)
		if err != nil {
			r.logger.Warn("failed to acquire reaper lock", "error", err)
			return
		}
		if !acquired {
			r.logger.Debug("reaper lock held by another instance, skipping cycle")
			return
		}
		defer func() {
			if err := r.lock.Release(ctx, reaperLockName); err != nil {
				r.logger.Warn("failed to release reaper lock", "error", err)
			}
		}()
	}

	r.failLost(ctx)
	r.redispatch(ctx)
}

func (r *Reaper) failLost(ctx context.Context) {
	tasks, err := r.store.ListStaleRunning(ctx, time.Now().Add(-r.staleAfter), r.batchSize)
	if err != nil {
		r.logger.Error("failed to list stale running tasks", "error", err)
		return
	}

	for _, task := range tasks {
		if h, ok := r.scheduler.Handler(task.Kind); ok {
			h.Abort(ctx, task, domain.ErrWorkerLost)
		}
		changed, err := r.store.Finish(ctx, task.ID, domain.TaskStateFailed, domain.ErrWorkerLost.Error())
		if err != nil {
			r.logger.Error("failed to fail lost task", "task_id", task.ID, "error", err)
			continue
		}
		if changed {
			r.logger.Warn("failed lost task",
				"task_id", task.ID,
				"target_id", task.TargetID,
				"heartbeat_at", task.HeartbeatAt,
			)
		}
	}
}

func (r *Reaper) redispatch(ctx context.Context) {
	tasks, err := r.store.ListStalePending(ctx, time.Now().Add(-r.redispatchAfter), r.batchSize)
	if err != nil {
		r.logger.Error("failed to list stale pending tasks", "error", err)
		return
	}

	for _, task := range tasks {
		if err := r.scheduler.Dispatch(ctx, task); err != nil {
			r.logger.Error("failed to redispatch task", "task_id", task.ID, "error", err)
			continue
		}
		r.logger.Info("redispatched pending task", "task_id", task.ID, "target_id", task.TargetID)
	}
}
