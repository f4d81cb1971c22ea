package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven/mocks"
)

func newTestReaper(f *pipelineFixture, lock *mocks.MockDistributedLock) *Reaper {
	cfg := ReaperConfig{
		Store:           f.tasks,
		Scheduler:       f.scheduler,
		Interval:        10 * time.Millisecond,
		StaleAfter:      time.Minute,
		RedispatchAfter: time.Minute,
	}
	if lock != nil {
		cfg.Lock = lock
	}
	return NewReaper(cfg)
}

func staleRunningTask(targetID string, age time.Duration) *domain.Task {
	task := domain.NewTask(domain.TaskKindIngest, targetID)
	task.MarkRunning()
	old := time.Now().Add(-age)
	task.StartedAt = &old
	task.HeartbeatAt = &old
	return task
}

func TestNewReaper_Defaults(t *testing.T) {
	r := NewReaper(ReaperConfig{})

	if r.interval != 30*time.Second {
		t.Errorf("expected interval 30s, got %v", r.interval)
	}
	if r.staleAfter != 2*time.Minute {
		t.Errorf("expected stale after 2m, got %v", r.staleAfter)
	}
	if r.redispatchAfter != 5*time.Minute {
		t.Errorf("expected redispatch after 5m, got %v", r.redispatchAfter)
	}
	if r.batchSize != 100 {
		t.Errorf("expected batch size 100, got %d", r.batchSize)
	}
	if r.lockTTL != 60*time.Second {
		t.Errorf("expected lock ttl 60s, got %v", r.lockTTL)
	}
	if r.logger == nil {
		t.Error("expected default logger")
	}
}

func TestReaper_FailsLostTask(t *testing.T) {
	f := newPipelineFixture(t)
	f.addItem(t, "item1", domain.ItemKindText)
	f.items.SetStatus("item1", domain.ItemStatusEmbedding)
	task := staleRunningTask("item1", 10*time.Minute)
	f.tasks.Put(task)

	newTestReaper(f, nil).Reap(context.Background())

	got := f.task(t, task.ID)
	if got.State != domain.TaskStateFailed || got.Error != "worker lost" {
		t.Errorf("expected failed 'worker lost', got %s %q", got.State, got.Error)
	}
	item := f.item(t, "item1")
	if item.Status != domain.ItemStatusError || item.ErrorMessage != "worker lost" {
		t.Errorf("expected item error 'worker lost', got %s %q", item.Status, item.ErrorMessage)
	}

	// The target is free again.
	if _, err := f.ingestion.RetryProcessing(context.Background(), "item1"); err != nil {
		t.Errorf("retry after reap: %v", err)
	}
}

func TestReaper_LeavesLiveTasks(t *testing.T) {
	f := newPipelineFixture(t)
	f.addItem(t, "item1", domain.ItemKindText)
	f.items.SetStatus("item1", domain.ItemStatusProcessing)
	task := staleRunningTask("item1", 5*time.Second)
	f.tasks.Put(task)

	newTestReaper(f, nil).Reap(context.Background())

	if got := f.task(t, task.ID); got.State != domain.TaskStateRunning {
		t.Errorf("expected running task untouched, got %s", got.State)
	}
	if item := f.item(t, "item1"); item.Status != domain.ItemStatusProcessing {
		t.Errorf("expected item untouched, got %s", item.Status)
	}
}

func TestReaper_RedispatchesStalePending(t *testing.T) {
	f := newPipelineFixture(t)
	stale := domain.NewTask(domain.TaskKindIngest, "item1")
	stale.CreatedAt = time.Now().Add(-10 * time.Minute)
	fresh := domain.NewTask(domain.TaskKindIngest, "item2")
	f.tasks.Put(stale)
	f.tasks.Put(fresh)

	newTestReaper(f, nil).Reap(context.Background())

	if f.queue.Pending() != 1 {
		t.Fatalf("expected one redispatched reference, got %d", f.queue.Pending())
	}
	ref, _ := f.queue.DequeueWithTimeout(context.Background(), 0)
	if ref.ID != stale.ID {
		t.Errorf("expected stale task %s redispatched, got %s", stale.ID, ref.ID)
	}
}

func TestReaper_RedispatchErrorContinues(t *testing.T) {
	f := newPipelineFixture(t)
	f.queue.EnqueueFn = func(task *domain.Task) error {
		return errors.New("queue down")
	}
	stale := domain.NewTask(domain.TaskKindIngest, "item1")
	stale.CreatedAt = time.Now().Add(-10 * time.Minute)
	f.tasks.Put(stale)

	newTestReaper(f, nil).Reap(context.Background())

	if got := f.task(t, stale.ID); got.State != domain.TaskStatePending {
		t.Errorf("expected task to stay pending, got %s", got.State)
	}
}

func TestReaper_SkipsWhenLockHeldElsewhere(t *testing.T) {
	f := newPipelineFixture(t)
	lock := mocks.NewMockDistributedLock()
	lock.SetLockHeld(reaperLockName, time.Minute)
	task := staleRunningTask("item1", 10*time.Minute)
	f.tasks.Put(task)

	newTestReaper(f, lock).Reap(context.Background())

	if got := f.task(t, task.ID); got.State != domain.TaskStateRunning {
		t.Errorf("expected cycle skipped, got %s", got.State)
	}
}

func TestReaper_ReleasesLock(t *testing.T) {
	f := newPipelineFixture(t)
	lock := mocks.NewMockDistributedLock()

	newTestReaper(f, lock).Reap(context.Background())

	if lock.Acquires() != 1 {
		t.Errorf("expected one acquire, got %d", lock.Acquires())
	}
	if lock.IsHeld(reaperLockName) {
		t.Error("expected lock released after cycle")
	}
}

func TestReaper_LockError(t *testing.T) {
	f := newPipelineFixture(t)
	lock := mocks.NewMockDistributedLock()
	lock.AcquireFn = func(name string, ttl time.Duration) (bool, error) {
		return false, errors.New("redis unavailable")
	}
	task := staleRunningTask("item1", 10*time.Minute)
	f.tasks.Put(task)

	newTestReaper(f, lock).Reap(context.Background())

	if got := f.task(t, task.ID); got.State != domain.TaskStateRunning {
		t.Errorf("expected cycle skipped on lock error, got %s", got.State)
	}
}

func TestReaper_StartStop(t *testing.T) {
	f := newPipelineFixture(t)
	lock := mocks.NewMockDistributedLock()
	r := newTestReaper(f, lock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := r.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	// Starting twice is a no-op.
	if err := r.Start(ctx); err != nil {
		t.Fatalf("second start: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for lock.Acquires() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if lock.Acquires() < 2 {
		t.Errorf("expected repeated cycles, got %d", lock.Acquires())
	}

	r.Stop()
	r.Stop()

	r.mu.RLock()
	running := r.running
	r.mu.RUnlock()
	if running {
		t.Error("expected reaper stopped")
	}
}

func TestReaper_StopsOnContextCancel(t *testing.T) {
	f := newPipelineFixture(t)
	r := newTestReaper(f, nil)

	ctx, cancel := context.WithCancel(context.Background())
	if err := r.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	cancel()

	select {
	case <-r.doneCh:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop after context cancellation")
	}
	r.Stop()
}
