package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

// MockTaskStore is an in-memory TaskStore. CreateActive is atomic under the
// store mutex, mirroring the partial unique index of the PostgreSQL store.
type MockTaskStore struct {
	mu    sync.RWMutex
	tasks map[string]*domain.Task

	// Optional hooks
	CreateActiveFn func(task *domain.Task) error
	PollCancelFn   func(taskID string) (bool, error)

	pollCalls int
}

// NewMockTaskStore creates a new MockTaskStore
func NewMockTaskStore() *MockTaskStore {
	return &MockTaskStore{
		tasks: make(map[string]*domain.Task),
	}
}

func (m *MockTaskStore) CreateActive(ctx context.Context, task *domain.Task) error {
	if m.CreateActiveFn != nil {
		if err := m.CreateActiveFn(task); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tasks {
		if t.TargetID == task.TargetID && t.IsActive() {
			return domain.ErrTaskActive
		}
	}
	c := *task
	m.tasks[task.ID] = &c
	return nil
}

func (m *MockTaskStore) Get(ctx context.Context, taskID string) (*domain.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := *t
	return &c, nil
}

func (m *MockTaskStore) GetActiveByTarget(ctx context.Context, targetID string) (*domain.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.tasks {
		if t.TargetID == targetID && t.IsActive() {
			c := *t
			return &c, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockTaskStore) MarkRunning(ctx context.Context, taskID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if t.State != domain.TaskStatePending {
		return false, nil
	}
	t.MarkRunning()
	return true, nil
}

func (m *MockTaskStore) Finish(ctx context.Context, taskID string, state domain.TaskState, errMsg string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return false, domain.ErrNotFound
	}
	return t.Finish(state, errMsg), nil
}

func (m *MockTaskStore) RequestCancel(ctx context.Context, targetID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tasks {
		if t.TargetID == targetID && t.IsActive() {
			t.CancelRequested = true
			return true, nil
		}
	}
	return false, nil
}

func (m *MockTaskStore) PollCancel(ctx context.Context, taskID string) (bool, error) {
	if m.PollCancelFn != nil {
		return m.PollCancelFn(taskID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.pollCalls++
	t, ok := m.tasks[taskID]
	if !ok {
		return false, domain.ErrNotFound
	}
	t.Heartbeat()
	return t.CancelRequested, nil
}

func (m *MockTaskStore) ListStaleRunning(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Task, error) {
	return m.list(func(t *domain.Task) bool {
		return t.State == domain.TaskStateRunning && t.HeartbeatAt != nil && t.HeartbeatAt.Before(cutoff)
	}, limit), nil
}

func (m *MockTaskStore) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Task, error) {
	return m.list(func(t *domain.Task) bool {
		return t.State == domain.TaskStatePending && t.CreatedAt.Before(cutoff)
	}, limit), nil
}

func (m *MockTaskStore) list(match func(*domain.Task) bool, limit int) []*domain.Task {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Task
	for _, t := range m.tasks {
		if match(t) {
			c := *t
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Put stores a task as-is (for test setup)
func (m *MockTaskStore) Put(task *domain.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *task
	m.tasks[task.ID] = &c
}

// CountForTarget returns how many tasks exist for target in any state
func (m *MockTaskStore) CountForTarget(targetID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, t := range m.tasks {
		if t.TargetID == targetID {
			n++
		}
	}
	return n
}

// PollCalls returns how many times PollCancel ran against the store
func (m *MockTaskStore) PollCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pollCalls
}
