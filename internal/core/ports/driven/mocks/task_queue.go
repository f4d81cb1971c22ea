package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// MockTaskQueue is a channel-backed TaskQueue for testing with optional hooks
type MockTaskQueue struct {
	ch chan *domain.Task

	mu     sync.Mutex
	acked  []string
	nacked []string

	EnqueueFn func(task *domain.Task) error
	DequeueFn func(ctx context.Context, timeout int) (*domain.Task, error)
	PingFn    func() error
}

// NewMockTaskQueue creates a new MockTaskQueue
func NewMockTaskQueue() *MockTaskQueue {
	return &MockTaskQueue{ch: make(chan *domain.Task, 128)}
}

func (m *MockTaskQueue) Enqueue(ctx context.Context, task *domain.Task) error {
	if m.EnqueueFn != nil {
		if err := m.EnqueueFn(task); err != nil {
			return err
		}
	}
	ref := &domain.Task{ID: task.ID, TargetID: task.TargetID, Kind: task.Kind}
	select {
	case m.ch <- ref:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MockTaskQueue) DequeueWithTimeout(ctx context.Context, timeout int) (*domain.Task, error) {
	if m.DequeueFn != nil {
		return m.DequeueFn(ctx, timeout)
	}
	wait := time.Duration(timeout) * time.Second
	if wait <= 0 {
		wait = 10 * time.Millisecond
	}
	select {
	case task := <-m.ch:
		return task, nil
	case <-time.After(wait):
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *MockTaskQueue) Ack(ctx context.Context, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acked = append(m.acked, taskID)
	return nil
}

func (m *MockTaskQueue) Nack(ctx context.Context, taskID string, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nacked = append(m.nacked, taskID)
	return nil
}

func (m *MockTaskQueue) Stats(ctx context.Context) (*driven.QueueStats, error) {
	return &driven.QueueStats{PendingCount: int64(len(m.ch))}, nil
}

func (m *MockTaskQueue) Ping(ctx context.Context) error {
	if m.PingFn != nil {
		return m.PingFn()
	}
	return nil
}

func (m *MockTaskQueue) Close() error {
	return nil
}

// Pending returns the number of undelivered references
func (m *MockTaskQueue) Pending() int {
	return len(m.ch)
}

// Acked returns acknowledged task IDs
func (m *MockTaskQueue) Acked() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.acked...)
}

// Nacked returns negatively acknowledged task IDs
func (m *MockTaskQueue) Nacked() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.nacked...)
}
