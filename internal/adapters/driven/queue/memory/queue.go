package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// Ensure Queue implements TaskQueue
var _ driven.TaskQueue = (*Queue)(nil)

// ErrClosed is returned by operations on a closed queue
var ErrClosed = errors.New("queue closed")

// Queue is an in-process TaskQueue for single-binary deployments and tests.
// References are lost on restart; the reaper re-dispatches stale pending
// tasks from the task store.
type Queue struct {
	mu            sync.Mutex
	ready         []*entry
	inFlight      map[string]*entry
	dead          int64
	closed        bool
	notify        chan struct{}
	maxDeliveries int
	retryBackoff  time.Duration
}

type entry struct {
	task       domain.Task
	deliveries int
	enqueuedAt time.Time
}

// QueueConfig holds configuration for the in-memory queue.
type QueueConfig struct {
	// MaxDeliveries is how many times a reference is handed out before it is dropped (default: 3)
	MaxDeliveries int
	// RetryBackoff is the delay before a Nack'd reference is visible again (default: 2s)
	RetryBackoff time.Duration
}

// NewQueue creates a new in-memory queue.
func NewQueue(cfg QueueConfig) *Queue {
	q := &Queue{
		inFlight:      make(map[string]*entry),
		notify:        make(chan struct{}, 1),
		maxDeliveries: cfg.MaxDeliveries,
		retryBackoff:  cfg.RetryBackoff,
	}
	if q.maxDeliveries <= 0 {
		q.maxDeliveries = 3
	}
	if q.retryBackoff <= 0 {
		q.retryBackoff = 2 * time.Second
	}
	return q
}

// Enqueue adds a task reference.
func (q *Queue) Enqueue(ctx context.Context, task *domain.Task) error {
	if task == nil {
		return errors.New("task is required")
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}

	q.push(&entry{
		task: domain.Task{
			ID:       task.ID,
			TargetID: task.TargetID,
			Kind:     task.Kind,
			State:    domain.TaskStatePending,
		},
		enqueuedAt: time.Now(),
	})
	return nil
}

// push appends e and wakes one waiting consumer. Caller holds mu.
func (q *Queue) push(e *entry) {
	q.ready = append(q.ready, e)
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// DequeueWithTimeout retrieves the next reference, waiting up to timeout seconds.
func (q *Queue) DequeueWithTimeout(ctx context.Context, timeout int) (*domain.Task, error) {
	timer := time.NewTimer(time.Duration(timeout) * time.Second)
	defer timer.Stop()

	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, ErrClosed
		}
		if len(q.ready) > 0 {
			e := q.ready[0]
			q.ready = q.ready[1:]
			e.deliveries++
			q.inFlight[e.task.ID] = e
			more := len(q.ready) > 0
			q.mu.Unlock()

			// Pass the wake-up on to the next consumer
			if more {
				select {
				case q.notify <- struct{}{}:
				default:
				}
			}

			task := e.task
			return &task, nil
		}
		q.mu.Unlock()

		if timeout <= 0 {
			return nil, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, nil
		case <-q.notify:
		}
	}
}

// Ack forgets a handled reference.
func (q *Queue) Ack(ctx context.Context, taskID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.inFlight[taskID]; !ok {
		return domain.ErrNotFound
	}
	delete(q.inFlight, taskID)
	return nil
}

// Nack makes the reference visible again after the retry backoff, or drops
// it once MaxDeliveries is reached.
func (q *Queue) Nack(ctx context.Context, taskID string, reason string) error {
	q.mu.Lock()
	e, ok := q.inFlight[taskID]
	if !ok {
		q.mu.Unlock()
		return domain.ErrNotFound
	}
	delete(q.inFlight, taskID)

	if e.deliveries >= q.maxDeliveries {
		q.dead++
		q.mu.Unlock()
		return nil
	}
	q.mu.Unlock()

	time.AfterFunc(q.retryBackoff, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		if !q.closed {
			q.push(e)
		}
	})
	return nil
}

// Stats returns queue statistics.
func (q *Queue) Stats(ctx context.Context) (*driven.QueueStats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := &driven.QueueStats{
		PendingCount:  int64(len(q.ready)),
		InFlightCount: int64(len(q.inFlight)),
		DeadCount:     q.dead,
	}
	if len(q.ready) > 0 {
		stats.OldestPendingAge = int64(time.Since(q.ready[0].enqueuedAt).Seconds())
	}
	return stats, nil
}

// Ping reports whether the queue is open.
func (q *Queue) Ping(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	return nil
}

// Close rejects further operations. Pending references are discarded.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.ready = nil
	return nil
}
