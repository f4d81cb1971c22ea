package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

const (
	// Stream names
	taskStream     = "ingest:tasks"
	taskGroup      = "ingest:workers"
	scheduledTasks = "ingest:scheduled"
	deadCounter    = "ingest:dead"

	// Key prefixes
	dispatchKeyPrefix = "ingest:dispatch:"

	// Default consumer name prefix
	consumerPrefix = "worker-"

	dispatchTTL = 24 * time.Hour
)

// Verify interface compliance
var _ driven.TaskQueue = (*Queue)(nil)

// Queue implements TaskQueue using Redis Streams.
// Stream entries carry task references only; the task record itself lives in
// the task store. A hash per task tracks the in-flight message id and the
// delivery count so Ack and Nack can find the entry again.
type Queue struct {
	client        *redis.Client
	consumerName  string
	maxDeliveries int
	claimTimeout  time.Duration
	retryBackoff  time.Duration
}

// QueueConfig holds configuration for the Redis queue.
type QueueConfig struct {
	// ConsumerName must be unique per worker process (default: worker-<uuid>)
	ConsumerName string
	// MaxDeliveries is how many times a reference is handed out before it is dropped (default: 3)
	MaxDeliveries int
	// ClaimTimeout is how long an unacked entry may idle before another
	// consumer takes it over. Must exceed the job timeout (default: 20m).
	ClaimTimeout time.Duration
	// RetryBackoff is the base redelivery delay after a Nack (default: 2s)
	RetryBackoff time.Duration
}

// NewQueue creates a new Redis-backed task queue.
func NewQueue(ctx context.Context, client *redis.Client, cfg QueueConfig) (*Queue, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}

	q := &Queue{
		client:        client,
		consumerName:  cfg.ConsumerName,
		maxDeliveries: cfg.MaxDeliveries,
		claimTimeout:  cfg.ClaimTimeout,
		retryBackoff:  cfg.RetryBackoff,
	}
	if q.consumerName == "" {
		q.consumerName = consumerPrefix + uuid.NewString()
	}
	if q.maxDeliveries <= 0 {
		q.maxDeliveries = 3
	}
	if q.claimTimeout <= 0 {
		q.claimTimeout = 20 * time.Minute
	}
	if q.retryBackoff <= 0 {
		q.retryBackoff = 2 * time.Second
	}

	// Create consumer group if it doesn't exist
	err := q.client.XGroupCreateMkStream(ctx, taskStream, taskGroup, "0").Err()
	if err != nil && !isGroupExistsError(err) {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return q, nil
}

// Enqueue adds a task reference to the stream.
func (q *Queue) Enqueue(ctx context.Context, task *domain.Task) error {
	if task == nil {
		return errors.New("task is required")
	}

	dispatchKey := dispatchKeyPrefix + task.ID

	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, dispatchKey, "target_id", task.TargetID, "kind", string(task.Kind))
	pipe.Expire(ctx, dispatchKey, dispatchTTL)
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: taskStream,
		Values: map[string]interface{}{
			"task_id":   task.ID,
			"target_id": task.TargetID,
			"kind":      string(task.Kind),
		},
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	return nil
}

// DequeueWithTimeout retrieves the next task reference, waiting up to timeout seconds.
// A timeout of zero or less polls without blocking.
func (q *Queue) DequeueWithTimeout(ctx context.Context, timeout int) (*domain.Task, error) {
	// Best effort: a failure here only delays redelivery
	_ = q.promoteScheduledTasks(ctx)

	// Abandoned entries first
	task, err := q.claimAbandonedTask(ctx)
	if err == nil && task != nil {
		return task, nil
	}

	blockDuration := time.Duration(-1)
	if timeout > 0 {
		blockDuration = time.Duration(timeout) * time.Second
	}

	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    taskGroup,
		Consumer: q.consumerName,
		Streams:  []string{taskStream, ">"},
		Count:    1,
		Block:    blockDuration,
	}).Result()

	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // No tasks available
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}

	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return nil, nil
	}

	return q.deliver(ctx, streams[0].Messages[0])
}

// deliver records the message id against the task and builds the reference.
// Malformed entries are acked and dropped.
func (q *Queue) deliver(ctx context.Context, msg redis.XMessage) (*domain.Task, error) {
	taskID, _ := msg.Values["task_id"].(string)
	targetID, _ := msg.Values["target_id"].(string)
	kind, _ := msg.Values["kind"].(string)
	if taskID == "" || targetID == "" {
		q.drop(ctx, msg.ID)
		return nil, nil
	}

	dispatchKey := dispatchKeyPrefix + taskID
	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, dispatchKey, "msg", msg.ID, "target_id", targetID, "kind", kind)
	pipe.HIncrBy(ctx, dispatchKey, "deliveries", 1)
	pipe.Expire(ctx, dispatchKey, dispatchTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to record delivery: %w", err)
	}

	return &domain.Task{
		ID:       taskID,
		TargetID: targetID,
		Kind:     domain.TaskKind(kind),
		State:    domain.TaskStatePending,
	}, nil
}

// Ack acknowledges a handled task reference and removes it from the stream.
func (q *Queue) Ack(ctx context.Context, taskID string) error {
	dispatchKey := dispatchKeyPrefix + taskID

	msgID, err := q.client.HGet(ctx, dispatchKey, "msg").Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to get message ID: %w", err)
	}

	pipe := q.client.TxPipeline()
	if msgID != "" {
		pipe.XAck(ctx, taskStream, taskGroup, msgID)
		pipe.XDel(ctx, taskStream, msgID)
	}
	pipe.Del(ctx, dispatchKey)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to ack task: %w", err)
	}

	return nil
}

// Nack schedules the reference for redelivery with exponential backoff, or
// drops it once MaxDeliveries is reached.
func (q *Queue) Nack(ctx context.Context, taskID string, reason string) error {
	dispatchKey := dispatchKeyPrefix + taskID

	fields, err := q.client.HGetAll(ctx, dispatchKey).Result()
	if err != nil {
		return fmt.Errorf("failed to get dispatch record: %w", err)
	}
	if len(fields) == 0 {
		return fmt.Errorf("%w: dispatch record for task %s", domain.ErrNotFound, taskID)
	}
	deliveries, _ := strconv.Atoi(fields["deliveries"])

	pipe := q.client.TxPipeline()
	if msgID := fields["msg"]; msgID != "" {
		pipe.XAck(ctx, taskStream, taskGroup, msgID)
		pipe.XDel(ctx, taskStream, msgID)
	}

	if deliveries < q.maxDeliveries {
		backoff := q.retryBackoff * time.Duration(1<<max(deliveries-1, 0))
		if backoff > 5*time.Minute {
			backoff = 5 * time.Minute
		}
		pipe.HSet(ctx, dispatchKey, "msg", "", "last_error", reason)
		pipe.ZAdd(ctx, scheduledTasks, redis.Z{
			Score:  float64(time.Now().Add(backoff).UnixMilli()),
			Member: taskID,
		})
	} else {
		pipe.Del(ctx, dispatchKey)
		pipe.Incr(ctx, deadCounter)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to nack task: %w", err)
	}

	return nil
}

// Stats returns queue statistics.
func (q *Queue) Stats(ctx context.Context) (*driven.QueueStats, error) {
	stats := &driven.QueueStats{}

	length, err := q.client.XLen(ctx, taskStream).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get stream length: %w", err)
	}

	pending, err := q.client.XPending(ctx, taskStream, taskGroup).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get pending entries: %w", err)
	}
	if pending != nil {
		stats.InFlightCount = pending.Count
	}

	scheduledCount, err := q.client.ZCard(ctx, scheduledTasks).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get scheduled count: %w", err)
	}
	stats.PendingCount = length - stats.InFlightCount + scheduledCount

	dead, err := q.client.Get(ctx, deadCounter).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get dead count: %w", err)
	}
	stats.DeadCount = dead

	// Stream ids start with the insertion time in milliseconds
	if length > stats.InFlightCount {
		oldest, err := q.client.XRangeN(ctx, taskStream, "-", "+", 1).Result()
		if err == nil && len(oldest) > 0 {
			if ms, ok := streamIDMillis(oldest[0].ID); ok {
				stats.OldestPendingAge = int64(time.Since(time.UnixMilli(ms)).Seconds())
			}
		}
	}

	return stats, nil
}

// Ping checks if the queue backend is healthy.
func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Close cleans up resources.
func (q *Queue) Close() error {
	// Redis client is shared, don't close it here
	return nil
}

// promoteScheduledTasks moves due redeliveries back onto the stream.
func (q *Queue) promoteScheduledTasks(ctx context.Context) error {
	now := time.Now().UnixMilli()

	taskIDs, err := q.client.ZRangeByScore(ctx, scheduledTasks, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now, 10),
	}).Result()
	if err != nil {
		return err
	}

	for _, taskID := range taskIDs {
		// ZRem decides which consumer promotes the entry
		removed, err := q.client.ZRem(ctx, scheduledTasks, taskID).Result()
		if err != nil || removed == 0 {
			continue
		}

		fields, err := q.client.HGetAll(ctx, dispatchKeyPrefix+taskID).Result()
		if err != nil || fields["target_id"] == "" {
			continue
		}

		q.client.XAdd(ctx, &redis.XAddArgs{
			Stream: taskStream,
			Values: map[string]interface{}{
				"task_id":   taskID,
				"target_id": fields["target_id"],
				"kind":      fields["kind"],
			},
		})
	}

	return nil
}

// claimAbandonedTask takes over an entry another consumer left unacked.
func (q *Queue) claimAbandonedTask(ctx context.Context) (*domain.Task, error) {
	pending, err := q.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: taskStream,
		Group:  taskGroup,
		Start:  "-",
		End:    "+",
		Count:  10,
		Idle:   q.claimTimeout,
	}).Result()
	if err != nil {
		return nil, err
	}

	for _, p := range pending {
		claimed, err := q.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   taskStream,
			Group:    taskGroup,
			Consumer: q.consumerName,
			MinIdle:  q.claimTimeout,
			Messages: []string{p.ID},
		}).Result()
		if err != nil || len(claimed) == 0 {
			continue
		}

		task, err := q.deliver(ctx, claimed[0])
		if err != nil || task == nil {
			continue
		}
		return task, nil
	}

	return nil, nil
}

func (q *Queue) drop(ctx context.Context, msgID string) {
	q.client.XAck(ctx, taskStream, taskGroup, msgID)
	q.client.XDel(ctx, taskStream, msgID)
}

// Helper functions

func isGroupExistsError(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

func streamIDMillis(id string) (int64, bool) {
	ms, _, found := strings.Cut(id, "-")
	if !found {
		return 0, false
	}
	v, err := strconv.ParseInt(ms, 10, 64)
	return v, err == nil
}
