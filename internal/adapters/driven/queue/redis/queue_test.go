package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

func setupTestQueue(t *testing.T, cfg QueueConfig) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	q, err := NewQueue(context.Background(), client, cfg)
	require.NoError(t, err)
	return q, mr
}

func TestNewQueue_Defaults(t *testing.T) {
	q, _ := setupTestQueue(t, QueueConfig{})

	assert.Contains(t, q.consumerName, consumerPrefix)
	assert.Equal(t, 3, q.maxDeliveries)
	assert.Equal(t, 20*time.Minute, q.claimTimeout)
	assert.Equal(t, 2*time.Second, q.retryBackoff)
}

func TestNewQueue_GroupAlreadyExists(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	_, err := NewQueue(context.Background(), client, QueueConfig{ConsumerName: "a"})
	require.NoError(t, err)
	_, err = NewQueue(context.Background(), client, QueueConfig{ConsumerName: "b"})
	assert.NoError(t, err)
}

func TestNewQueue_NilClient(t *testing.T) {
	_, err := NewQueue(context.Background(), nil, QueueConfig{})
	assert.Error(t, err)
}

func TestQueue_EnqueueDequeue(t *testing.T) {
	q, _ := setupTestQueue(t, QueueConfig{})
	ctx := context.Background()
	task := domain.NewTask(domain.TaskKindIngest, "item1")

	require.NoError(t, q.Enqueue(ctx, task))

	got, err := q.DequeueWithTimeout(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, task.ID, got.ID)
	assert.Equal(t, "item1", got.TargetID)
	assert.Equal(t, domain.TaskKindIngest, got.Kind)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.PendingCount)
	assert.Equal(t, int64(1), stats.InFlightCount)
}

func TestQueue_DequeueEmpty(t *testing.T) {
	q, _ := setupTestQueue(t, QueueConfig{})

	got, err := q.DequeueWithTimeout(context.Background(), 0)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestQueue_EnqueueNil(t *testing.T) {
	q, _ := setupTestQueue(t, QueueConfig{})
	assert.Error(t, q.Enqueue(context.Background(), nil))
}

func TestQueue_Ack(t *testing.T) {
	q, mr := setupTestQueue(t, QueueConfig{})
	ctx := context.Background()
	task := domain.NewTask(domain.TaskKindIngest, "item1")

	require.NoError(t, q.Enqueue(ctx, task))
	_, err := q.DequeueWithTimeout(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, q.Ack(ctx, task.ID))

	assert.False(t, mr.Exists(dispatchKeyPrefix+task.ID))
	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.PendingCount)
	assert.Equal(t, int64(0), stats.InFlightCount)
}

func TestQueue_NackRedelivers(t *testing.T) {
	q, _ := setupTestQueue(t, QueueConfig{RetryBackoff: time.Millisecond})
	ctx := context.Background()
	task := domain.NewTask(domain.TaskKindIngest, "item1")

	require.NoError(t, q.Enqueue(ctx, task))
	_, err := q.DequeueWithTimeout(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, q.Nack(ctx, task.ID, "task store unreachable"))

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.PendingCount)
	assert.Equal(t, int64(0), stats.InFlightCount)

	time.Sleep(10 * time.Millisecond)
	got, err := q.DequeueWithTimeout(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, task.ID, got.ID)
	assert.Equal(t, "item1", got.TargetID)
}

func TestQueue_NackExhaustsDeliveries(t *testing.T) {
	q, mr := setupTestQueue(t, QueueConfig{MaxDeliveries: 2, RetryBackoff: time.Millisecond})
	ctx := context.Background()
	task := domain.NewTask(domain.TaskKindIngest, "item1")

	require.NoError(t, q.Enqueue(ctx, task))
	for i := 0; i < 2; i++ {
		time.Sleep(10 * time.Millisecond)
		got, err := q.DequeueWithTimeout(ctx, 1)
		require.NoError(t, err)
		require.NotNil(t, got, "delivery %d", i+1)
		require.NoError(t, q.Nack(ctx, task.ID, "boom"))
	}

	time.Sleep(10 * time.Millisecond)
	got, err := q.DequeueWithTimeout(ctx, 0)
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.False(t, mr.Exists(dispatchKeyPrefix+task.ID))
	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.DeadCount)
	assert.Equal(t, int64(0), stats.PendingCount)
}

func TestQueue_NackUnknownTask(t *testing.T) {
	q, _ := setupTestQueue(t, QueueConfig{})

	err := q.Nack(context.Background(), "missing", "boom")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestQueue_MalformedEntryDropped(t *testing.T) {
	q, _ := setupTestQueue(t, QueueConfig{})
	ctx := context.Background()

	require.NoError(t, q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: taskStream,
		Values: map[string]interface{}{"garbage": "1"},
	}).Err())

	got, err := q.DequeueWithTimeout(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, got)

	length, err := q.client.XLen(ctx, taskStream).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), length)
}

func TestQueue_Ping(t *testing.T) {
	q, mr := setupTestQueue(t, QueueConfig{})

	assert.NoError(t, q.Ping(context.Background()))
	assert.NoError(t, q.Close())

	mr.Close()
	assert.Error(t, q.Ping(context.Background()))
}

func TestStreamIDMillis(t *testing.T) {
	ms, ok := streamIDMillis("1700000000000-3")
	assert.True(t, ok)
	assert.Equal(t, int64(1700000000000), ms)

	_, ok = streamIDMillis("bogus")
	assert.False(t, ok)
}
