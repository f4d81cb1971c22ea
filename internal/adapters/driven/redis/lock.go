package redis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.DistributedLock = (*Lock)(nil)

const lockPrefix = "ingest:lock:"

// ErrLockNotHeld is returned by Extend when this instance does not own the lock
var ErrLockNotHeld = errors.New("lock not held by this instance")

// Lock implements DistributedLock using SET NX PX.
// Each instance has an owner id; release and extend only act on keys whose
// value is that id, so an expired lock re-taken elsewhere is never touched.
type Lock struct {
	client  *redis.Client
	ownerID string
}

// NewLock creates a new Redis-backed distributed lock.
func NewLock(client *redis.Client) *Lock {
	hostname, _ := os.Hostname()
	return &Lock{
		client:  client,
		ownerID: fmt.Sprintf("%s:%d:%s", hostname, os.Getpid(), uuid.NewString()),
	}
}

// Acquire takes the lock if nobody holds it. Not reentrant.
func (l *Lock) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	acquired, err := l.client.SetNX(ctx, lockPrefix+name, l.ownerID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	return acquired, nil
}

// ownerScript runs a command against KEYS[1] only when it holds ARGV[1].
// ARGV[2] selects the command: "del" or "pexpire" (with ttl in ARGV[3]).
var ownerScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) ~= ARGV[1] then
		return 0
	end
	if ARGV[2] == "del" then
		return redis.call("del", KEYS[1])
	end
	return redis.call("pexpire", KEYS[1], ARGV[3])
`)

// Release deletes the lock if this instance owns it. Releasing a lock that
// expired or belongs to someone else is not an error.
func (l *Lock) Release(ctx context.Context, name string) error {
	err := ownerScript.Run(ctx, l.client, []string{lockPrefix + name}, l.ownerID, "del").Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock %s: %w", name, err)
	}
	return nil
}

// Extend pushes out the TTL of a lock this instance owns.
func (l *Lock) Extend(ctx context.Context, name string, ttl time.Duration) error {
	extended, err := ownerScript.Run(ctx, l.client, []string{lockPrefix + name}, l.ownerID, "pexpire", ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("extend lock %s: %w", name, err)
	}
	if extended == 0 {
		return fmt.Errorf("extend lock %s: %w", name, ErrLockNotHeld)
	}
	return nil
}

// Ping checks if the Redis backend is healthy.
func (l *Lock) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// OwnerID returns the identifier this instance writes into held locks.
func (l *Lock) OwnerID() string {
	return l.ownerID
}
