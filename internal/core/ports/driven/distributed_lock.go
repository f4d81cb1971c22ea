package driven

import (
	"context"
	"time"
)

// DistributedLock coordinates periodic maintenance across instances.
// The reaper takes it so that only one instance sweeps stale tasks per cycle.
type DistributedLock interface {
	// Acquire attempts to acquire a named lock with the given TTL.
	// Returns false if the lock is held by another instance.
	Acquire(ctx context.Context, name string, ttl time.Duration) (acquired bool, err error)

	// Release releases a named lock. Safe to call when the lock is not held.
	Release(ctx context.Context, name string) error

	// Extend extends the TTL of a held lock. Implementations without TTLs
	// (PostgreSQL advisory locks) treat this as a no-op.
	Extend(ctx context.Context, name string, ttl time.Duration) error

	// Ping checks if the lock backend is healthy.
	Ping(ctx context.Context) error
}
