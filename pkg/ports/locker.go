package ports

import (
	"context"
	"time"
)

// UnlockFunc releases a distributed lock.
type UnlockFunc func(ctx context.Context) error

// DistributedLocker coordinates writes to the same map across relay replicas.
type DistributedLocker interface {
	// Lock blocks until the lock for key (a map ID) is held or ctx is done.
	// The lock expires after ttl if the holder disappears.
	// The returned UnlockFunc must be called to release it.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
