package driven

import (
	"context"
	"time"
)

// DistributedLock coordinates instances of the coordinator. The scheduler
// takes it once per cycle and the compute dispatcher takes one per
// (corpus, feature count) while it inserts the status lock.
type DistributedLock interface {
	// Acquire tries to take name for ttl. Returns false, nil when another
	// instance holds it.
	Acquire(ctx context.Context, name string, ttl time.Duration) (acquired bool, err error)

	// Release gives up name. Releasing a lock that is not held is not an error.
	Release(ctx context.Context, name string) error

	// Extend pushes the expiry of a held lock. Backends without expiry treat
	// it as a no-op.
	Extend(ctx context.Context, name string, ttl time.Duration) error

	// Ping checks if the lock backend is healthy.
	Ping(ctx context.Context) error
}
