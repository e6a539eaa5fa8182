// Package lock provides leases that mark a user as having an active run.
//
// A lease is held for the whole duration of a stage and expires on its own
// when the holder stops extending it, so a crashed process cannot pin a user
// forever. Implementations: in-process (Memory), Redis and the database
// claim table in the repository package.
package lock

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotAcquired is returned when another holder owns the key.
	ErrNotAcquired = errors.New("lock is held by another owner")
	// ErrLeaseLost is returned when the lease expired or was taken over.
	ErrLeaseLost = errors.New("lease is no longer owned")
)

// Lease is an acquired lock.
type Lease interface {
	// Extend pushes the expiry to now+ttl if the lease is still owned.
	Extend(ctx context.Context, ttl time.Duration) error
	// Release gives the lock up. Releasing a lost lease is not an error.
	Release(ctx context.Context) error
}

// Locker hands out leases keyed by an arbitrary string.
type Locker interface {
	// Acquire tries to take key for ttl without blocking.
	// Returns ErrNotAcquired if the key is held and not expired.
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// UserRunKey is the lock key guarding the single active run of a user.
func UserRunKey(userID string) string {
	return "campaign-run:user:" + userID
}
