// Package keylock serializes work per key, typically per tenant.
//
// Billing notifications and plan changes for the same tenant must never
// interleave. Locker gives a mutual-exclusion region keyed by an arbitrary
// string. Two implementations exist: Memory for single-process deployments
// and tests, and Redis for deployments running several replicas.
package keylock

import (
	"context"
	"errors"
)

var (
	ErrLockTimeout = errors.New("keylock: lock wait aborted")
	ErrLockBackend = errors.New("keylock: lock backend failure")
)

// Locker obtains an exclusive lock for a key.
// Lock blocks until the lock is held or ctx is done. The returned unlock
// function is idempotent and must always be called.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// TenantKey builds the lock key for tenant-scoped billing state.
func TenantKey(tenantID string) string {
	return "tenant:" + tenantID
}

// Do runs fn while holding the lock for key.
func Do(ctx context.Context, l Locker, key string, fn func(context.Context) error) error {
	unlock, err := l.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()
	return fn(ctx)
}
