// Package lock provides the run-scoped exclusive leases that keep one execution from being
// processed twice.
package lock

import (
	"context"
	"time"
)

// Store is a set-if-absent lease store. Each lease carries an owner token so that a holder
// whose lease expired cannot release its successor's.
type Store interface {
	// Acquire returns ok false without error when key is already held.
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	// Release drops the lease only while it is still held with token.
	Release(ctx context.Context, key, token string) error
}

// ExecutionKey is the lease key for one execution.
func ExecutionKey(executionID string) string {
	return "workflow:execution:" + executionID
}
