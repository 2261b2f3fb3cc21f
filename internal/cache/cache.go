// Package cache provides the lookaside caches placed in front of the store.
package cache

import "context"

// Cache maps ids to values. Implementations must be safe for concurrent
// use. Capacity eviction is internal and never reported to callers.
type Cache[V any] interface {
	Get(ctx context.Context, id string) (V, bool)
	Set(ctx context.Context, id string, v V)
	Delete(ctx context.Context, id string)
	Contains(ctx context.Context, id string) bool
}

// Absent marks an id confirmed missing from the store.
type Absent struct{}
