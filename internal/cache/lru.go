package cache

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LRU is an in-process cache with least-recently-used eviction.
type LRU[V any] struct {
	entries *lru.Cache[string, V]
}

// NewLRU creates an LRU cache holding at most size entries.
func NewLRU[V any](size int) (*LRU[V], error) {
	entries, err := lru.New[string, V](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create lru cache: %w", err)
	}
	return &LRU[V]{entries: entries}, nil
}

func (c *LRU[V]) Get(_ context.Context, id string) (V, bool) {
	return c.entries.Get(id)
}

func (c *LRU[V]) Set(_ context.Context, id string, v V) {
	c.entries.Add(id, v)
}

func (c *LRU[V]) Delete(_ context.Context, id string) {
	c.entries.Remove(id)
}

// Contains checks for id without updating its recency.
func (c *LRU[V]) Contains(_ context.Context, id string) bool {
	return c.entries.Contains(id)
}

// Len returns the number of cached entries.
func (c *LRU[V]) Len() int {
	return c.entries.Len()
}
