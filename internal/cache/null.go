package cache

import "context"

// Null remembers nothing.
type Null[V any] struct{}

func (Null[V]) Get(context.Context, string) (V, bool) {
	var zero V
	return zero, false
}

func (Null[V]) Set(context.Context, string, V)        {}
func (Null[V]) Delete(context.Context, string)        {}
func (Null[V]) Contains(context.Context, string) bool { return false }
