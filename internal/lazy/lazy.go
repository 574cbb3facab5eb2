// Package lazy provides a process-wide value that is loaded on first use.
package lazy

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Value loads T once. Concurrent callers arriving before the first load
// completes share that load. A failed load is not cached.
type Value[T any] struct {
	load  func(ctx context.Context) (T, error)
	group singleflight.Group

	mu   sync.RWMutex
	done bool
	val  T
}

// New creates a Value backed by load.
func New[T any](load func(ctx context.Context) (T, error)) *Value[T] {
	return &Value[T]{load: load}
}

// Get returns the loaded value, triggering the load if needed.
func (v *Value[T]) Get(ctx context.Context) (T, error) {
	if val, ok := v.cached(); ok {
		return val, nil
	}

	res, err, _ := v.group.Do("load", func() (any, error) {
		if val, ok := v.cached(); ok {
			return val, nil
		}
		// The load outlives a caller that gives up, other waiters still need it.
		val, err := v.load(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		v.mu.Lock()
		v.val = val
		v.done = true
		v.mu.Unlock()
		return val, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return res.(T), nil
}

// Loaded reports whether a successful load has happened.
func (v *Value[T]) Loaded() bool {
	_, ok := v.cached()
	return ok
}

func (v *Value[T]) cached() (T, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.val, v.done
}
