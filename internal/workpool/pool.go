// Package workpool runs blocking pipeline work on a fixed number of slots.
package workpool

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/semaphore"
)

// DefaultSize is the number of concurrent pipeline runs.
const DefaultSize = 4

// Pool bounds concurrent runs. Work beyond the pool size queues until a slot frees.
type Pool struct {
	sem      *semaphore.Weighted
	size     int
	inflight prometheus.Gauge
	queued   prometheus.Gauge
}

// New creates a pool with size slots (DefaultSize when size <= 0).
func New(size int) *Pool {
	if size <= 0 {
		size = DefaultSize
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: size}
}

// WithGauges attaches in-flight and queued gauges. Either may be nil.
func (p *Pool) WithGauges(inflight, queued prometheus.Gauge) *Pool {
	p.inflight = inflight
	p.queued = queued
	return p
}

// Size returns the number of slots.
func (p *Pool) Size() int { return p.size }

// Do waits for a slot, runs fn on a worker goroutine and awaits its result.
// A caller whose context ends while queued gets the context error and fn never runs.
// Once started, fn runs to completion even if the caller goes away.
func (p *Pool) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	gaugeAdd(p.queued, 1)
	if err := p.sem.Acquire(ctx, 1); err != nil {
		gaugeAdd(p.queued, -1)
		return fmt.Errorf("acquire worker: %w", err)
	}
	gaugeAdd(p.queued, -1)
	gaugeAdd(p.inflight, 1)

	done := make(chan error, 1)
	go func() {
		err := safeCall(ctx, fn)
		gaugeAdd(p.inflight, -1)
		p.sem.Release(1)
		done <- err
	}()
	return <-done
}

// Run is Do for functions that produce a value.
func Run[T any](ctx context.Context, p *Pool, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		out = v
		return err
	})
	return out, err
}

func safeCall(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panic: %v", r)
		}
	}()
	return fn(ctx)
}

func gaugeAdd(g prometheus.Gauge, v float64) {
	if g != nil {
		g.Add(v)
	}
}
