// Package concurrent holds the small concurrency helpers shared by the
// session registry and the CLI.
package concurrent

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Limiter bounds how many calls to Do run at the same time. A nil Limiter
// or one built with max <= 0 is unlimited.
type Limiter struct {
	max int64
	sem *semaphore.Weighted
}

// NewLimiter creates a Limiter admitting at most max concurrent calls.
func NewLimiter(max int) *Limiter {
	if max <= 0 {
		return &Limiter{}
	}
	return &Limiter{max: int64(max), sem: semaphore.NewWeighted(int64(max))}
}

// Do waits for a slot, honoring ctx, and runs fn in it.
func (l *Limiter) Do(ctx context.Context, fn func() error) error {
	if l == nil || l.sem == nil {
		return fn()
	}
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer l.sem.Release(1)
	return fn()
}

// Max reports the configured bound, 0 meaning unlimited.
func (l *Limiter) Max() int {
	if l == nil {
		return 0
	}
	return int(l.max)
}

// ParallelForEach runs fn on every item with at most maxConcurrency in
// flight and returns the first error. All items are attempted even after a
// failure so that cleanup work is not skipped.
func ParallelForEach[T any](ctx context.Context, items []T, fn func(context.Context, T) error, maxConcurrency int) error {
	if len(items) == 0 {
		return nil
	}
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}

	var g errgroup.Group
	g.SetLimit(maxConcurrency)
	for _, item := range items {
		g.Go(func() error {
			return fn(ctx, item)
		})
	}
	return g.Wait()
}
