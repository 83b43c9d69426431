// Package workerpool provides a generic bounded worker pool: channel
// fan-out/fan-in with index-ordered result collection, with an optional
// per-item progress callback.
package workerpool

import (
	"context"
	"sync"
)

// Pool bounds the number of concurrently running tasks.
type Pool struct {
	workers int
}

// New returns a Pool with the given worker count, clamped to at least 1.
func New(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{workers: workers}
}

// Task pairs an input with the result (or error) of processing it.
type Task[T, R any] struct {
	Input  T
	Result R
	Err    error
}

// Process runs fn over every input with at most Pool.workers concurrent
// calls, returning results in the same order as inputs regardless of
// completion order.
func Process[T, R any](ctx context.Context, p *Pool, inputs []T, fn func(context.Context, T) (R, error)) []Task[T, R] {
	return ProcessWithProgress(ctx, p, inputs, fn, nil)
}

// ProcessWithProgress is Process plus an optional progress callback
// invoked after each task completes with (completed, total).
func ProcessWithProgress[T, R any](ctx context.Context, p *Pool, inputs []T, fn func(context.Context, T) (R, error), progress func(completed, total int)) []Task[T, R] {
	results := make([]Task[T, R], len(inputs))
	if len(inputs) == 0 {
		return results
	}

	type indexed struct {
		idx   int
		input T
	}

	jobs := make(chan indexed, len(inputs))
	for i, in := range inputs {
		jobs <- indexed{idx: i, input: in}
	}
	close(jobs)

	var mu sync.Mutex
	completed := 0

	var wg sync.WaitGroup
	for w := 0; w < p.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				select {
				case <-ctx.Done():
					results[j.idx] = Task[T, R]{Input: j.input, Err: ctx.Err()}
				default:
					r, err := fn(ctx, j.input)
					results[j.idx] = Task[T, R]{Input: j.input, Result: r, Err: err}
				}
				if progress != nil {
					mu.Lock()
					completed++
					progress(completed, len(inputs))
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	return results
}
