package workerpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

func TestProcess_PreservesInputOrderRegardlessOfCompletionOrder(t *testing.T) {
	pool := New(4)
	inputs := []int{5, 1, 4, 1, 3}

	results := Process(context.Background(), pool, inputs, func(ctx context.Context, n int) (int, error) {
		return n * 2, nil
	})

	if len(results) != len(inputs) {
		t.Fatalf("want %d results, got %d", len(inputs), len(results))
	}
	for i, in := range inputs {
		if results[i].Input != in || results[i].Result != in*2 || results[i].Err != nil {
			t.Fatalf("result[%d] = %+v, want Input=%d Result=%d", i, results[i], in, in*2)
		}
	}
}

func TestProcess_PerTaskErrorsDoNotAbortOtherTasks(t *testing.T) {
	pool := New(2)
	inputs := []int{1, 2, 3, 4}

	results := Process(context.Background(), pool, inputs, func(ctx context.Context, n int) (int, error) {
		if n%2 == 0 {
			return 0, errors.New("even numbers fail")
		}
		return n, nil
	})

	for i, in := range inputs {
		if in%2 == 0 {
			if results[i].Err == nil {
				t.Fatalf("result[%d] for input %d: want an error", i, in)
			}
		} else if results[i].Err != nil {
			t.Fatalf("result[%d] for input %d: unexpected error %v", i, in, results[i].Err)
		}
	}
}

func TestProcess_ClampsWorkerCountToAtLeastOne(t *testing.T) {
	pool := New(0)
	if pool.workers != 1 {
		t.Fatalf("New(0).workers = %d, want 1", pool.workers)
	}
}

func TestProcess_EmptyInputReturnsEmptyResults(t *testing.T) {
	pool := New(4)
	results := Process(context.Background(), pool, []int{}, func(ctx context.Context, n int) (int, error) {
		t.Fatalf("fn should never be called for an empty input slice")
		return 0, nil
	})
	if len(results) != 0 {
		t.Fatalf("want 0 results, got %d", len(results))
	}
}

func TestProcessWithProgress_ReportsMonotonicCompletedCount(t *testing.T) {
	pool := New(3)
	inputs := []int{1, 2, 3, 4, 5, 6, 7, 8}

	var calls int64
	var lastCompleted int64
	seenTotal := 0
	results := ProcessWithProgress(context.Background(), pool, inputs, func(ctx context.Context, n int) (int, error) {
		return n, nil
	}, func(completed, total int) {
		atomic.AddInt64(&calls, 1)
		if int64(completed) < atomic.LoadInt64(&lastCompleted) {
			t.Errorf("completed count went backwards: %d after %d", completed, lastCompleted)
		}
		atomic.StoreInt64(&lastCompleted, int64(completed))
		seenTotal = total
	})

	if len(results) != len(inputs) {
		t.Fatalf("want %d results, got %d", len(inputs), len(results))
	}
	if int(atomic.LoadInt64(&calls)) != len(inputs) {
		t.Fatalf("progress callback invoked %d times, want %d", calls, len(inputs))
	}
	if seenTotal != len(inputs) {
		t.Fatalf("progress callback saw total=%d, want %d", seenTotal, len(inputs))
	}
}

func TestProcess_RespectsContextCancellation(t *testing.T) {
	pool := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := Process(ctx, pool, []int{1, 2, 3}, func(ctx context.Context, n int) (int, error) {
		t.Fatalf("fn should not run once the context is already canceled")
		return 0, nil
	})

	for i, r := range results {
		if !errors.Is(r.Err, context.Canceled) {
			t.Fatalf("result[%d].Err = %v, want context.Canceled", i, r.Err)
		}
	}
}
