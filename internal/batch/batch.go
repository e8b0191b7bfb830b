// Package batch runs async jobs over a slice with a fixed concurrency cap,
// preserving input order in the results.
package batch

import (
	"context"
	"sync"
	"time"
)

// Process runs worker over every item with at most concurrency workers in
// flight and returns one result per item, result[i] matching items[i]
// regardless of completion order. It returns only after every worker has
// settled.
//
// Workers own their error handling: a worker that fails should return its
// type's zero value (typically nil for pointer results). Process itself never
// fails and never panics on an empty input.
func Process[T, R any](ctx context.Context, items []T, worker func(context.Context, T) R, concurrency int) []R {
	results := make([]R, len(items))
	if len(items) == 0 {
		return results
	}
	if concurrency < 1 {
		concurrency = 1
	}

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, concurrency)

	for i, item := range items {
		wg.Add(1)
		go func(i int, item T) {
			defer wg.Done()
			semaphore <- struct{}{}        // Acquire
			defer func() { <-semaphore }() // Release
			results[i] = worker(ctx, item)
		}(i, item)
	}

	wg.Wait()
	return results
}

// RetryOn wraps a fallible worker with a fixed-pause retry policy: when the
// worker fails and shouldRetry matches the error, wait and run it again, up
// to retries additional attempts. Any other error, or exhausting the budget,
// yields the zero result.
//
// The last-watch resolver uses this with the rate-limit predicate, a 2s wait
// and 3 retries.
func RetryOn[T, R any](worker func(context.Context, T) (R, error), shouldRetry func(error) bool, retries int, wait time.Duration) func(context.Context, T) R {
	return func(ctx context.Context, item T) R {
		var zero R
		for attempt := 0; ; attempt++ {
			result, err := worker(ctx, item)
			if err == nil {
				return result
			}
			if !shouldRetry(err) || attempt >= retries {
				return zero
			}
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return zero
			}
		}
	}
}
