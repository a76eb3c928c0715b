// Package worker runs batch-pass units on a bounded pool of goroutines.
package worker

import (
	"context"
	"sync"
)

// Run calls fn once per item on at most concurrency goroutines and returns the results in
// input order. Each call completes before its worker takes the next item. When ctx is
// cancelled no further items are dispatched and ctx.Err() is returned; results of items
// that never ran are zero values.
func Run[T, R any](ctx context.Context, concurrency int, items []T, fn func(ctx context.Context, item T) R) ([]R, error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	if concurrency > len(items) {
		concurrency = len(items)
	}

	results := make([]R, len(items))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results[idx] = fn(ctx, items[idx])
			}
		}()
	}

	var err error
dispatch:
	for i := range items {
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break dispatch
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	return results, err
}
