// Package batch provides utilities for running an operation over many items
// with bounded concurrency.
//
// Items are partitioned into batches; within a batch the operation runs on up
// to Concurrency items at once, each invocation wrapped with retry. Results
// come back in input order, and a per-completion progress callback lets the
// caller surface incremental progress. One failed item does not abort the
// remaining items.
package batch

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/vantage-deploy/vantage/internal/util/retry"
)

// Options configures a batch run.
type Options struct {
	// BatchSize is the number of items per batch. Defaults to 10.
	BatchSize int
	// Concurrency bounds simultaneous operations within a batch. Defaults to 3.
	Concurrency int
	// Retry holds retry options applied to every item operation. Nil disables
	// retrying.
	Retry []retry.Option
	// OnProgress, when set, is invoked after each item completes with the
	// number of completed items and the total.
	OnProgress func(done, total int)
}

// Result pairs an item with the outcome of its operation.
type Result[T, R any] struct {
	Item T
	Out  R
	Err  error
}

// Run executes op over all items and returns results in input order.
func Run[T, R any](ctx context.Context, items []T, op func(context.Context, T) (R, error), opts Options) []Result[T, R] {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 3
	}

	results := make([]Result[T, R], len(items))
	sem := semaphore.NewWeighted(int64(opts.Concurrency))

	var mu sync.Mutex
	done := 0

	for start := 0; start < len(items); start += opts.BatchSize {
		end := min(start+opts.BatchSize, len(items))

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			if err := sem.Acquire(ctx, 1); err != nil {
				results[i] = Result[T, R]{Item: items[i], Err: err}
				continue
			}

			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				defer sem.Release(1)

				item := items[i]
				var out R
				run := func() error {
					var err error
					out, err = op(ctx, item)
					return err
				}

				var err error
				if len(opts.Retry) > 0 {
					err = retry.Do(ctx, run, opts.Retry...)
				} else {
					err = run()
				}
				results[i] = Result[T, R]{Item: item, Out: out, Err: err}

				if opts.OnProgress != nil {
					mu.Lock()
					done++
					opts.OnProgress(done, len(items))
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()
	}

	return results
}
