// Package workers runs independent jobs in bounded, rate-limited batches.
package workers

import (
	"context"
	"sync"
	"time"
)

// DefaultWorkers is the batch width when none is configured.
const DefaultWorkers = 8

// WorkerPool processes items in batches of numWorkers with a pause between batches,
// so an upstream data source never sees more than numWorkers requests at once.
type WorkerPool struct {
	numWorkers int
	pause      time.Duration
}

// NewWorkerPool creates a pool. numWorkers <= 0 uses DefaultWorkers.
func NewWorkerPool(numWorkers int, pause time.Duration) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = DefaultWorkers
	}
	if pause < 0 {
		pause = 0
	}
	return &WorkerPool{numWorkers: numWorkers, pause: pause}
}

// Size returns the batch width.
func (wp *WorkerPool) Size() int {
	return wp.numWorkers
}

// Process runs fn over items and returns the results in input order.
//
// Items are dispatched one batch at a time. When ctx is cancelled the current batch
// finishes, no further batch starts, and ctx.Err() is returned with the results
// gathered so far; unprocessed slots hold the zero value.
func Process[T, R any](ctx context.Context, wp *WorkerPool, items []T, fn func(context.Context, T) R) ([]R, error) {
	out := make([]R, len(items))
	for start := 0; start < len(items); start += wp.numWorkers {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if start > 0 && wp.pause > 0 {
			timer := time.NewTimer(wp.pause)
			select {
			case <-ctx.Done():
				timer.Stop()
				return out, ctx.Err()
			case <-timer.C:
			}
		}

		end := min(start+wp.numWorkers, len(items))
		runBatch(ctx, items[start:end], out[start:end], fn)
	}
	return out, nil
}

// jobItem is one unit of work within a batch.
type jobItem[T any] struct {
	index int
	item  T
}

// resultItem carries a result back to its slot.
type resultItem[R any] struct {
	index  int
	result R
}

func runBatch[T, R any](ctx context.Context, items []T, out []R, fn func(context.Context, T) R) {
	jobs := make(chan jobItem[T], len(items))
	results := make(chan resultItem[R], len(items))

	var wg sync.WaitGroup
	for i := 0; i < len(items); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				results <- resultItem[R]{index: job.index, result: fn(ctx, job.item)}
			}
		}()
	}

	for idx, item := range items {
		jobs <- jobItem[T]{index: idx, item: item}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	for r := range results {
		out[r.index] = r.result
	}
}
